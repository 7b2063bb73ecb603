package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewPostgresDB(logger *logrus.Logger, cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword,
		cfg.PostgresDatabase, cfg.PostgresSSLMode)

	log := logger.WithFields(logrus.Fields{
		"component": "database",
		"host":      cfg.PostgresHost,
		"database":  cfg.PostgresDatabase,
	})

	var db *gorm.DB
	var err error
	const maxRetries = 5
	retryDelay := 2 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}

		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Database connection failed")

		if attempt < maxRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	if err != nil {
		log.WithError(err).Error("Failed to connect to database after retries")
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.AutoMigrate(&models.FlightCache{}, &models.ForexCache{}, &models.APICallLog{}); err != nil {
		log.WithError(err).Error("Database migration failed")
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	log.Info("Database connection established")
	return db, nil
}

// EnsureCacheIndexes creates the unique cache_key indexes that back the
// upsert path. Tables imported from historical dumps can contain duplicate
// keys, in which case index creation fails with a unique violation; that is
// reported as "run the reconciler" rather than treated as fatal, and the
// remaining indexes are still attempted.
func EnsureCacheIndexes(logger *logrus.Logger, db *gorm.DB) error {
	log := logger.WithField("component", "database")

	stmts := map[string]string{
		"flight_cache": "CREATE UNIQUE INDEX IF NOT EXISTS uidx_flight_cache_cache_key ON flight_cache (cache_key)",
		"forex_cache":  "CREATE UNIQUE INDEX IF NOT EXISTS uidx_forex_cache_cache_key ON forex_cache (cache_key)",
	}

	var firstErr error
	for table, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				log.WithField("table", table).Warn("Duplicate cache keys present, unique index skipped - run the reconciler")
				continue
			}
			log.WithError(err).WithField("table", table).Error("Failed to create unique index")
			if firstErr == nil {
				firstErr = fmt.Errorf("create unique index on %s: %w", table, err)
			}
		}
	}
	return firstErr
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
