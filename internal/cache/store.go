// Package cache persists provider responses keyed by their derived cache key
// and repairs records written outside the upsert path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Collection names a logical cache collection.
type Collection string

const (
	Flights Collection = "flights"
	Forex   Collection = "forex"
)

// Record is a collection-independent view of one cached response.
type Record struct {
	CacheKey         string
	SearchParameters map[string]any
	SearchMetadata   map[string]any
	Data             json.RawMessage
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Store reads and writes cache records through upsert semantics. Logical
// uniqueness per cache key is enforced by the store's unique index
// (database.EnsureCacheIndexes), not by this layer; concurrent writers of the
// same key resolve to last write wins.
type Store struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewStore(logger *logrus.Logger, db *gorm.DB) *Store {
	return &Store{
		db:  db,
		log: logger.WithField("component", "cache_store"),
	}
}

// Get returns the freshest unexpired record for the key, or nil on a miss.
// An expired record is a miss and is left in place for the purger. Store
// failures are logged and returned; callers treat them as a miss.
func (s *Store) Get(ctx context.Context, col Collection, cacheKey string) (*Record, error) {
	rec, err := s.query(ctx, col, "cache_key = ?", cacheKey)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"collection": col,
			"cache_key":  cacheKey,
		}).Error("Cache read failed")
		cacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}
	if rec == nil {
		cacheMisses.WithLabelValues(string(col)).Inc()
		return nil, nil
	}
	cacheHits.WithLabelValues(string(col)).Inc()
	return rec, nil
}

// GetLatestByParams returns the freshest unexpired record whose search
// parameters match all given values. Forex lookups go through here: forex
// keys embed the snapshot timestamp, so the currency pair is only queryable
// by parameter.
func (s *Store) GetLatestByParams(ctx context.Context, col Collection, params map[string]string) (*Record, error) {
	tx := s.scope(ctx, col)
	for k, v := range params {
		tx = tx.Where("search_parameters ->> ? = ?", k, v)
	}
	tx = tx.Where("expires_at > ?", time.Now()).Order("expires_at DESC")

	rec, err := s.first(tx, col)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"collection": col,
			"params":     params,
		}).Error("Cache parameter lookup failed")
		cacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}
	if rec == nil {
		cacheMisses.WithLabelValues(string(col)).Inc()
		return nil, nil
	}
	cacheHits.WithLabelValues(string(col)).Inc()
	return rec, nil
}

// Put upserts a record under cacheKey with expires_at = now + ttl. Repeating
// an identical call leaves exactly one record for the key, with the later
// call's data and expiry winning.
func (s *Store) Put(ctx context.Context, col Collection, cacheKey string, params, metadata map[string]any, data []byte, ttl time.Duration) error {
	now := time.Now()
	expiresAt := now.Add(ttl)

	onConflict := clause.OnConflict{
		Columns: []clause.Column{{Name: "cache_key"}},
	}

	var err error
	switch col {
	case Forex:
		onConflict.DoUpdates = clause.AssignmentColumns([]string{"search_parameters", "search_metadata", "data", "expires_at"})
		err = s.db.WithContext(ctx).Clauses(onConflict).Create(&models.ForexCache{
			CacheKey:         cacheKey,
			SearchParameters: datatypes.JSONMap(params),
			SearchMetadata:   datatypes.JSONMap(metadata),
			Data:             datatypes.JSON(data),
			ExpiresAt:        expiresAt,
			CreatedAt:        now,
		}).Error
	default:
		onConflict.DoUpdates = clause.AssignmentColumns([]string{"search_parameters", "data", "expires_at"})
		err = s.db.WithContext(ctx).Clauses(onConflict).Create(&models.FlightCache{
			CacheKey:         cacheKey,
			SearchParameters: datatypes.JSONMap(params),
			Data:             datatypes.JSON(data),
			ExpiresAt:        expiresAt,
			CreatedAt:        now,
		}).Error
	}

	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"collection": col,
			"cache_key":  cacheKey,
		}).Error("Cache write failed")
		cacheErrors.WithLabelValues("put").Inc()
		return err
	}
	return nil
}

func (s *Store) scope(ctx context.Context, col Collection) *gorm.DB {
	if col == Forex {
		return s.db.WithContext(ctx).Model(&models.ForexCache{})
	}
	return s.db.WithContext(ctx).Model(&models.FlightCache{})
}

func (s *Store) query(ctx context.Context, col Collection, cond string, args ...any) (*Record, error) {
	tx := s.scope(ctx, col).
		Where(cond, args...).
		Where("expires_at > ?", time.Now()).
		Order("expires_at DESC")
	return s.first(tx, col)
}

func (s *Store) first(tx *gorm.DB, col Collection) (*Record, error) {
	if col == Forex {
		var row models.ForexCache
		if err := tx.First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return &Record{
			CacheKey:         row.CacheKey,
			SearchParameters: row.SearchParameters,
			SearchMetadata:   row.SearchMetadata,
			Data:             json.RawMessage(row.Data),
			ExpiresAt:        row.ExpiresAt,
			CreatedAt:        row.CreatedAt,
		}, nil
	}

	var row models.FlightCache
	if err := tx.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Record{
		CacheKey:         row.CacheKey,
		SearchParameters: row.SearchParameters,
		Data:             json.RawMessage(row.Data),
		ExpiresAt:        row.ExpiresAt,
		CreatedAt:        row.CreatedAt,
	}, nil
}
