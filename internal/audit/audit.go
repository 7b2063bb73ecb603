// Package audit appends API call records for later inspection. Writes are
// best effort and must never fail a request.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// fingerprintHashLen is the number of hex characters of the request-data hash
// kept in the fingerprint. Part of the stored format; do not change.
const fingerprintHashLen = 12

// Fingerprint derives the near-unique token that de-duplicates identical log
// writes landing within the same second.
func Fingerprint(endpoint string, ts time.Time, requestData []byte) string {
	sum := sha256.Sum256(requestData)
	return fmt.Sprintf("%s:%d:%s", endpoint, ts.Unix(), hex.EncodeToString(sum[:])[:fingerprintHashLen])
}

type Logger struct {
	db  *gorm.DB
	log *logrus.Entry
}

func NewLogger(logger *logrus.Logger, db *gorm.DB) *Logger {
	return &Logger{
		db:  db,
		log: logger.WithField("component", "audit"),
	}
}

// Record appends one audit entry. A fingerprint collision means an identical
// write already landed and is silently dropped.
func (l *Logger) Record(ctx context.Context, endpoint string, requestData []byte, status int, userID *string) error {
	now := time.Now()
	entry := models.APICallLog{
		Endpoint:       endpoint,
		RequestData:    datatypes.JSON(requestData),
		ResponseStatus: status,
		UserID:         userID,
		Timestamp:      now,
		Fingerprint:    Fingerprint(endpoint, now, requestData),
	}

	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(&entry).Error
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		l.log.WithError(err).WithField("endpoint", endpoint).Warn("Failed to save audit entry")
		return err
	}
	return nil
}
