package models

import (
	"time"

	"gorm.io/datatypes"
)

// FlightCache holds one cached flight-search response. CacheKey is logically
// unique; the unique index is created by database.EnsureCacheIndexes rather
// than a model tag so that tables holding historical duplicates can still
// migrate (the reconciler repairs them afterwards).
type FlightCache struct {
	ID               uint              `gorm:"primaryKey;autoIncrement"`
	CacheKey         string            `gorm:"type:varchar(512);not null;index"`
	SearchParameters datatypes.JSONMap `gorm:"type:jsonb"`
	Data             datatypes.JSON    `gorm:"type:jsonb;not null"`
	ExpiresAt        time.Time         `gorm:"index;not null"`
	CreatedAt        time.Time         `gorm:"index;not null"`
	ImportedAt       *time.Time        `gorm:"index"`
}

// ForexCache holds one cached exchange-rate snapshot. Keys embed the snapshot
// timestamp, so the same currency pair fetched at different times produces
// distinct rows.
type ForexCache struct {
	ID               uint              `gorm:"primaryKey;autoIncrement"`
	CacheKey         string            `gorm:"type:varchar(512);not null;index"`
	SearchParameters datatypes.JSONMap `gorm:"type:jsonb"`
	SearchMetadata   datatypes.JSONMap `gorm:"type:jsonb"`
	Data             datatypes.JSON    `gorm:"type:jsonb;not null"`
	ExpiresAt        time.Time         `gorm:"index;not null"`
	CreatedAt        time.Time         `gorm:"index;not null"`
	ImportedAt       *time.Time        `gorm:"index"`
}

// APICallLog is an append-only audit entry. Fingerprint suppresses
// near-simultaneous duplicate writes of the same call.
type APICallLog struct {
	ID             uint           `gorm:"primaryKey;autoIncrement"`
	Endpoint       string         `gorm:"type:varchar(255);not null;index"`
	RequestData    datatypes.JSON `gorm:"type:jsonb"`
	ResponseStatus int            `gorm:"not null"`
	UserID         *string        `gorm:"type:varchar(64);index"`
	Timestamp      time.Time      `gorm:"index;not null"`
	Fingerprint    string         `gorm:"type:varchar(128);not null;uniqueIndex"`
}

func (FlightCache) TableName() string {
	return "flight_cache"
}

func (ForexCache) TableName() string {
	return "forex_cache"
}

func (APICallLog) TableName() string {
	return "api_call_logs"
}

// IsExpired reports whether the record is past its TTL.
func (c *FlightCache) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

func (c *ForexCache) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
