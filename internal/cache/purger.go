package cache

import (
	"context"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Purger deletes expired cache rows on a fixed interval. Reads already treat
// expired rows as misses, so this only reclaims space.
type Purger struct {
	logger   *logrus.Logger
	db       *gorm.DB
	interval time.Duration
}

func NewPurger(logger *logrus.Logger, db *gorm.DB, interval time.Duration) *Purger {
	return &Purger{
		logger:   logger,
		db:       db,
		interval: interval,
	}
}

func (p *Purger) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logEntry := p.logger.WithField("component", "cache_purger")
	logEntry.Info("Starting cache purger")

	for {
		select {
		case <-ticker.C:
			p.purgeExpired(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping cache purger")
			return
		}
	}
}

func (p *Purger) purgeExpired(ctx context.Context, log *logrus.Entry) {
	log = log.WithField("operation", "cache_purge")
	now := time.Now()

	res := p.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.FlightCache{})
	if res.Error != nil {
		log.WithError(res.Error).Error("Flight cache purge failed")
	} else if res.RowsAffected > 0 {
		purgedRecords.WithLabelValues("flight_cache").Add(float64(res.RowsAffected))
		log.WithField("count", res.RowsAffected).Info("Purged expired flight cache entries")
	}

	res = p.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.ForexCache{})
	if res.Error != nil {
		log.WithError(res.Error).Error("Forex cache purge failed")
	} else if res.RowsAffected > 0 {
		purgedRecords.WithLabelValues("forex_cache").Add(float64(res.RowsAffected))
		log.WithField("count", res.RowsAffected).Info("Purged expired forex cache entries")
	}
}
