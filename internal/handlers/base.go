package handlers

import (
	"context"
	"regexp"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/cache"
	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/sirupsen/logrus"
)

var (
	airportCodeRe  = regexp.MustCompile(`^[A-Z]{3}$`)
	isoDateRe      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	currencyPairRe = regexp.MustCompile(`^[A-Z]{3}-[A-Z]{3}$`)
)

// CacheStore is the store surface the handlers need; *cache.Store satisfies
// it, tests use fakes.
type CacheStore interface {
	Get(ctx context.Context, col cache.Collection, cacheKey string) (*cache.Record, error)
	GetLatestByParams(ctx context.Context, col cache.Collection, params map[string]string) (*cache.Record, error)
	Put(ctx context.Context, col cache.Collection, cacheKey string, params, metadata map[string]any, data []byte, ttl time.Duration) error
}

// ReconcileRunner triggers a duplicate reconciliation run.
type ReconcileRunner interface {
	Run(ctx context.Context, dryRun bool) *cache.Report
}

// API is the cache tier handler set. The edge functions in front of it own
// the calls to the external fare and forex providers; on a miss response
// they fetch upstream and POST the payload back.
type API struct {
	cfg        *config.Config
	store      CacheStore
	reconciler ReconcileRunner
	log        *logrus.Entry
}

func NewAPI(logger *logrus.Logger, cfg *config.Config, store CacheStore, reconciler ReconcileRunner) *API {
	return &API{
		cfg:        cfg,
		store:      store,
		reconciler: reconciler,
		log:        logger.WithField("component", "api"),
	}
}

// ttlOverride returns the collection default unless the request carries a
// valid ttl_hours query parameter.
func ttlOverride(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw + "h")
	if err != nil || d <= 0 {
		return def
	}
	return d
}
