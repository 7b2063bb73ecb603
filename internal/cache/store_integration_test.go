package cache

import (
	"context"
	"testing"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/database"
	"github.com/chasquifx/chasquifx-cache/internal/keys"
	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorePutGetRoundTrip(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, database.EnsureCacheIndexes(quietLogger(), db))
	store := NewStore(quietLogger(), db)
	ctx := context.Background()

	cacheKey := keys.FlightKey("JFK", "LHR", "2025-08-14", "2025-08-21")
	params := map[string]any{
		"departure_id":  "JFK",
		"arrival_id":    "LHR",
		"outbound_date": "2025-08-14",
		"return_date":   "2025-08-21",
	}
	data := []byte(`{"best_flights":[{"price":540}]}`)

	require.NoError(t, store.Put(ctx, Flights, cacheKey, params, nil, data, 24*time.Hour))

	rec, err := store.Get(ctx, Flights, cacheKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, cacheKey, rec.CacheKey)
	assert.JSONEq(t, string(data), string(rec.Data))
	assert.Equal(t, "JFK", rec.SearchParameters["departure_id"])
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), rec.ExpiresAt, time.Minute)
}

func TestStorePutIsIdempotentUpsert(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, database.EnsureCacheIndexes(quietLogger(), db))
	store := NewStore(quietLogger(), db)
	ctx := context.Background()

	cacheKey := "JFK_LHR_2025-08-14_2025-08-21"
	params := map[string]any{"departure_id": "JFK", "arrival_id": "LHR"}

	require.NoError(t, store.Put(ctx, Flights, cacheKey, params, nil, []byte(`{"rev":1}`), 24*time.Hour))
	require.NoError(t, store.Put(ctx, Flights, cacheKey, params, nil, []byte(`{"rev":2}`), 24*time.Hour))

	var count int64
	require.NoError(t, db.Model(&models.FlightCache{}).Where("cache_key = ?", cacheKey).Count(&count).Error)
	assert.EqualValues(t, 1, count, "upsert must leave exactly one record per key")

	rec, err := store.Get(ctx, Flights, cacheKey)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.JSONEq(t, `{"rev":2}`, string(rec.Data), "second write wins")
}

func TestStoreExpiredRecordIsAMiss(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, database.EnsureCacheIndexes(quietLogger(), db))
	store := NewStore(quietLogger(), db)
	ctx := context.Background()

	cacheKey := "JFK_LHR_2025-08-14_2025-08-21"
	require.NoError(t, store.Put(ctx, Flights, cacheKey, nil, nil, []byte(`{}`), 24*time.Hour))

	// Advance the clock past the TTL by backdating the stored expiry.
	require.NoError(t, db.Model(&models.FlightCache{}).
		Where("cache_key = ?", cacheKey).
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	rec, err := store.Get(ctx, Flights, cacheKey)
	require.NoError(t, err)
	assert.Nil(t, rec, "expired record must read as a miss")

	var count int64
	require.NoError(t, db.Model(&models.FlightCache{}).Where("cache_key = ?", cacheKey).Count(&count).Error)
	assert.EqualValues(t, 1, count, "expired record stays in place; the purger owns deletion")
}

func TestStoreGetLatestByParams(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, database.EnsureCacheIndexes(quietLogger(), db))
	store := NewStore(quietLogger(), db)
	ctx := context.Background()

	older := keys.ForexKey("EUR-USD", "2025-05-17 02:33:39 UTC")
	newer := keys.ForexKey("EUR-USD", "2025-05-17 08:15:00 UTC")
	params := map[string]any{"q": "EUR-USD"}

	require.NoError(t, store.Put(ctx, Forex, older, params, map[string]any{"created_at": "2025-05-17 02:33:39 UTC"}, []byte(`{"rate":1.07}`), time.Hour))
	require.NoError(t, store.Put(ctx, Forex, newer, params, map[string]any{"created_at": "2025-05-17 08:15:00 UTC"}, []byte(`{"rate":1.08}`), 2*time.Hour))
	require.NoError(t, store.Put(ctx, Forex, keys.ForexKey("GBP-USD", "2025-05-17 08:15:00 UTC"), map[string]any{"q": "GBP-USD"}, nil, []byte(`{"rate":1.27}`), 2*time.Hour))

	rec, err := store.GetLatestByParams(ctx, Forex, map[string]string{"q": "EUR-USD"})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, newer, rec.CacheKey, "freshest snapshot wins")
	assert.JSONEq(t, `{"rate":1.08}`, string(rec.Data))
}

func TestStoreGetLatestByParamsAllExpired(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, database.EnsureCacheIndexes(quietLogger(), db))
	store := NewStore(quietLogger(), db)
	ctx := context.Background()

	cacheKey := keys.ForexKey("EUR-USD", "2025-05-17 02:33:39 UTC")
	require.NoError(t, store.Put(ctx, Forex, cacheKey, map[string]any{"q": "EUR-USD"}, nil, []byte(`{"rate":1.07}`), time.Hour))
	require.NoError(t, db.Model(&models.ForexCache{}).
		Where("cache_key = ?", cacheKey).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	rec, err := store.GetLatestByParams(ctx, Forex, map[string]string{"q": "EUR-USD"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPurgerDeletesOnlyExpiredRows(t *testing.T) {
	db := setupPostgres(t)
	require.NoError(t, database.EnsureCacheIndexes(quietLogger(), db))
	store := NewStore(quietLogger(), db)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, Flights, "JFK_LHR_2025-08-14_2025-08-21", nil, nil, []byte(`{}`), 24*time.Hour))
	require.NoError(t, store.Put(ctx, Flights, "SFO_NRT_2025-09-01_2025-09-15", nil, nil, []byte(`{}`), 24*time.Hour))
	require.NoError(t, db.Model(&models.FlightCache{}).
		Where("cache_key = ?", "SFO_NRT_2025-09-01_2025-09-15").
		Update("expires_at", time.Now().Add(-time.Hour)).Error)

	logger := quietLogger()
	p := NewPurger(logger, db, time.Minute)
	p.purgeExpired(ctx, logger.WithField("component", "cache_purger"))

	var remaining []models.FlightCache
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "JFK_LHR_2025-08-14_2025-08-21", remaining[0].CacheKey)
}
