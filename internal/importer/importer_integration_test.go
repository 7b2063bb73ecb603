package importer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type memArchive struct {
	objects map[string][]byte
}

func (m *memArchive) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memArchive) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return obj, nil
}

func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start Postgres container")

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test password=test dbname=test sslmode=disable", host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.FlightCache{}, &models.ForexCache{}, &models.APICallLog{}))
	return db
}

func newTestImporter(db *gorm.DB, archive *memArchive) *Importer {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	cfg := &config.Config{
		FlightCacheTTL: 24 * time.Hour,
		ForexCacheTTL:  12 * time.Hour,
	}
	return New(logger, db, archive, cfg)
}

func TestImporterLoadsSnapshots(t *testing.T) {
	db := setupPostgres(t)
	archive := &memArchive{objects: map[string][]byte{
		"flights/2025-08/jfk-lhr.json": []byte(`{"search_parameters":{"departure_id":"JFK","arrival_id":"LHR","outbound_date":"2025-08-14","return_date":"2025-08-21"},"best_flights":[]}`),
		"forex/2025-05/eur-usd.json":   []byte(`{"search_parameters":{"q":"EUR-USD"},"search_metadata":{"created_at":"2025-05-17 02:33:39 UTC"},"rate":1.08}`),
	}}

	res, err := newTestImporter(db, archive).Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 0, res.Skipped)

	var flight models.FlightCache
	require.NoError(t, db.First(&flight).Error)
	assert.Equal(t, "JFK_LHR_2025-08-14_2025-08-21", flight.CacheKey)
	require.NotNil(t, flight.ImportedAt)

	var forex models.ForexCache
	require.NoError(t, db.First(&forex).Error)
	assert.Equal(t, "EUR-USD_2025-05-17-02-33-39", forex.CacheKey)
	assert.Equal(t, "2025-05-17 02:33:39 UTC", forex.SearchMetadata["created_at"])
}

func TestImporterRepairsDefectiveSnapshots(t *testing.T) {
	db := setupPostgres(t)
	archive := &memArchive{objects: map[string][]byte{
		"forex/2025-05/damaged.json": []byte(`{"search_parameters":{"q":"EUR-USD",},"search_metadata":{"created_at": 2025-05-17 02:33:39 UTC,},"rate":1.08,}`),
	}}

	res, err := newTestImporter(db, archive).Run(context.Background(), "forex/")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)

	var forex models.ForexCache
	require.NoError(t, db.First(&forex).Error)
	assert.Equal(t, "EUR-USD_2025-05-17-02-33-39", forex.CacheKey)
}

func TestImporterRepeatedRunsLeaveDuplicates(t *testing.T) {
	db := setupPostgres(t)
	archive := &memArchive{objects: map[string][]byte{
		"flights/jfk-lhr.json": []byte(`{"search_parameters":{"departure_id":"JFK","arrival_id":"LHR","outbound_date":"2025-08-14","return_date":"2025-08-21"}}`),
	}}
	imp := newTestImporter(db, archive)

	_, err := imp.Run(context.Background(), "flights/")
	require.NoError(t, err)
	_, err = imp.Run(context.Background(), "flights/")
	require.NoError(t, err)

	// Plain inserts bypass the upsert discipline; the reconciler exists to
	// repair exactly this state.
	var count int64
	require.NoError(t, db.Model(&models.FlightCache{}).
		Where("cache_key = ?", "JFK_LHR_2025-08-14_2025-08-21").
		Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestImporterSkipsGarbageAndUnknownKinds(t *testing.T) {
	db := setupPostgres(t)
	archive := &memArchive{objects: map[string][]byte{
		"misc/garbage.json": []byte(`not json at all`),
		"misc/opaque.json":  []byte(`{"unrelated":true}`),
	}}

	res, err := newTestImporter(db, archive).Run(context.Background(), "misc/")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Files)
	assert.Equal(t, 0, res.Imported)
	assert.Equal(t, 2, res.Skipped)
}
