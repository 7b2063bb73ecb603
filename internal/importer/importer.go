// Package importer bulk-loads provider-response snapshots into the cache
// tables. Imports use plain inserts rather than the upsert path, so repeated
// runs can leave duplicate keys behind; the reconciler repairs those.
package importer

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/chasquifx/chasquifx-cache/internal/docpath"
	"github.com/chasquifx/chasquifx-cache/internal/keys"
	"github.com/chasquifx/chasquifx-cache/internal/models"
	"github.com/chasquifx/chasquifx-cache/internal/storage"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Result counts one import run.
type Result struct {
	Files    int
	Imported int
	Skipped  int
}

type Importer struct {
	db      *gorm.DB
	archive storage.Archive
	cfg     *config.Config
	log     *logrus.Entry
}

func New(logger *logrus.Logger, db *gorm.DB, archive storage.Archive, cfg *config.Config) *Importer {
	return &Importer{
		db:      db,
		archive: archive,
		cfg:     cfg,
		log:     logger.WithField("component", "importer"),
	}
}

// Run imports every snapshot under prefix. Unparseable or unclassifiable
// snapshots are skipped with a warning; a failing insert skips that snapshot
// and continues.
func (i *Importer) Run(ctx context.Context, prefix string) (*Result, error) {
	objectKeys, err := i.archive.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	now := time.Now()

	for _, objectKey := range objectKeys {
		res.Files++
		log := i.log.WithField("snapshot", objectKey)

		raw, err := i.archive.Fetch(ctx, objectKey)
		if err != nil {
			log.WithError(err).Warn("Snapshot fetch failed, skipping")
			res.Skipped++
			continue
		}

		doc, err := LenientParse(raw)
		if err != nil {
			log.WithError(err).Warn("Snapshot unparseable, skipping")
			res.Skipped++
			continue
		}

		// Re-encode so repaired snapshots are stored as valid JSON.
		data, err := json.Marshal(doc)
		if err != nil {
			res.Skipped++
			continue
		}

		switch classify(objectKey, doc) {
		case "flight":
			err = i.insertFlight(ctx, doc, data, now)
		case "forex":
			err = i.insertForex(ctx, doc, data, now)
		default:
			log.Warn("Snapshot kind unknown, skipping")
			res.Skipped++
			continue
		}

		if err != nil {
			log.WithError(err).Warn("Snapshot insert failed, skipping")
			res.Skipped++
			continue
		}
		res.Imported++
	}

	i.log.WithFields(logrus.Fields{
		"files":    res.Files,
		"imported": res.Imported,
		"skipped":  res.Skipped,
	}).Info("Snapshot import finished")
	return res, nil
}

func (i *Importer) insertFlight(ctx context.Context, doc map[string]any, data []byte, now time.Time) error {
	cacheKey := keys.DeriveOrFallback(i.log, doc, keys.FlightKeyPaths, keys.FlightKeyTemplate)
	return i.db.WithContext(ctx).Create(&models.FlightCache{
		CacheKey:         cacheKey,
		SearchParameters: datatypes.JSONMap(leafParams(doc, keys.FlightKeyPaths)),
		Data:             datatypes.JSON(data),
		ExpiresAt:        now.Add(i.cfg.FlightCacheTTL),
		CreatedAt:        now,
		ImportedAt:       &now,
	}).Error
}

func (i *Importer) insertForex(ctx context.Context, doc map[string]any, data []byte, now time.Time) error {
	cacheKey := keys.DeriveOrFallback(i.log, doc, keys.ForexKeyPaths, keys.ForexKeyTemplate)

	metadata := map[string]any{}
	if v, ok := docpath.Lookup(doc, "search_metadata.created_at"); ok {
		metadata["created_at"] = v
	}

	return i.db.WithContext(ctx).Create(&models.ForexCache{
		CacheKey:         cacheKey,
		SearchParameters: datatypes.JSONMap(leafParams(doc, []string{"search_parameters.q"})),
		SearchMetadata:   datatypes.JSONMap(metadata),
		Data:             datatypes.JSON(data),
		ExpiresAt:        now.Add(i.cfg.ForexCacheTTL),
		CreatedAt:        now,
		ImportedAt:       &now,
	}).Error
}

// classify decides the snapshot kind from its object key prefix, falling
// back to sniffing the payload shape for dumps with flat layouts.
func classify(objectKey string, doc map[string]any) string {
	switch {
	case strings.HasPrefix(objectKey, "flights/"):
		return "flight"
	case strings.HasPrefix(objectKey, "forex/"):
		return "forex"
	}
	if _, ok := docpath.Lookup(doc, "search_parameters.departure_id"); ok {
		return "flight"
	}
	if _, ok := docpath.Lookup(doc, "search_parameters.q"); ok {
		return "forex"
	}
	return ""
}

func leafParams(doc map[string]any, paths []string) map[string]any {
	params := make(map[string]any, len(paths))
	for path, v := range docpath.Extract(doc, paths) {
		params[docpath.Leaf(path)] = v
	}
	return params
}
