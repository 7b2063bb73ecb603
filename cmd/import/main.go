package main

import (
	"context"
	"flag"

	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/chasquifx/chasquifx-cache/internal/database"
	"github.com/chasquifx/chasquifx-cache/internal/importer"
	"github.com/chasquifx/chasquifx-cache/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	prefix := flag.String("prefix", "", "S3 key prefix to import (e.g. flights/2025-05/)")
	flag.Parse()

	cfg := config.Load()
	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.NewPostgresDB(logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Database setup failed")
	}
	defer database.Close(db)

	archive := storage.NewSnapshotArchive(cfg)
	imp := importer.New(logger, db, archive, cfg)

	res, err := imp.Run(context.Background(), *prefix)
	if err != nil {
		logger.WithError(err).Fatal("Import failed")
	}

	logger.WithFields(logrus.Fields{
		"files":    res.Files,
		"imported": res.Imported,
		"skipped":  res.Skipped,
	}).Info("Import complete - run cmd/reconcile to collapse any duplicate keys")
}
