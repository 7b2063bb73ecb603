package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"strings"

	"github.com/chasquifx/chasquifx-cache/internal/cache"
	"github.com/chasquifx/chasquifx-cache/internal/config"
	"github.com/chasquifx/chasquifx-cache/internal/database"
	"github.com/sirupsen/logrus"
)

func main() {
	dryRun := flag.Bool("dry-run", true, "report duplicates without deleting (pass -dry-run=false to delete)")
	tables := flag.String("tables", "", "comma-separated table filter (default: all ruled tables)")
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

	rules := cache.DefaultRules()
	if *tables != "" {
		wanted := map[string]bool{}
		for _, t := range strings.Split(*tables, ",") {
			wanted[strings.TrimSpace(t)] = true
		}
		filtered := rules[:0]
		for _, rule := range rules {
			if wanted[rule.Table] {
				filtered = append(filtered, rule)
			}
		}
		rules = filtered
	}

	reconciler := cache.NewReconciler(logger, db, rules)
	report := reconciler.Run(context.Background(), *dryRun)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)

	if report.Failed() {
		os.Exit(1)
	}
}
