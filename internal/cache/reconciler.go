package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Rule defines how duplicates are recognized in one table: the columns whose
// combined value must be unique and the ordering that decides which copy
// survives. Tables without a rule are never scanned.
type Rule struct {
	Table        string
	KeyColumns   []string
	RecencyOrder []string
}

// DefaultRules covers the collections written by upsert-bypassing paths. The
// trailing "id DESC" is the tie-break when recency signals are identical; it
// is deterministic but carries no meaning.
func DefaultRules() []Rule {
	return []Rule{
		{
			Table:        "flight_cache",
			KeyColumns:   []string{"cache_key"},
			RecencyOrder: []string{"imported_at DESC NULLS LAST", "created_at DESC", "id DESC"},
		},
		{
			Table:        "forex_cache",
			KeyColumns:   []string{"cache_key"},
			RecencyOrder: []string{"imported_at DESC NULLS LAST", "created_at DESC", "id DESC"},
		},
		{
			Table:        "api_call_logs",
			KeyColumns:   []string{"endpoint", "timestamp", "user_id"},
			RecencyOrder: []string{"timestamp DESC", "id DESC"},
		},
	}
}

// TableReport summarizes one table's reconciliation.
type TableReport struct {
	Table           string `json:"table"`
	DuplicateGroups int    `json:"duplicate_groups"`
	Removable       int    `json:"removable"`
	Removed         int    `json:"removed"`
	Error           string `json:"error,omitempty"`
}

// Report summarizes a reconciliation run.
type Report struct {
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Tables    []TableReport `json:"tables"`
}

// Failed reports whether every scanned table errored.
func (r *Report) Failed() bool {
	if len(r.Tables) == 0 {
		return false
	}
	for _, t := range r.Tables {
		if t.Error == "" {
			return false
		}
	}
	return true
}

// Reconciler collapses duplicate records left behind by bulk imports and
// other plain-insert paths, keeping the most recent copy per logical key.
// The group-then-delete sequence is not transactional; a record refreshed
// between the two steps can be deleted, which is an accepted gap.
type Reconciler struct {
	db    *gorm.DB
	log   *logrus.Entry
	rules []Rule
}

func NewReconciler(logger *logrus.Logger, db *gorm.DB, rules []Rule) *Reconciler {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Reconciler{
		db:    db,
		log:   logger.WithField("component", "reconciler"),
		rules: rules,
	}
}

// Run reconciles every ruled table. A failing table is reported and skipped;
// the run continues with the next one. With dryRun set, nothing is deleted
// and Removable reports what a real run would remove.
func (r *Reconciler) Run(ctx context.Context, dryRun bool) *Report {
	report := &Report{DryRun: dryRun, StartedAt: time.Now()}

	for _, rule := range r.rules {
		tr := r.reconcileTable(ctx, rule, dryRun)
		report.Tables = append(report.Tables, tr)

		log := r.log.WithFields(logrus.Fields{
			"table":            tr.Table,
			"duplicate_groups": tr.DuplicateGroups,
			"removable":        tr.Removable,
			"removed":          tr.Removed,
			"dry_run":          dryRun,
		})
		if tr.Error != "" {
			log.WithField("error", tr.Error).Error("Table reconciliation failed")
			continue
		}
		log.Info("Table reconciled")
	}
	return report
}

func (r *Reconciler) reconcileTable(ctx context.Context, rule Rule, dryRun bool) TableReport {
	tr := TableReport{Table: rule.Table}

	groupExpr := strings.Join(rule.KeyColumns, ", ")
	var groups []map[string]any
	err := r.db.WithContext(ctx).
		Table(rule.Table).
		Select(groupExpr + ", COUNT(*) AS member_count").
		Group(groupExpr).
		Having("COUNT(*) > 1").
		Find(&groups).Error
	if err != nil {
		tr.Error = fmt.Sprintf("group duplicates: %v", err)
		return tr
	}

	for _, group := range groups {
		tx := r.db.WithContext(ctx).Table(rule.Table)
		for _, col := range rule.KeyColumns {
			if v, ok := group[col]; ok && v != nil {
				tx = tx.Where(col+" = ?", v)
			} else {
				tx = tx.Where(col + " IS NULL")
			}
		}

		var ids []uint
		if err := tx.Order(strings.Join(rule.RecencyOrder, ", ")).Pluck("id", &ids).Error; err != nil {
			tr.Error = fmt.Sprintf("load duplicate group: %v", err)
			return tr
		}
		if len(ids) < 2 {
			// Refreshed or already repaired since the aggregation ran.
			continue
		}

		doomed := ids[1:]
		tr.DuplicateGroups++
		tr.Removable += len(doomed)

		if dryRun {
			continue
		}

		res := r.db.WithContext(ctx).Exec("DELETE FROM "+rule.Table+" WHERE id IN ?", doomed)
		if res.Error != nil {
			tr.Error = fmt.Sprintf("delete duplicates: %v", res.Error)
			return tr
		}
		tr.Removed += int(res.RowsAffected)
		reconcilerRemoved.WithLabelValues(rule.Table).Add(float64(res.RowsAffected))
	}

	return tr
}
