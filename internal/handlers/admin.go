package handlers

import (
	"net/http"
)

// HandleReconcile runs duplicate reconciliation on demand. Dry-run is the
// default; destructive runs require an explicit dry_run=false.
func (a *API) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") != "false"

	report := a.reconciler.Run(r.Context(), dryRun)

	status := http.StatusOK
	if report.Failed() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}
