package httpapi

import (
	"net/http"
)

func (a *API) dashboardPage(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Dashboard(r.Context())
	if err != nil {
		a.pageError(w, "dashboard", err)
		return
	}
	a.tmpl.Render(w, http.StatusOK, "dashboard.html", map[string]any{
		"Title":  "Dashboard",
		"Viewer": identityOf(r),
		"Stats":  stats,
	})
}

// handleDashboardStats serves the same aggregates as JSON for the charts.
func (a *API) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Dashboard(r.Context())
	if err != nil {
		serviceError(w, "dashboard stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
