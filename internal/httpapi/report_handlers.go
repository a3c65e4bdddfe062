package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"rfqtrack.org/internal/auth"
)

// handleUsersByRole feeds the assignment dropdowns.
func (a *API) handleUsersByRole(w http.ResponseWriter, r *http.Request) {
	role := auth.Role(r.URL.Query().Get("role"))
	if !role.Valid() {
		respondError(w, http.StatusBadRequest, "unknown role")
		return
	}
	users, err := a.svc.UsersByRole(r.Context(), role)
	if err != nil {
		serviceError(w, "users by role", err)
		return
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"id":        u.ID,
			"full_name": u.FullName,
			"email":     u.Email,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": out})
}

// handleMonthlyPerformance reports per-month totals for one year, scoped to
// the caller's role.
func (a *API) handleMonthlyPerformance(w http.ResponseWriter, r *http.Request) {
	v, ok := viewer(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 2000 || n > 2100 {
			respondError(w, http.StatusBadRequest, "year must be a four-digit year")
			return
		}
		year = n
	}

	buckets, err := a.svc.MonthlyPerformance(r.Context(), v, year)
	if err != nil {
		serviceError(w, "monthly performance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":   year,
		"months": buckets,
	})
}
