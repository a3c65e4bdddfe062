package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"rfqtrack.org/internal/obs"
	"rfqtrack.org/internal/rfq"
)

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "rfqtrack",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

// serviceError maps the domain error taxonomy onto status codes. Internal
// details go to the log only; the response carries a generic message.
func serviceError(w http.ResponseWriter, scope string, err error) {
	var vErr *rfq.ValidationError
	var rErr *rfq.RuleError
	switch {
	case errors.Is(err, rfq.ErrNotFound):
		respondError(w, http.StatusNotFound, "RFQ not found")
	case errors.Is(err, rfq.ErrAccessDenied):
		respondError(w, http.StatusForbidden, "access denied")
	case errors.As(err, &vErr):
		respondError(w, http.StatusBadRequest, vErr.Msg)
	case errors.As(err, &rErr):
		respondError(w, http.StatusBadRequest, rErr.Msg)
	default:
		obs.LogError(scope, err, nil)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
