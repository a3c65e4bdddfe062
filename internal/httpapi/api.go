package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/obs"
	"rfqtrack.org/internal/rfq"
	"rfqtrack.org/internal/stream"
)

// ReadyProbe reports whether the datastore answers.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer: HTML pages for the browser flow plus JSON endpoints
// under /v1/.
type API struct {
	mux     *http.ServeMux
	svc     rfq.Service
	login   *auth.Service
	tokens  *auth.Authenticator
	events  *stream.Stream
	tmpl    *Templates
	ready   ReadyProbe
	version string
}

func New(svc rfq.Service, login *auth.Service, tokens *auth.Authenticator,
	events *stream.Stream, tmpl *Templates, rp ReadyProbe, staticDir, version string) *API {
	a := &API{
		mux:     http.NewServeMux(),
		svc:     svc,
		login:   login,
		tokens:  tokens,
		events:  events,
		tmpl:    tmpl,
		ready:   rp,
		version: version,
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))

	a.mux.HandleFunc("GET /login", a.loginPage)
	a.mux.HandleFunc("POST /auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /auth/logout", a.handleLogout)

	a.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard/", http.StatusSeeOther)
	})
	a.mux.HandleFunc("GET /dashboard/", a.dashboardPage)

	a.mux.HandleFunc("GET /rfq/", a.listPage)
	a.mux.HandleFunc("GET /rfq/new", a.newRFQPage)
	a.mux.HandleFunc("POST /rfq/new", a.handleCreateRFQ)
	a.mux.HandleFunc("GET /rfq/{id}", a.detailPage)
	a.mux.HandleFunc("POST /rfq/{id}/status", a.handleStatusUpdate)
	a.mux.HandleFunc("POST /rfq/{id}/delete", a.handleDeleteRFQ)

	a.mux.HandleFunc("GET /v1/dashboard/stats", a.handleDashboardStats)
	a.mux.HandleFunc("GET /v1/users", a.handleUsersByRole)
	a.mux.HandleFunc("GET /v1/reports/monthly-performance", a.handleMonthlyPerformance)
	a.mux.HandleFunc("GET /v1/rfqs/stream", a.Stream)

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler(rateBurst, ratePerSec int, maxBody int64) http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, maxBody)
	h = RateLimit(h, rateBurst, ratePerSec)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}
