package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/rfq"
)

const sessionCookie = "access_token"

var publicPaths = []string{
	"/login",
	"/auth/login",
	"/healthz",
	"/readyz",
	"/metrics",
}

func isPublicPath(path string) bool {
	if strings.HasPrefix(path, "/static/") {
		return true
	}
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// withAuth verifies the session cookie on every non-public route. The three
// failure states stay distinct: an absent cookie, a token that does not
// parse, and a token past its expiry each produce their own message. Browser
// page requests bounce to /login instead of seeing a JSON 401.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			token = strings.TrimSpace(c.Value)
		}

		id, err := a.tokens.Verify(token)
		if err != nil {
			a.rejectUnauthenticated(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), id)))
	})
}

func (a *API) rejectUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	if !isJSONRoute(r.URL.Path) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		respondError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, auth.ErrExpiredToken):
		respondError(w, http.StatusUnauthorized, "token expired")
	default:
		respondError(w, http.StatusUnauthorized, "invalid token")
	}
}

func isJSONRoute(path string) bool {
	return strings.HasPrefix(path, "/v1/")
}

// viewer derives the domain viewer from the authenticated identity.
func viewer(r *http.Request) (rfq.Viewer, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return rfq.Viewer{}, false
	}
	return rfq.Viewer{UserID: id.UserID, Role: id.Role}, true
}
