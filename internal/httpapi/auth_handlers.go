package httpapi

import (
	"net/http"

	"rfqtrack.org/internal/audit"
	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/obs"
)

type loginUser struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
}

func (a *API) loginPage(w http.ResponseWriter, r *http.Request) {
	a.tmpl.Render(w, http.StatusOK, "login.html", map[string]any{"Title": "Sign in"})
}

// handleLogin accepts the login form. Bad credentials return 200 with
// success=false and a single combined message; the response never says which
// half was wrong.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "malformed form")
		return
	}
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	res, err := a.login.Login(r.Context(), email, password)
	if err != nil {
		obs.LogError("login", err, nil)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !res.OK {
		obs.ObserveLoginFailure()
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": res.Message,
		})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    res.Token,
		Path:     "/",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	_ = audit.LogEvent(auth.ContextWithIdentity(r.Context(), res.Identity), "auth.login", map[string]any{
		"email": res.Identity.Email,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   res.Token,
		"user": loginUser{
			ID:       res.Identity.UserID,
			Email:    res.Identity.Email,
			Role:     string(res.Identity.Role),
			FullName: res.Identity.FullName,
		},
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
