package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"rfqtrack.org/internal/auth"
	"rfqtrack.org/internal/rfq"
	"rfqtrack.org/internal/stream"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixedAccounts map[string]auth.Account

func (f fixedAccounts) FindAccountByEmail(_ context.Context, email string) (auth.Account, error) {
	acct, ok := f[email]
	if !ok {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	return acct, nil
}

type testEnv struct {
	handler http.Handler
	store   *rfq.InMemory
	tokens  *auth.Authenticator
	events  *stream.Stream
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := rfq.NewInMemory()
	store.AddUser(1, "Sam Admin", "admin@example.com", auth.RoleAdmin)
	store.AddUser(2, "Erin Engineer", "erin@example.com", auth.RoleEngineer)
	store.AddUser(3, "Sal Sales", "sal@example.com", auth.RoleSales)

	tokens, err := auth.NewAuthenticator(testSecret, time.Hour)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}

	hash, err := auth.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	accounts := fixedAccounts{
		"admin@example.com": {ID: 1, Email: "admin@example.com", PasswordHash: hash, Role: auth.RoleAdmin, FullName: "Sam Admin"},
	}

	tmpl, err := LoadTemplates("../../web/templates")
	if err != nil {
		t.Fatalf("templates: %v", err)
	}

	events := stream.New()
	api := New(store, auth.NewService(accounts, tokens), tokens, events, tmpl, ReadyProbe{}, "../../web/static", "test")
	return &testEnv{
		handler: api.Handler(1000, 1000, 1<<20),
		store:   store,
		tokens:  tokens,
		events:  events,
	}
}

// createRFQ posts the creation form and returns the detail path of the new
// record. Success lands on the listing, so the id comes from the store.
func (e *testEnv) createRFQ(t *testing.T, cookie *http.Cookie, form url.Values) string {
	t.Helper()
	rr := postForm(e.handler, "/rfq/new", form, cookie)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("create: %d, body %s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/rfq/" {
		t.Fatalf("create location = %q, want /rfq/", loc)
	}
	res, err := e.store.List(context.Background(), rfq.Viewer{UserID: 1, Role: auth.RoleAdmin}, rfq.ListFilter{})
	if err != nil {
		t.Fatalf("list after create: %v", err)
	}
	if len(res.Rows) == 0 {
		t.Fatal("store empty after create")
	}
	return fmt.Sprintf("/rfq/%d", res.Rows[0].ID)
}

func (e *testEnv) authCookie(t *testing.T, id auth.Identity) *http.Cookie {
	t.Helper()
	token, _, err := e.tokens.Issue(id)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &http.Cookie{Name: sessionCookie, Value: token}
}

func adminIdentity() auth.Identity {
	return auth.Identity{UserID: 1, Email: "admin@example.com", Role: auth.RoleAdmin, FullName: "Sam Admin"}
}

func postForm(handler http.Handler, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func get(handler http.Handler, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := get(env.handler, "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rr.Code)
	}
}

func TestLoginRejectsBadCredentialsSoftly(t *testing.T) {
	env := newTestEnv(t)

	for _, form := range []url.Values{
		{"email": {"admin@example.com"}, "password": {"wrong"}},
		{"email": {"nobody@example.com"}, "password": {"hunter22"}},
	} {
		rr := postForm(env.handler, "/auth/login", form, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("login: %d", rr.Code)
		}
		var body struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Success {
			t.Fatal("login should fail")
		}
		if body.Message != "Invalid email or password" {
			t.Fatalf("message = %q", body.Message)
		}
	}
}

func TestLoginSuccessSetsCookie(t *testing.T) {
	env := newTestEnv(t)

	rr := postForm(env.handler, "/auth/login",
		url.Values{"email": {"Admin@Example.com"}, "password": {"hunter22"}}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d, body %s", rr.Code, rr.Body.String())
	}

	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		User    struct {
			Role string `json:"role"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || body.Token == "" || body.User.Role != "admin" {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}

	var found bool
	for _, c := range rr.Result().Cookies() {
		if c.Name == sessionCookie && c.Value == body.Token && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatal("session cookie not set")
	}
}

func TestAuthStatesAreDistinct(t *testing.T) {
	env := newTestEnv(t)

	// Page request without a token bounces to the login page.
	rr := get(env.handler, "/rfq/", nil)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/login" {
		t.Fatalf("want redirect to /login, got %d %q", rr.Code, rr.Header().Get("Location"))
	}

	// JSON routes answer 401 with a state-specific message.
	cases := []struct {
		name    string
		cookie  *http.Cookie
		message string
	}{
		{"absent", nil, "authentication required"},
		{"malformed", &http.Cookie{Name: sessionCookie, Value: "not-a-jwt"}, "invalid token"},
	}

	past := time.Now().Add(-2 * time.Hour)
	expiredTokens, err := auth.NewAuthenticator(testSecret, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expiredTokens = expiredTokens.WithClock(func() time.Time { return past })
	expired, _, err := expiredTokens.Issue(adminIdentity())
	if err != nil {
		t.Fatal(err)
	}
	cases = append(cases, struct {
		name    string
		cookie  *http.Cookie
		message string
	}{"expired", &http.Cookie{Name: sessionCookie, Value: expired}, "token expired"})

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := get(env.handler, "/v1/users?role=engineer", tc.cookie)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("code = %d", rr.Code)
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error != tc.message {
				t.Fatalf("error = %q, want %q", body.Error, tc.message)
			}
		})
	}
}

func TestCreateListAndDetailFlow(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	location := env.createRFQ(t, cookie, url.Values{
		"customer_name":     {"Acme Industries"},
		"rfq_received_date": {"2025-03-10"},
		"priority":          {"High"},
	})

	rr := get(env.handler, "/rfq/", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Acme Industries") {
		t.Fatal("created RFQ missing from listing")
	}

	rr = get(env.handler, location, cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("detail: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Enquiry") {
		t.Fatal("detail page missing initial status")
	}
}

func TestCreateRejectsMalformedDate(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	rr := postForm(env.handler, "/rfq/new", url.Values{
		"customer_name":     {"Acme"},
		"rfq_received_date": {"31-02-2025"},
	}, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "rfq_received_date must be YYYY-MM-DD") {
		t.Fatalf("body missing validation message: %s", rr.Body.String())
	}
	// The form comes back for correction, not a bare error page.
	if !strings.Contains(rr.Body.String(), "customer_name") {
		t.Fatal("form not re-rendered")
	}
}

func TestStatusUpdateEnforcesWorkflow(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	location := env.createRFQ(t, cookie, url.Values{
		"customer_name":     {"Acme"},
		"rfq_received_date": {"2025-03-10"},
	})

	// Lost without a reason is a 400 with the rule message on the page.
	rr := postForm(env.handler, location+"/status", url.Values{"status": {"Lost"}}, cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Reason is required when status is Lost") {
		t.Fatalf("body missing rule message: %s", rr.Body.String())
	}

	rr = postForm(env.handler, location+"/status", url.Values{
		"status": {"Lost"},
		"reason": {"budget cancelled"},
	}, cookie)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != location {
		t.Fatalf("clean transition rejected: %d %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = get(env.handler, location, cookie)
	if !strings.Contains(rr.Body.String(), "budget cancelled") {
		t.Fatal("reason missing from detail page")
	}
}

func TestUsersEndpoint(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	rr := get(env.handler, "/v1/users?role=engineer", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Erin Engineer") {
		t.Fatalf("body = %s", rr.Body.String())
	}

	rr = get(env.handler, "/v1/users?role=superuser", cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown role: %d", rr.Code)
	}
}

func TestMonthlyPerformanceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	env.createRFQ(t, cookie, url.Values{
		"customer_name":     {"Acme"},
		"rfq_received_date": {"2025-03-10"},
	})

	rr := get(env.handler, "/v1/reports/monthly-performance?year=2025", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("report: %d, body %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Year   int `json:"year"`
		Months []struct {
			Month     string `json:"month"`
			TotalRFQs int64  `json:"total_rfqs"`
		} `json:"months"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Year != 2025 || len(body.Months) != 1 || body.Months[0].Month != "2025-03" {
		t.Fatalf("unexpected report: %s", rr.Body.String())
	}

	rr = get(env.handler, "/v1/reports/monthly-performance?year=banana", cookie)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad year: %d", rr.Code)
	}
}

func TestDeleteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin := env.authCookie(t, adminIdentity())

	location := env.createRFQ(t, admin, url.Values{
		"customer_name":     {"Acme"},
		"rfq_received_date": {"2025-03-10"},
	})

	sales := env.authCookie(t, auth.Identity{UserID: 3, Email: "sal@example.com", Role: auth.RoleSales, FullName: "Sal Sales"})
	rr := postForm(env.handler, location+"/delete", url.Values{}, sales)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("sales delete: %d", rr.Code)
	}

	rr = postForm(env.handler, location+"/delete", url.Values{}, admin)
	if rr.Code != http.StatusSeeOther || rr.Header().Get("Location") != "/rfq/" {
		t.Fatalf("admin delete: %d %q", rr.Code, rr.Header().Get("Location"))
	}
}

func TestStaticScriptsLoadUnderCSP(t *testing.T) {
	env := newTestEnv(t)

	// Scripts ship as static files so the default-src 'self' policy admits
	// them. They must be reachable without a session: the login page needs
	// its script before any cookie exists.
	rr := get(env.handler, "/static/dashboard.js", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard.js: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "EventSource") {
		t.Fatal("dashboard.js missing live-updates wiring")
	}
	rr = get(env.handler, "/static/login.js", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("login.js: %d", rr.Code)
	}

	rr = get(env.handler, "/dashboard/", env.authCookie(t, adminIdentity()))
	if rr.Code != http.StatusOK {
		t.Fatalf("dashboard: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, `src="/static/dashboard.js"`) {
		t.Fatal("dashboard page does not reference its script")
	}
	if strings.Contains(body, "<script>") {
		t.Fatal("dashboard page carries an inline script")
	}
	csp := rr.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "default-src 'self'") {
		t.Fatalf("csp = %q", csp)
	}
}

func TestPaginationLinksKeepFilters(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	for _, name := range []string{"Acme One", "Acme Two"} {
		env.createRFQ(t, cookie, url.Values{
			"customer_name":     {name},
			"rfq_received_date": {"2025-03-10"},
		})
	}

	rr := get(env.handler, "/rfq/?search=Acme&limit=1", cookie)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d", rr.Code)
	}
	body := rr.Body.String()
	next := "/rfq/?limit=1&amp;page=2&amp;search=Acme"
	if !strings.Contains(body, next) {
		t.Fatalf("next link %q missing from page:\n%s", next, body)
	}
}

func TestStatusEventCarriesOldStatus(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.authCookie(t, adminIdentity())

	location := env.createRFQ(t, cookie, url.Values{
		"customer_name":     {"Acme"},
		"rfq_received_date": {"2025-03-10"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := env.events.Subscribe(ctx)

	rr := postForm(env.handler, location+"/status", url.Values{
		"status": {"Under Review"},
	}, cookie)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("update: %d, body %s", rr.Code, rr.Body.String())
	}

	select {
	case evt := <-events:
		if evt.OldStatus != string(rfq.StatusEnquiry) || evt.NewStatus != string(rfq.StatusUnderReview) {
			t.Fatalf("transition = %q -> %q", evt.OldStatus, evt.NewStatus)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event published")
	}

	// Re-posting the same status changes nothing, so nothing is announced.
	rr = postForm(env.handler, location+"/status", url.Values{
		"status": {"Under Review"},
	}, cookie)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("repeat update: %d", rr.Code)
	}
	select {
	case evt := <-events:
		t.Fatalf("unexpected event for no-op update: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}
