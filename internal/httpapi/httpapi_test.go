package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"tilestock/internal/domain"
	"tilestock/internal/service"
	"tilestock/internal/session"
	"tilestock/internal/store/sqlite"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAPI(t *testing.T) (*API, *service.Service) {
	t.Helper()
	repo, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	svc := service.New(repo, service.Options{})
	if err := svc.EnsureBootstrapAdmin(context.Background(), ""); err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}

	sessions := session.NewManager(testSecret, time.Hour, session.NewMemoryRegistry(), false)
	api, err := New(svc, sessions, "Sita Ram Traders")
	if err != nil {
		t.Fatalf("init api: %v", err)
	}
	return api, svc
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, handler http.Handler, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username, password string) *http.Cookie {
	t.Helper()
	rec := postForm(t, handler, "/", url.Values{
		"username": {username},
		"password": {password},
	}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("login status = %d, want 303", rec.Code)
	}
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.CookieName && cookie.Value != "" {
			return cookie
		}
	}
	t.Fatal("login did not set a session cookie")
	return nil
}

func adminCtx(t *testing.T, svc *service.Service) context.Context {
	t.Helper()
	admin, err := svc.Login(context.Background(), "admin", "admin123")
	if err != nil {
		t.Fatalf("service login: %v", err)
	}
	return service.WithActor(context.Background(), domain.Actor{
		UserID: admin.ID, Username: admin.Username, Role: admin.Role,
	})
}

func TestLoginPageRenders(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := get(t, api.Handler(), "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Login") {
		t.Fatal("login form not rendered")
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	api, _ := newTestAPI(t)
	rec := postForm(t, api.Handler(), "/", url.Values{
		"username": {"admin"},
		"password": {"nope"},
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Invalid username or password") {
		t.Fatal("error message not rendered")
	}
}

func TestLoginAndDashboard(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cookie := login(t, handler, "admin", "admin123")

	rec := get(t, handler, "/dashboard", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Inventory") {
		t.Fatal("dashboard not rendered")
	}
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()

	for _, path := range []string{"/dashboard", "/billing", "/history", "/sales_report", "/admin/users"} {
		rec := get(t, handler, path, nil)
		if rec.Code != http.StatusSeeOther {
			t.Errorf("%s status = %d, want 303", path, rec.Code)
			continue
		}
		if loc := rec.Header().Get("Location"); loc != "/" {
			t.Errorf("%s redirects to %q, want /", path, loc)
		}
	}
}

func TestStaffBlockedFromAdminRoutes(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()

	if _, err := svc.CreateUser(adminCtx(t, svc), domain.UserCreateRequest{
		Username: "staff1", Password: "secret99", ConfirmPassword: "secret99", Role: domain.RoleStaff,
	}); err != nil {
		t.Fatalf("create staff: %v", err)
	}
	cookie := login(t, handler, "staff1", "secret99")

	rec := postForm(t, handler, "/add_tile", url.Values{
		"brand": {"Kajaria"}, "size": {"2x2"}, "price": {"100"}, "quantity": {"10"},
	}, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/dashboard" {
		t.Fatalf("redirects to %q, want /dashboard", loc)
	}

	// The blocked request must not have changed inventory.
	tiles, err := svc.ListTiles(adminCtx(t, svc), "")
	if err != nil {
		t.Fatalf("list tiles: %v", err)
	}
	if len(tiles) != 0 {
		t.Fatalf("tile created despite forbidden role: %+v", tiles)
	}
}

func TestBillingFlowEndToEnd(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	cookie := login(t, handler, "admin", "admin123")

	tile, err := svc.CreateTile(adminCtx(t, svc), domain.TileRequest{
		Brand: "Kajaria", Size: "2x2", PricePaise: 10000, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("create tile: %v", err)
	}

	rec := postForm(t, handler, "/billing", url.Values{
		"customer_name":                  {"Ravi"},
		"gst":                            {"18"},
		"discount":                       {"20"},
		fmt.Sprintf("qty_%d", tile.ID):   {"5"},
		fmt.Sprintf("qty_%d", tile.ID+9): {"3"}, // unknown tile, ignored
	}, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("billing status = %d, want 303: %s", rec.Code, rec.Body.String())
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/invoice/") {
		t.Fatalf("redirects to %q, want /invoice/{id}", location)
	}

	page := get(t, handler, location, cookie)
	if page.Code != http.StatusOK {
		t.Fatalf("invoice status = %d, want 200", page.Code)
	}
	if !strings.Contains(page.Body.String(), "570.00") {
		t.Fatal("invoice total not rendered")
	}

	pdf := get(t, handler, "/invoice_pdf/"+strings.TrimPrefix(location, "/invoice/"), cookie)
	if pdf.Code != http.StatusOK {
		t.Fatalf("pdf status = %d, want 200", pdf.Code)
	}
	if !strings.HasPrefix(pdf.Body.String(), "%PDF") {
		t.Fatal("pdf output missing %PDF header")
	}

	after, err := svc.GetTile(adminCtx(t, svc), tile.ID)
	if err != nil {
		t.Fatalf("get tile: %v", err)
	}
	if after.Quantity != 5 {
		t.Fatalf("stock = %d, want 5", after.Quantity)
	}
}

func TestUnknownInvoiceReturns404(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cookie := login(t, handler, "admin", "admin123")

	rec := get(t, handler, "/invoice/424242", cookie)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cookie := login(t, handler, "admin", "admin123")

	rec := get(t, handler, "/logout", cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("logout status = %d, want 303", rec.Code)
	}

	// Replaying the old cookie no longer works.
	replay := get(t, handler, "/dashboard", cookie)
	if replay.Code != http.StatusSeeOther {
		t.Fatalf("replay status = %d, want 303", replay.Code)
	}
	if loc := replay.Header().Get("Location"); loc != "/" {
		t.Fatalf("replay redirects to %q, want /", loc)
	}
}

func TestUserAdminFlow(t *testing.T) {
	api, svc := newTestAPI(t)
	handler := api.Handler()
	cookie := login(t, handler, "admin", "admin123")

	rec := postForm(t, handler, "/admin/users/create", url.Values{
		"username":         {"staff1"},
		"password":         {"secret99"},
		"confirm_password": {"secret99"},
		"role":             {"staff"},
	}, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("create status = %d, want 303: %s", rec.Code, rec.Body.String())
	}

	user, err := svc.Login(context.Background(), "staff1", "secret99")
	if err != nil {
		t.Fatalf("created user cannot login: %v", err)
	}

	rec = postForm(t, handler, fmt.Sprintf("/admin/users/%d/toggle-active", user.ID), nil, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("toggle status = %d, want 303", rec.Code)
	}
	if _, err := svc.Login(context.Background(), "staff1", "secret99"); err == nil {
		t.Fatal("deactivated user can still login")
	}

	rec = postForm(t, handler, fmt.Sprintf("/admin/users/%d/delete", user.ID), nil, cookie)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("delete status = %d, want 303", rec.Code)
	}

	// Short passwords are rejected with the form re-rendered.
	rec = postForm(t, handler, "/admin/users/create", url.Values{
		"username":         {"staff2"},
		"password":         {"abc"},
		"confirm_password": {"abc"},
		"role":             {"staff"},
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "at least 6 characters") {
		t.Fatal("validation message not rendered")
	}
}

func TestTileFormValidationRerenders(t *testing.T) {
	api, _ := newTestAPI(t)
	handler := api.Handler()
	cookie := login(t, handler, "admin", "admin123")

	rec := postForm(t, handler, "/add_tile", url.Values{
		"brand": {""}, "size": {"2x2"}, "price": {"100"}, "quantity": {"10"},
	}, cookie)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Brand is required") {
		t.Fatal("validation message not rendered")
	}
}
