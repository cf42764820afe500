// Package httpapi serves the server-rendered web UI: login, inventory
// dashboard, billing, invoices, reports, and user administration.
package httpapi

import (
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"tilestock/internal/domain"
	"tilestock/internal/service"
	"tilestock/internal/session"
	"tilestock/internal/store"
)

type API struct {
	service   *service.Service
	sessions  *session.Manager
	shopName  string
	templates map[string]*template.Template
}

func New(svc *service.Service, sessions *session.Manager, shopName string) (*API, error) {
	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	if shopName == "" {
		shopName = "Sita Ram Traders"
	}
	return &API{
		service:   svc,
		sessions:  sessions,
		shopName:  shopName,
		templates: templates,
	}, nil
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", a.handleLogin)
	mux.HandleFunc("/logout", a.requireAuth(a.handleLogout))
	mux.HandleFunc("/dashboard", a.requireAuth(a.handleDashboard))

	mux.HandleFunc("/add_tile", a.requireAuth(a.handleAddTile, domain.RoleAdmin))
	mux.HandleFunc("/edit_tile/", a.requireAuth(a.handleEditTile, domain.RoleAdmin))
	mux.HandleFunc("/delete_tile/", a.requireAuth(a.handleDeleteTile, domain.RoleAdmin))

	mux.HandleFunc("/billing", a.requireAuth(a.handleBilling))
	mux.HandleFunc("/invoice/", a.requireAuth(a.handleInvoice))
	mux.HandleFunc("/invoice_pdf/", a.requireAuth(a.handleInvoicePDF))
	mux.HandleFunc("/stock_availability_pdf", a.requireAuth(a.handleStockPDF, domain.RoleAdmin))

	mux.HandleFunc("/history", a.requireAuth(a.handleHistory))
	mux.HandleFunc("/sales_report", a.requireAuth(a.handleSalesReport))
	mux.HandleFunc("/edit_bill/", a.requireAuth(a.handleEditBill, domain.RoleAdmin))
	mux.HandleFunc("/delete_bill/", a.requireAuth(a.handleDeleteBill, domain.RoleAdmin))

	mux.HandleFunc("/admin/users", a.requireAuth(a.handleUsers, domain.RoleAdmin))
	mux.HandleFunc("/admin/users/create", a.requireAuth(a.handleUserCreate, domain.RoleAdmin))
	mux.HandleFunc("/admin/users/", a.requireAuth(a.handleUserActions, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[httpapi] %s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, time.Since(started).Round(time.Millisecond))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requireAuth validates the session cookie and attaches the actor to the
// request context. Unauthenticated requests are redirected to the login
// page; requests with an insufficient role are bounced to the dashboard.
func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := a.sessions.Actor(r)
		if err != nil {
			flash(w, "Please login to access this page")
			redirect(w, r, "/")
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			flash(w, "Access denied. Admin privileges required.")
			redirect(w, r, "/dashboard")
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func actorFrom(r *http.Request) (domain.Actor, bool) {
	return service.ActorFromContext(r.Context())
}

// -------- auth --------

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, err := a.sessions.Actor(r); err == nil {
			redirect(w, r, "/dashboard")
			return
		}
		a.render(w, r, http.StatusOK, "login.html", pageData{})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			a.render(w, r, http.StatusBadRequest, "login.html", pageData{Error: "invalid form submission"})
			return
		}
		username := r.PostFormValue("username")
		password := r.PostFormValue("password")

		user, err := a.service.Login(r.Context(), username, password)
		switch {
		case errors.Is(err, service.ErrAccountDeactivated):
			a.render(w, r, http.StatusForbidden, "login.html", pageData{Error: "Your account has been deactivated. Please contact admin."})
			return
		case errors.Is(err, service.ErrInvalidCredentials):
			a.render(w, r, http.StatusUnauthorized, "login.html", pageData{Error: "Invalid username or password"})
			return
		case err != nil:
			log.Printf("[httpapi] login: %v", err)
			a.render(w, r, http.StatusInternalServerError, "login.html", pageData{Error: "something went wrong, try again"})
			return
		}

		if err := a.sessions.Issue(w, *user); err != nil {
			log.Printf("[httpapi] issue session: %v", err)
			a.render(w, r, http.StatusInternalServerError, "login.html", pageData{Error: "something went wrong, try again"})
			return
		}
		flash(w, fmt.Sprintf("Welcome back, %s!", user.Username))
		redirect(w, r, "/dashboard")
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r)
	a.sessions.Clear(w, r, actor)
	flash(w, "You have been logged out successfully")
	redirect(w, r, "/")
}

// -------- dashboard --------

type dashboardData struct {
	Tiles  []domain.Tile
	Search string
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	search := strings.TrimSpace(r.URL.Query().Get("search"))
	tiles, err := a.service.ListTiles(r.Context(), search)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, "dashboard.html", pageData{Data: dashboardData{Tiles: tiles, Search: search}})
}

// renderServiceError maps service failures that escaped handler-level
// handling to a response.
func (a *API) renderServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		redirect(w, r, "/")
	case errors.Is(err, service.ErrForbidden):
		flash(w, "Access denied. Admin privileges required.")
		redirect(w, r, "/dashboard")
	case errors.Is(err, store.ErrNotFound):
		http.NotFound(w, r)
	default:
		log.Printf("[httpapi] %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
