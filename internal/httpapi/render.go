package httpapi

import (
	"embed"
	"fmt"
	"html/template"
	"log"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"tilestock/internal/domain"
	"tilestock/internal/invoice"
)

//go:embed templates/*.html
var templateFS embed.FS

const flashCookie = "tilestock_flash"

var templateFuncs = template.FuncMap{
	"rupees": invoice.Rupees,
	"datetime": func(t interface{ Format(string) string }) string {
		return t.Format("02-01-2006 15:04")
	},
	"date": func(t interface{ Format(string) string }) string {
		return t.Format("02-01-2006")
	},
}

// parseTemplates builds one template set per page, each page combined with
// the shared layout.
func parseTemplates() (map[string]*template.Template, error) {
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, err
	}

	pages := make(map[string]*template.Template, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if name == "base.html" {
			continue
		}
		tmpl, err := template.New("base.html").
			Funcs(templateFuncs).
			ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return pages, nil
}

// pageData is the envelope every template executes against.
type pageData struct {
	Actor   *domain.Actor
	Flashes []string
	Error   string
	Data    any
}

func (a *API) render(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	if actor, ok := actorFrom(r); ok {
		data.Actor = &actor
	}
	data.Flashes = append(popFlashes(w, r), data.Flashes...)

	tmpl, ok := a.templates[page]
	if !ok {
		log.Printf("[httpapi] missing template %q", page)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("[httpapi] render %s: %v", page, err)
	}
}

// flash queues a one-shot notice shown on the next rendered page.
func flash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func popFlashes(w http.ResponseWriter, r *http.Request) []string {
	cookie, err := r.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	message, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		return nil
	}
	return []string{message}
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// pathID extracts the trailing numeric id from paths like /edit_tile/42.
func pathID(r *http.Request, prefix string) (int64, bool) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// parseRupees converts a decimal rupee form value to paise. Empty input
// returns ok with zero when optional.
func parseRupees(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return int64(math.Round(value * 100)), true
}

func parsePercent(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func parseInt(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
