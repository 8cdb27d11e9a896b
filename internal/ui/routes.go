package ui

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all UI routes on the given router. The caller
// installs SessionMiddleware on the router before any routes.
func (ui *UI) RegisterRoutes(r chi.Router) {
	r.Get("/", ui.HandleLogin)
	r.Get("/login", ui.HandleLogin)
	r.Post("/login", ui.HandleLoginPost)
	r.Get("/logout", ui.HandleLogout)
	r.Get("/403", ui.HandleForbidden)

	r.Group(func(r chi.Router) {
		r.Use(ui.AdminMiddleware)
		r.Get("/home/admin", ui.HandleAdminHome)
		r.Post("/register", ui.HandleRegister)
	})
	r.Get("/home/{username}", ui.HandleHome)

	if ui.staticDir != "" {
		r.Handle("/static/*", FlatFileHandler("/static/", ui.staticDir))
	}
	if ui.avatars != nil {
		r.Handle("/uploads/*", FlatFileHandler("/uploads/", ui.avatars.Dir()))
	}

	r.NotFound(ui.HandleNotFound)
}

// FlatFileHandler serves files directly inside dir under prefix. Nested
// paths and directory listings are refused.
func FlatFileHandler(prefix, dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path
		if name == "" || strings.Contains(name, "/") || strings.Contains(name, `\`) || name != path.Clean(name) || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}))
}
