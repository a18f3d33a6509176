// Package httpapi exposes the content, admin and upload services over a
// REST API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/internal/admin"
	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/internal/upload"
)

// Deps are the services the API serves.
type Deps struct {
	Store   *content.Store
	Users   *admin.Users
	Roles   *admin.Roles
	Uploads *upload.Service
	// Storage, when set, serves the stored files under its base URL.
	Storage *upload.LocalProvider
	Logger  zerolog.Logger
}

type Handler struct {
	store   *content.Store
	users   *admin.Users
	roles   *admin.Roles
	uploads *upload.Service
	routes  chi.Routes
}

func NewRouter(deps Deps) http.Handler {
	h := &Handler{store: deps.Store, users: deps.Users, roles: deps.Roles, uploads: deps.Uploads}
	r := chi.NewRouter()

	r.Use(hlog.NewHandler(deps.Logger))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)

	r.Route("/content-manager/{uid}", func(cm chi.Router) {
		cm.Get("/", h.handleFind)
		cm.Post("/", h.handleCreate)
		cm.Get("/count", h.handleCount)
		cm.Get("/{id}", h.handleFindOne)
		cm.Put("/{id}", h.handleUpdate)
		cm.Delete("/{id}", h.handleDelete)
	})

	r.Route("/admin", func(a chi.Router) {
		a.Get("/users", h.handleListUsers)
		a.Post("/users", h.handleCreateUser)
		a.Post("/users/batch-delete", h.handleBatchDeleteUsers)
		a.Get("/users/{id}", h.handleGetUser)
		a.Put("/users/{id}", h.handleUpdateUser)
		a.Delete("/users/{id}", h.handleDeleteUser)
		a.Get("/roles", h.handleListRoles)
		a.Get("/registration-info", h.handleRegistrationInfo)
		a.Post("/register", h.handleRegister)
	})

	r.Route("/upload", func(u chi.Router) {
		u.Post("/", h.handleUpload)
		u.Get("/files", h.handleListFiles)
		u.Get("/files/count", h.handleCountFiles)
		u.Get("/files/{id}", h.handleGetFile)
		u.Delete("/files/{id}", h.handleDeleteFile)
		u.Put("/files/{id}/info", h.handleUpdateFileInfo)
	})

	r.Route("/users-permissions", func(up chi.Router) {
		up.Get("/permissions", h.handlePermissions)
		up.Get("/routes", h.handleRoutes)
		up.Get("/policies", h.handlePolicies)
	})

	if deps.Storage != nil && strings.HasPrefix(deps.Storage.BaseURL(), "/") {
		prefix := deps.Storage.BaseURL()
		r.Handle(prefix+"/*", http.StripPrefix(prefix, http.FileServer(deps.Storage.FileSystem())))
	}

	h.routes = r
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// errorBody is the error payload the admin panel expects.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		e = apperr.Internal(err)
	}
	if e.Status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	}
	writeJSON(w, e.Status, errorBody{
		StatusCode: e.Status,
		Error:      http.StatusText(e.Status),
		Message:    e.Message,
	})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	// numbers stay exact until an attribute coerces them
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(err, http.StatusBadRequest, "invalid payload")
	}
	return nil
}
