package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mickamy/contentorm/schema"
)

// contentActions are the controller actions of every content type.
var contentActions = []string{"find", "findOne", "count", "create", "update", "delete"}

var uploadActions = []string{"upload", "find", "findOne", "count", "destroy", "updateInfo"}

// policies available to permissions. The empty policy is implied.
var policies = []string{
	"plugins::users-permissions.isauthenticated",
	"plugins::users-permissions.ratelimit",
}

type action struct {
	Enabled bool   `json:"enabled"`
	Policy  string `json:"policy"`
}

type controllers struct {
	Controllers map[string]map[string]action `json:"controllers"`
}

func disabled(actions []string) map[string]action {
	out := make(map[string]action, len(actions))
	for _, a := range actions {
		out[a] = action{}
	}
	return out
}

// handlePermissions lists every controller action a role can be granted,
// grouped by application and plugin.
func (h *Handler) handlePermissions(w http.ResponseWriter, _ *http.Request) {
	app := controllers{Controllers: map[string]map[string]action{}}
	for _, m := range h.store.Registry().Models() {
		if m.UID == schema.FileModelUID {
			continue
		}
		app.Controllers[m.UID] = disabled(contentActions)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"permissions": map[string]controllers{
			"application": app,
			"upload":      {Controllers: map[string]map[string]action{"upload": disabled(uploadActions)}},
		},
	})
}

type route struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Handler string `json:"handler"`
}

// handleRoutes lists the API routes grouped by their first path segment.
func (h *Handler) handleRoutes(w http.ResponseWriter, r *http.Request) {
	grouped := map[string][]route{}
	err := chi.Walk(h.routes, func(method, path string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		path = strings.TrimSuffix(path, "/")
		if strings.HasSuffix(path, "/*") {
			return nil
		}
		group, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
		grouped[group] = append(grouped[group], route{Method: method, Path: path, Handler: handlerName(method, path)})
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, list := range grouped {
		sort.Slice(list, func(i, j int) bool {
			if list[i].Path != list[j].Path {
				return list[i].Path < list[j].Path
			}
			return list[i].Method < list[j].Method
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"routes": grouped})
}

// handlerName names a route after its last static segment and method,
// e.g. "users.GET".
func handlerName(method, path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if s := segments[i]; s != "" && !strings.HasPrefix(s, "{") {
			return s + "." + method
		}
	}
	return method
}

func (h *Handler) handlePolicies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
}
