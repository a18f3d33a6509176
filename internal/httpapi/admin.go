package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cast"

	"github.com/mickamy/contentorm/internal/admin"
	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/restquery"
)

// data wraps admin responses the way the admin panel reads them.
type data struct {
	Data any `json:"data"`
}

func userID(r *http.Request) (int64, error) {
	id, err := cast.ToInt64E(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid id %s", chi.URLParam(r, "id"))
	}
	return id, nil
}

func (h *Handler) sanitizeUsers(list []admin.User) []admin.SanitizedUser {
	out := make([]admin.SanitizedUser, len(list))
	for i, u := range list {
		out[i] = h.users.Sanitize(u)
	}
	return out
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	pq, err := restquery.PageFromValues(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.users.FindPage(r.Context(), pq)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data{restquery.Page[admin.SanitizedUser]{
		Results:    h.sanitizeUsers(page.Results),
		Pagination: page.Pagination,
	}})
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in admin.CreateUser
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, data{h.users.Sanitize(u)})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.FindOne(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data{h.users.Sanitize(u)})
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch admin.UserPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.UpdateByID(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data{h.users.Sanitize(u)})
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.DeleteByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if u == nil {
		writeError(w, r, apperr.NotFound("User not found"))
		return
	}
	writeJSON(w, http.StatusOK, data{h.users.Sanitize(*u)})
}

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

func (h *Handler) handleBatchDeleteUsers(w http.ResponseWriter, r *http.Request) {
	var req batchDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, apperr.Validation("ids must contain at least 1 items"))
		return
	}
	deleted, err := h.users.DeleteByIDs(r.Context(), req.IDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data{h.sanitizeUsers(deleted)})
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data{roles})
}

func (h *Handler) handleRegistrationInfo(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("registrationToken")
	if token == "" {
		writeError(w, r, apperr.Validation("registrationToken is required"))
		return
	}
	info, err := h.users.FindRegistrationInfo(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if info == nil {
		writeError(w, r, apperr.BadRequest("Invalid registrationToken"))
		return
	}
	writeJSON(w, http.StatusOK, data{info})
}

type registerRequest struct {
	RegistrationToken string `json:"registrationToken"`
	UserInfo          struct {
		Firstname string `json:"firstname"`
		Lastname  string `json:"lastname"`
		Password  string `json:"password"`
	} `json:"userInfo"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := h.users.Register(r.Context(), admin.Registration{
		RegistrationToken: req.RegistrationToken,
		Firstname:         req.UserInfo.Firstname,
		Lastname:          req.UserInfo.Lastname,
		Password:          req.UserInfo.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data{map[string]any{"user": h.users.Sanitize(u)}})
}
