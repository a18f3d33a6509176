package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/restquery"
)

// populateParam lists the associations to load, comma separated.
const populateParam = "_populate"

func (h *Handler) repository(w http.ResponseWriter, r *http.Request) (*content.Repository, bool) {
	repo, err := h.store.Repository(chi.URLParam(r, "uid"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return repo, true
}

// populate reads _populate; absent means every auto-populated association.
func populate(r *http.Request) []string {
	raw, ok := r.URL.Query()[populateParam]
	if !ok {
		return nil
	}
	out := []string{}
	for _, v := range raw {
		for _, alias := range strings.Split(v, ",") {
			if alias = strings.TrimSpace(alias); alias != "" {
				out = append(out, alias)
			}
		}
	}
	return out
}

func paged(r *http.Request) bool {
	q := r.URL.Query()
	return q.Has("page") || q.Has("pageSize")
}

func (h *Handler) handleFind(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if paged(r) {
		pq, err := restquery.PageFromValues(r.URL.Query())
		if err != nil {
			writeError(w, r, err)
			return
		}
		page, err := repo.FindPage(ctx, pq, populate(r))
		if err != nil {
			writeError(w, r, err)
			return
		}
		page.Results = repo.SanitizeAll(page.Results)
		writeJSON(w, http.StatusOK, page)
		return
	}

	params := restquery.FromValues(r.URL.Query())
	var (
		list []content.Entry
		err  error
	)
	if _, search := params[restquery.ParamQuery]; search {
		list, err = repo.Search(ctx, params, populate(r))
	} else {
		list, err = repo.Find(ctx, params, populate(r))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []content.Entry{}
	}
	writeJSON(w, http.StatusOK, repo.SanitizeAll(list))
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	params := restquery.FromValues(r.URL.Query())
	var (
		n   int64
		err error
	)
	if _, search := params[restquery.ParamQuery]; search {
		n, err = repo.CountSearch(r.Context(), params)
	} else {
		n, err = repo.Count(r.Context(), params)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleFindOne(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	e, err := repo.FindOne(r.Context(), chi.URLParam(r, "id"), populate(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo.Sanitize(e))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	var values content.Entry
	if err := decodeJSON(r, &values); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := repo.Create(r.Context(), values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo.Sanitize(e))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	var values content.Entry
	if err := decodeJSON(r, &values); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := repo.Update(r.Context(), chi.URLParam(r, "id"), values)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo.Sanitize(e))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repository(w, r)
	if !ok {
		return
	}
	e, err := repo.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo.Sanitize(e))
}
