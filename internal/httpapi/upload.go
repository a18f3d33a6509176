package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mickamy/contentorm/content"
	"github.com/mickamy/contentorm/internal/apperr"
	"github.com/mickamy/contentorm/internal/upload"
	"github.com/mickamy/contentorm/restquery"
)

const maxMultipartMemory = 32 << 20

// handleUpload stores every file of the "files" form field. An optional
// "fileInfo" field holds the JSON Info of the files, in the same order.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, r, apperr.Wrap(err, http.StatusBadRequest, "invalid multipart body"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, r, apperr.BadRequest("Files are empty"))
		return
	}
	infos := make([]upload.Info, len(headers))
	for i, raw := range r.MultipartForm.Value["fileInfo"] {
		if i >= len(infos) {
			break
		}
		if err := json.Unmarshal([]byte(raw), &infos[i]); err != nil {
			writeError(w, r, apperr.Wrap(err, http.StatusBadRequest, "invalid fileInfo"))
			return
		}
	}

	uploaded := make([]content.Entry, 0, len(headers))
	for i, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(w, r, apperr.Wrap(err, http.StatusBadRequest, "could not read "+fh.Filename))
			return
		}
		e, err := h.uploads.Upload(r.Context(), fh.Filename, f, infos[i])
		_ = f.Close()
		if err != nil {
			writeError(w, r, err)
			return
		}
		uploaded = append(uploaded, e)
	}
	writeJSON(w, http.StatusOK, uploaded)
}

func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	params := restquery.FromValues(r.URL.Query())
	var (
		list []content.Entry
		err  error
	)
	if _, search := params[restquery.ParamQuery]; search {
		list, err = h.uploads.Search(r.Context(), params)
	} else {
		list, err = h.uploads.Find(r.Context(), params)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []content.Entry{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCountFiles(w http.ResponseWriter, r *http.Request) {
	n, err := h.uploads.Count(r.Context(), restquery.FromValues(r.URL.Query()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *Handler) handleGetFile(w http.ResponseWriter, r *http.Request) {
	e, err := h.uploads.FindOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	e, err := h.uploads.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) handleUpdateFileInfo(w http.ResponseWriter, r *http.Request) {
	var info upload.Info
	if err := decodeJSON(r, &info); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := h.uploads.UpdateInfo(r.Context(), chi.URLParam(r, "id"), info)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
