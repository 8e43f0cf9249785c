package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/offsync/internal/common"
	"github.com/dmitrijs2005/offsync/internal/server/models"
	"github.com/dmitrijs2005/offsync/internal/server/services"
	"github.com/go-chi/chi/v5"
)

const (
	maxJSONBody     = 16 << 20
	multipartMemory = 8 << 20
)

func (h *Handler) push(w http.ResponseWriter, r *http.Request) {
	var req models.PushRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.svc.Push(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) pull(w http.ResponseWriter, r *http.Request) {
	var req models.PullRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	resp, err := h.svc.Pull(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		if r.ContentLength > h.maxUploadSize {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		h.fail(w, r, fmt.Errorf("invalid multipart body: %w: %w", common.ErrValidation, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, fmt.Errorf("file part: %w: %w", common.ErrValidation, err))
		return
	}
	defer file.Close()

	in := services.UploadInput{
		ID:       r.FormValue("id"),
		Filename: r.FormValue("filename"),
		MimeType: r.FormValue("mimeType"),
		FriendID: r.FormValue("friendId"),
		Body:     file,
		Size:     header.Size,
	}
	if in.Filename == "" {
		in.Filename = header.Filename
	}
	if in.MimeType == "" {
		in.MimeType = header.Header.Get("Content-Type")
	}

	resp, err := h.svc.Upload(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		h.fail(w, r, common.ErrNotFound)
		return
	}

	if link, ok, err := h.svc.DirectURL(r.Context(), key); err != nil {
		h.fail(w, r, err)
		return
	} else if ok {
		http.Redirect(w, r, link, http.StatusTemporaryRedirect)
		return
	}

	obj, err := h.svc.Open(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.log.Warn(r.Context(), "file stream interrupted", "key", key, "error", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case services.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w: %w", common.ErrMalformedChange, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}
