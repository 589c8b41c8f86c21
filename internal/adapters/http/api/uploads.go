package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/okian/monthlyrank/internal/domain/model"
	"github.com/okian/monthlyrank/internal/domain/report"
)

// UploadDependencies defines the interface for upload processing.
type UploadDependencies interface {
	Submit(ctx context.Context, u model.Upload) (report.Report, error)
}

// UploadHandler handles result file uploads.
type UploadHandler struct {
	deps     UploadDependencies
	maxBytes int64
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(deps UploadDependencies, maxBytes int64) *UploadHandler {
	return &UploadHandler{deps: deps, maxBytes: maxBytes}
}

// HandlePostUpload handles POST /uploads. The file is either the multipart
// field "file" or the raw body named by ?filename=.
func (h *UploadHandler) HandlePostUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_upload"
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	filename, content, err := h.read(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", Wrap(op, err))
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	rep, err := h.deps.Submit(r.Context(), model.Upload{
		ID:         uuid.NewString(),
		Filename:   filename,
		Content:    content,
		ReceivedAt: time.Now().UTC(),
	})
	if err != nil {
		writePipelineError(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *UploadHandler) read(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return "", nil, err
		}
		defer f.Close()
		name, err := cleanName(hdr.Filename)
		if err != nil {
			return "", nil, err
		}
		content, err := io.ReadAll(f)
		return name, content, err
	}

	name, err := cleanName(r.URL.Query().Get("filename"))
	if err != nil {
		return "", nil, err
	}
	content, err := io.ReadAll(r.Body)
	return name, content, err
}

// cleanName keeps the base name of a client supplied filename.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("missing filename")
	}
	return filepath.Base(name), nil
}
