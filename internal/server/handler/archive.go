package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/refmet/catmarket/internal/domain"
)

// archivePrefix scopes the archive API to the settlement export area of the
// bucket; nothing outside it is listable or downloadable.
const archivePrefix = "archive/settlements/"

// ArchiveHandler serves the settlement archive inventory for bookkeeping
// tooling: what the sweep has exported, and the exports themselves.
type ArchiveHandler struct {
	blobs  domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		blobs:  blobs,
		logger: logger,
	}
}

// listArchiveResponse wraps the archive inventory response.
type listArchiveResponse struct {
	Objects []domain.BlobInfo `json:"objects"`
}

// List returns the exported settlement archive objects.
// GET /api/archive
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	objects, err := h.blobs.List(r.Context(), archivePrefix)
	if err != nil {
		writeDomainError(w, r, h.logger, "list archive", err)
		return
	}

	if objects == nil {
		objects = []domain.BlobInfo{}
	}

	writeJSON(w, http.StatusOK, listArchiveResponse{Objects: objects})
}

// Download streams one settlement archive export. The path is the object key
// exactly as returned by List.
// GET /api/archive/{path...}
func (h *ArchiveHandler) Download(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "path")
	if !strings.HasPrefix(key, archivePrefix) || strings.Contains(key, "..") {
		writeError(w, http.StatusBadRequest, "invalid archive path")
		return
	}

	body, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		writeDomainError(w, r, h.logger, "download archive object", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("path", key),
			slog.String("error", err.Error()),
		)
	}
}
