package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/flashbet/internal/domain"
)

// ArchiveSource lists and opens archived settlement files.
type ArchiveSource interface {
	List(ctx context.Context) ([]domain.BlobInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// ArchiveHandler exposes the settled-bet archive.
type ArchiveHandler struct {
	archive ArchiveSource
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archive ArchiveSource, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, logger: logger}
}

type archiveFile struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"last_modified"`
}

// ListArchive returns every archived file.
// GET /api/archive
func (h *ArchiveHandler) ListArchive(w http.ResponseWriter, r *http.Request) {
	infos, err := h.archive.List(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "list archive", err)
		return
	}
	files := make([]archiveFile, 0, len(infos))
	for _, i := range infos {
		files = append(files, archiveFile{
			Path:         i.Path,
			Size:         i.Size,
			LastModified: i.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// GetArchiveFile streams one archived JSONL file.
// GET /api/archive/{path...}
func (h *ArchiveHandler) GetArchiveFile(w http.ResponseWriter, r *http.Request) {
	body, err := h.archive.Open(r.Context(), r.PathValue("path"))
	if err != nil {
		writeDomainError(w, r, h.logger, "open archive file", err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted",
			slog.String("path", r.PathValue("path")),
			slog.String("error", err.Error()),
		)
	}
}
