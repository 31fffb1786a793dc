package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/elviscruz45/api-facturas-transmind/internal/archive"
	"github.com/elviscruz45/api-facturas-transmind/internal/common"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
	"github.com/elviscruz45/api-facturas-transmind/internal/export"
	"github.com/elviscruz45/api-facturas-transmind/internal/orchestrator"
)

// ResultStore persists a finished run. Optional; the pipeline works
// without a database.
type ResultStore interface {
	SaveResults(ctx context.Context, response entity.AggregateResponse) (uuid.UUID, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the collaborators behind the HTTP surface.
type Handler struct {
	archive      *archive.Extractor
	orchestrator *orchestrator.Orchestrator
	exporter     *export.Service
	store        ResultStore // nil when persistence is disabled
	pinger       Pinger      // nil when persistence is disabled
	scratchDir   string
	maxUploadMB  int64
	logger       *slog.Logger
}

func NewHandler(ext *archive.Extractor, orch *orchestrator.Orchestrator, exporter *export.Service, store ResultStore, pinger Pinger, scratchDir string, maxUploadMB int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		archive:      ext,
		orchestrator: orch,
		exporter:     exporter,
		store:        store,
		pinger:       pinger,
		scratchDir:   scratchDir,
		maxUploadMB:  maxUploadMB,
		logger:       logger,
	}
}

// Health answers 200 when the service is up. With persistence
// enabled, a failing database ping degrades the answer to 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Error("server.health.db_unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProcessArchiveXLSX is ProcessArchive with the workbook response
// forced, for clients that cannot set query parameters.
func (h *Handler) ProcessArchiveXLSX(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	q.Set("format", "xlsx")
	r.URL.RawQuery = q.Encode()
	h.ProcessArchive(w, r)
}

// ProcessArchive accepts a WhatsApp export ZIP as multipart form field
// "archive", runs the pipeline, and answers with the aggregate
// response. Per-file failures never fail the request; the aggregate is
// returned with HTTP 200 even when every file errored. format=xlsx
// returns a workbook instead of JSON.
func (h *Handler) ProcessArchive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadMB<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart request: "+err.Error())
		return
	}

	upload, header, err := r.FormFile("archive")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"archive\"")
		return
	}
	defer func() {
		_ = upload.Close()
	}()

	zipPath, err := h.spoolUpload(upload)
	if err != nil {
		h.logger.Error("server.process.spool_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer func() {
		_ = os.Remove(zipPath)
	}()

	h.logger.Info("server.process.start",
		"archive", header.Filename,
		"size_bytes", header.Size,
	)

	descriptors, cleanup, err := h.archive.ExtractZip(r.Context(), zipPath, h.scratchDir)
	defer cleanup()
	if err != nil {
		h.logger.Error("server.process.extract_failed", "error", err)
		writeError(w, http.StatusBadRequest, "failed to extract archive: "+err.Error())
		return
	}

	response := h.orchestrator.Process(r.Context(), descriptors)

	if h.store != nil {
		if runID, err := h.store.SaveResults(r.Context(), response); err != nil {
			// Persistence is best-effort; the caller still gets the
			// extraction results.
			h.logger.Error("server.process.save_failed", "error", err)
		} else {
			h.logger.Info("server.process.saved", "run_id", runID.String())
		}
	}

	h.logger.Info("server.process.done",
		"archive", header.Filename,
		"total_processed", response.TotalProcessed,
		"success_count", response.SuccessCount,
		"error_count", len(response.Errors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if r.URL.Query().Get("format") == "xlsx" {
		data, err := h.exporter.BuildXLSX(response)
		if err != nil {
			h.logger.Error("server.process.export_failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to build workbook")
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="invoices.xlsx"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

// spoolUpload writes the uploaded archive to the scratch directory so
// archive/zip can seek it.
func (h *Handler) spoolUpload(upload io.Reader) (string, error) {
	tmp, err := os.CreateTemp(h.scratchDir, "upload-*.zip")
	if err != nil {
		return "", common.WrapError(err, "create spool file")
	}
	path := tmp.Name()
	_, copyErr := io.Copy(tmp, upload)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = os.Remove(path)
		return "", common.WrapError(copyErr, "spool upload")
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return "", common.WrapError(closeErr, "spool upload")
	}
	return filepath.Clean(path), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
