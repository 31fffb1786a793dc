package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/elviscruz45/api-facturas-transmind/internal/archive"
	"github.com/elviscruz45/api-facturas-transmind/internal/classifier"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
	"github.com/elviscruz45/api-facturas-transmind/internal/export"
	"github.com/elviscruz45/api-facturas-transmind/internal/extract"
	"github.com/elviscruz45/api-facturas-transmind/internal/gateway"
	"github.com/elviscruz45/api-facturas-transmind/internal/orchestrator"
	"github.com/elviscruz45/api-facturas-transmind/internal/sorter"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGateway struct{}

func (fakeGateway) Extract(_ context.Context, req gateway.Request) gateway.Response {
	inv := entity.NewInvoice(req.Filename, req.SequenceID, 0.8)
	return gateway.Response{Success: true, Invoice: inv}
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	log := discardLogger()
	orch := orchestrator.New(
		sorter.NewSorter(log),
		classifier.NewClassifier(log),
		extract.NewTextProcessor(log),
		extract.NewImageProcessor(2048, 2048, log),
		extract.NewPDFProcessor(extract.DefaultPDFConfig(), log),
		fakeGateway{},
		log,
	)
	return NewHandler(archive.NewExtractor(log), orch, export.NewService(log), nil, nil, t.TempDir(), 300, log)
}

func multipartZip(t *testing.T, members map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var zipBuf bytes.Buffer
	zw := zip.NewWriter(&zipBuf)
	for name, content := range members {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Now()}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write member: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("archive", "export.zip")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(zipBuf.Bytes()); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func TestProcessArchiveReturnsAggregate(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartZip(t, map[string]string{
		"DOC-20260114-WA0001.txt": "FACTURA F001-42 total 100.00",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/process", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ProcessArchive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp entity.AggregateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalProcessed != 1 || resp.SuccessCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", resp.TotalProcessed, resp.SuccessCount)
	}
	if len(resp.Results) != 1 || resp.Results[0].SourceFile != "DOC-20260114-WA0001.txt" {
		t.Errorf("results = %+v", resp.Results)
	}
}

func TestProcessArchiveXLSXFormat(t *testing.T) {
	h := newTestHandler(t)
	body, contentType := multipartZip(t, map[string]string{
		"factura.txt": "FACTURA total 55",
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/process?format=xlsx", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	h.ProcessArchive(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Error("empty workbook body")
	}
}

func TestProcessArchiveRejectsMissingFile(t *testing.T) {
	h := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("other", "value")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.ProcessArchive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProcessArchiveRejectsCorruptZip(t *testing.T) {
	h := newTestHandler(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("archive", "broken.zip")
	_, _ = part.Write([]byte("this is not a zip"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	h.ProcessArchive(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
