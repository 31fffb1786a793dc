package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/gateway"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastConfig(baseURL string) Config {
	return Config{
		BaseURL:          baseURL,
		APIKey:           "test-key",
		Model:            "test-model",
		Timeout:          2 * time.Second,
		ConcurrencyLimit: 5,
		MinCallSpacing:   time.Millisecond,
		MaxRetries:       3,
		BaseBackoff:      time.Millisecond,
	}
}

func modelReply(t *testing.T, payload string) string {
	t.Helper()
	body := map[string]any{
		"candidates": []map[string]any{{
			"content": map[string]any{
				"parts": []map[string]any{{"text": payload}},
			},
		}},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal reply: %v", err)
	}
	return string(bs)
}

const validInvoiceJSON = `{
	"invoice_number": "F001-1234",
	"invoice_date": "2026-01-14",
	"supplier_name": "Ferreteria Central",
	"supplier_ruc": "20123456789",
	"customer_name": null,
	"items": [
		{"description": "Cemento", "quantity": 10, "unit_price": 32.5, "total_price": 325.0, "unit": "bolsa"}
	],
	"subtotal": 325.0,
	"tax": 58.5,
	"total": 383.5,
	"currency": "PEN",
	"confidence_score": 0.92
}`

func TestExtractParsesValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		fmt.Fprint(w, modelReply(t, validInvoiceJSON))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content:    "FACTURA F001-1234 TOTAL 383.50",
		Kind:       constants.KindText,
		Filename:   "factura.txt",
		SequenceID: 3,
	})

	if !resp.Success {
		t.Fatalf("Extract failed: %s", resp.Err)
	}
	if got := resp.Invoice.ConfidenceScore; got != 0.92 {
		t.Errorf("confidence = %v, want 0.92", got)
	}
	if resp.Invoice.SourceFile != "factura.txt" || resp.Invoice.SequenceID != 3 {
		t.Errorf("back-reference = %q/%d, want factura.txt/3",
			resp.Invoice.SourceFile, resp.Invoice.SequenceID)
	}
	if resp.Invoice.InvoiceNumber == nil || *resp.Invoice.InvoiceNumber != "F001-1234" {
		t.Errorf("invoice_number not carried through")
	}
	if len(resp.Invoice.Items) != 1 {
		t.Errorf("items = %d, want 1", len(resp.Invoice.Items))
	}
}

func TestExtractRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error": {"status": "RESOURCE_EXHAUSTED"}}`)
			return
		}
		fmt.Fprint(w, modelReply(t, validInvoiceJSON))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "some invoice text", Kind: constants.KindText,
		Filename: "a.txt", SequenceID: 1,
	})

	if !resp.Success {
		t.Fatalf("Extract failed after retries: %s", resp.Err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestExtractDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error": {"status": "INTERNAL"}}`)
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "text", Kind: constants.KindText, Filename: "a.txt", SequenceID: 1,
	})

	if resp.Success {
		t.Fatal("expected failure response")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (no retry on 5xx)", got)
	}
	if resp.Invoice.ConfidenceScore != 0 {
		t.Errorf("fallback confidence = %v, want 0", resp.Invoice.ConfidenceScore)
	}
	if resp.Invoice.SourceFile != "a.txt" || resp.Invoice.SequenceID != 1 {
		t.Errorf("fallback must point back at the source file")
	}
}

func TestExtractRateLimitExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.MaxRetries = 3
	client := NewClient(cfg, discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "text", Kind: constants.KindText, Filename: "b.txt", SequenceID: 2,
	})

	if resp.Success {
		t.Fatal("expected failure after exhausting retries")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream calls = %d, want 3", got)
	}
}

func TestExtractMalformedModelOutputFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelReply(t, "this is not json"))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "text", Kind: constants.KindText, Filename: "c.txt", SequenceID: 4,
	})

	if resp.Success {
		t.Fatal("expected fallback response for unparseable model output")
	}
	if resp.Err != "failed to parse structured response" {
		t.Errorf("err = %q", resp.Err)
	}
	if resp.Invoice.ConfidenceScore != 0 {
		t.Errorf("fallback confidence = %v, want 0", resp.Invoice.ConfidenceScore)
	}
	if resp.Invoice.SourceFile != "c.txt" || resp.Invoice.SequenceID != 4 {
		t.Errorf("fallback back-reference wrong: %q/%d",
			resp.Invoice.SourceFile, resp.Invoice.SequenceID)
	}
}

func TestExtractSchemaViolationFallsBack(t *testing.T) {
	// Valid JSON but missing the required confidence_score.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelReply(t, `{"invoice_number": "X-1"}`))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "text", Kind: constants.KindText, Filename: "d.txt", SequenceID: 5,
	})

	if resp.Success {
		t.Fatal("expected fallback response for schema violation")
	}
}

func TestExtractConfidenceClampedFromModel(t *testing.T) {
	payload := `{"invoice_number": null, "invoice_date": null, "supplier_name": null,
		"supplier_ruc": null, "customer_name": null, "items": [], "subtotal": null,
		"tax": null, "total": null, "currency": null, "confidence_score": 1.7}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, modelReply(t, payload))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "text", Kind: constants.KindText, Filename: "e.txt", SequenceID: 6,
	})

	if !resp.Success {
		t.Fatalf("Extract failed: %s", resp.Err)
	}
	if resp.Invoice.ConfidenceScore != 1.0 {
		t.Errorf("confidence = %v, want clamped to 1.0", resp.Invoice.ConfidenceScore)
	}
}

func TestExtractImagePayloadUsesInlineData(t *testing.T) {
	var sawInline atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Contents []struct {
				Parts []map[string]any `json:"parts"`
			} `json:"contents"`
		}
		if err := json.Unmarshal(body, &req); err == nil && len(req.Contents) == 1 {
			for _, p := range req.Contents[0].Parts {
				if _, ok := p["inline_data"]; ok {
					sawInline.Store(true)
				}
			}
		}
		fmt.Fprint(w, modelReply(t, validInvoiceJSON))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	resp := client.Extract(context.Background(), gateway.Request{
		Content: "aGVsbG8=", Kind: constants.KindImage,
		Filename: "IMG-20260114-WA0001.jpg", SequenceID: 1,
	})

	if !resp.Success {
		t.Fatalf("Extract failed: %s", resp.Err)
	}
	if !sawInline.Load() {
		t.Error("image request must carry an inline_data part")
	}
}

func TestExtractHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		fmt.Fprint(w, modelReply(t, validInvoiceJSON))
	}))
	defer srv.Close()

	client := NewClient(fastConfig(srv.URL), discardLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp := client.Extract(ctx, gateway.Request{
		Content: "text", Kind: constants.KindText, Filename: "f.txt", SequenceID: 1,
	})
	if resp.Success {
		t.Fatal("expected failure on cancelled context")
	}
}
