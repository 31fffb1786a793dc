package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/common"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
	"github.com/elviscruz45/api-facturas-transmind/internal/gateway"
	"github.com/elviscruz45/api-facturas-transmind/internal/metrics"
	"github.com/elviscruz45/api-facturas-transmind/internal/resilience"
)

const invoicePrompt = `Analyze this content and extract invoice/receipt information. Return ONLY a JSON object with these exact fields (use null for missing values):

{
  "invoice_number": "string or null",
  "invoice_date": "YYYY-MM-DD format or null",
  "supplier_name": "string or null",
  "supplier_ruc": "11-digit RUC number or null",
  "customer_name": "string or null",
  "items": [
    {
      "description": "item description or null",
      "quantity": "numeric quantity or null",
      "unit_price": "numeric unit price or null",
      "total_price": "numeric total price or null",
      "unit": "measurement unit (unidad/kg/metro/etc) or null"
    }
  ],
  "subtotal": "numeric value or null",
  "tax": "numeric tax amount or null",
  "total": "numeric total amount or null",
  "currency": "PEN/USD/EUR etc or null",
  "confidence_score": "0.0 to 1.0 based on data quality"
}

Rules:
- Extract ALL visible line items/products from the invoice detail
- If no items are visible, use empty array [] for "items"
- For dates, use YYYY-MM-DD format
- For numbers, use numeric values without currency symbols
- Set confidence_score based on text clarity and completeness
- If no invoice data is found, set confidence_score to 0.0
- Return ONLY the JSON, no additional text or markdown`

// Config for the Gemini extraction client.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	ConcurrencyLimit int64
	MinCallSpacing   time.Duration
	MaxRetries       int
	BaseBackoff      time.Duration
}

// Client implements gateway.Extractor against the Gemini
// generateContent API. At most ConcurrencyLimit calls are in flight,
// calls are paced to the remote requests-per-minute ceiling, and
// rate-limit rejections retry with exponential backoff inside the
// admission slot; the slot is released only after the final attempt.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *slog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	exec    *resilience.Executor
	schema  map[string]any
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash-lite"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 5
	}
	if cfg.MinCallSpacing <= 0 {
		cfg.MinCallSpacing = 6 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 3 * time.Second
	}

	policy := resilience.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxRetries
	policy.InitialBackoff = cfg.BaseBackoff
	policy.BreakerEnabled = false

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
		sem:     semaphore.NewWeighted(cfg.ConcurrencyLimit),
		limiter: rate.NewLimiter(rate.Every(cfg.MinCallSpacing), 1),
		exec:    resilience.NewExecutor(policy, log),
		schema:  gateway.BuildInvoiceJSONSchema(),
	}
}

// Extract sends one prepared payload to the model and returns the
// parsed invoice. Transport failures and exhausted rate-limit retries
// come back as error responses; responses that do not parse into the
// expected shape come back as zero-confidence fallback records.
func (c *Client) Extract(ctx context.Context, req gateway.Request) gateway.Response {
	rid := uuid.New().String()
	start := time.Now()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return gateway.ErrorResponse("admission cancelled: "+err.Error(), req.Filename, req.SequenceID)
	}
	defer c.sem.Release(1)

	c.log.Info("gateway.extract.start",
		"req_id", rid,
		"filename", req.Filename,
		"sequence_id", req.SequenceID,
		"kind", string(req.Kind),
		"content_length", len(req.Content),
	)

	var raw string
	attempt := 0
	err := c.exec.Execute(ctx, "gateway.extract", func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.GatewayRetries.Inc()
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		text, err := c.generateContent(ctx, req)
		if err != nil {
			return err
		}
		raw = text
		return nil
	}, rateLimitClassifier)

	if err != nil {
		metrics.GatewayCalls.WithLabelValues("error").Inc()
		c.log.Error("gateway.extract.failed",
			"req_id", rid,
			"filename", req.Filename,
			"sequence_id", req.SequenceID,
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return gateway.ErrorResponse(err.Error(), req.Filename, req.SequenceID)
	}

	resp := c.parseResponse(raw, req.Filename, req.SequenceID)
	if resp.Success {
		metrics.GatewayCalls.WithLabelValues("ok").Inc()
		c.log.Info("gateway.extract.ok",
			"req_id", rid,
			"filename", req.Filename,
			"sequence_id", req.SequenceID,
			"confidence", resp.Invoice.ConfidenceScore,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	} else {
		metrics.GatewayCalls.WithLabelValues("parse_error").Inc()
	}
	return resp
}

// generateContent performs one generateContent call. A 429-class
// rejection maps to common.ErrRateLimited so the executor retries it;
// every other failure propagates immediately.
func (c *Client) generateContent(ctx context.Context, req gateway.Request) (string, error) {
	parts := []map[string]any{{"text": buildPrompt(req)}}
	if req.Kind == constants.KindImage {
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": "image/jpeg",
				"data":      req.Content,
			},
		})
	}

	body := map[string]any{
		"contents": []map[string]any{{"parts": parts}},
		"generationConfig": map[string]any{
			"response_mime_type": "application/json",
			"temperature":        0.1,
		},
	}
	bs, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Model)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", common.ErrGatewayTimeout, err)
		}
		return "", fmt.Errorf("gateway http error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusTooManyRequests || isResourceExhausted(raw) {
		return "", fmt.Errorf("%w: status %d", common.ErrRateLimited, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("gateway status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var gr struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("no candidates in gateway response")
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

// parseResponse turns the model's JSON text into an Invoice. A payload
// that fails to parse or validate is a content-quality failure: the
// caller gets a zero-confidence fallback record, never a retry.
func (c *Client) parseResponse(raw, filename string, sequenceID int) gateway.Response {
	content := []byte(strings.TrimSpace(raw))

	if err := gateway.ValidateJSONAgainstSchema(c.schema, content); err != nil {
		c.log.Error("gateway.extract.schema_validation_failed",
			"filename", filename,
			"sequence_id", sequenceID,
			"error", err,
			"response", truncate(raw, 200),
		)
		return gateway.ErrorResponse("failed to parse structured response", filename, sequenceID)
	}

	var inv entity.Invoice
	if err := json.Unmarshal(content, &inv); err != nil {
		c.log.Error("gateway.extract.unmarshal_failed",
			"filename", filename,
			"sequence_id", sequenceID,
			"error", err,
		)
		return gateway.ErrorResponse("failed to parse structured response", filename, sequenceID)
	}

	// Back-references come from the pipeline, never from the model.
	inv.SourceFile = filename
	inv.SequenceID = sequenceID
	return gateway.Response{Success: true, Invoice: inv}
}

func buildPrompt(req gateway.Request) string {
	if req.Kind == constants.KindImage {
		return invoicePrompt
	}
	var b strings.Builder
	b.WriteString("Analyze this text and extract invoice information.\n\nText content:\n")
	b.WriteString(req.Content)
	b.WriteString("\n\n")
	b.WriteString(invoicePrompt)
	return b.String()
}

func rateLimitClassifier(err error) resilience.Classification {
	return resilience.Classification{
		Retryable:     errors.Is(err, common.ErrRateLimited),
		RecordFailure: true,
	}
}

func isResourceExhausted(body []byte) bool {
	return bytes.Contains(body, []byte("RESOURCE_EXHAUSTED"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
