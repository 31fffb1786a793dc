package extract

import (
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFConfig carries the text-vs-scanned thresholds. The defaults match
// the values this service has always shipped with; no derivation is
// claimed for them.
type PDFConfig struct {
	MinCharsPerPage int
	TextPageRatio   float64
	MaxPagesToCheck int
}

func DefaultPDFConfig() PDFConfig {
	return PDFConfig{
		MinCharsPerPage: 50,
		TextPageRatio:   0.5,
		MaxPagesToCheck: 10,
	}
}

// PDFProcessor detects text-based vs scanned PDFs and extracts text
// from the former. Scanned PDFs are reported as requiring OCR and are
// never extracted here.
type PDFProcessor struct {
	cfg PDFConfig
	log *slog.Logger
}

func NewPDFProcessor(cfg PDFConfig, log *slog.Logger) *PDFProcessor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MinCharsPerPage <= 0 {
		cfg.MinCharsPerPage = 50
	}
	if cfg.TextPageRatio <= 0 {
		cfg.TextPageRatio = 0.5
	}
	if cfg.MaxPagesToCheck <= 0 {
		cfg.MaxPagesToCheck = 10
	}
	return &PDFProcessor{cfg: cfg, log: log}
}

// Process samples the document, classifies it and extracts normalized
// text when it is text-based. Sampled pages are joined with blank-line
// separators.
func (p *PDFProcessor) Process(filePath string) TextResult {
	pages, err := p.samplePages(filePath)
	if err != nil {
		p.log.Error("pdf.analysis_failed", "file_path", filePath, "error", err)
		return TextResult{Success: false, Err: "PDF analysis failed: " + err.Error()}
	}

	analysis := p.Analyze(pages)
	p.log.Info("pdf.analyzed",
		"file_path", filePath,
		"pages_checked", analysis.PagesChecked,
		"avg_chars_per_page", analysis.AvgCharsPerPage,
		"text_page_ratio", analysis.TextPageRatio,
		"is_text_based", analysis.IsTextBased,
	)

	if !analysis.IsTextBased {
		return TextResult{
			Success:     false,
			RequiresOCR: true,
			Err:         "scanned PDF processing not supported",
		}
	}

	var parts []string
	for _, page := range pages {
		trimmed := strings.TrimSpace(page)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	normalized := NormalizeText(strings.Join(parts, "\n\n"))
	if normalized == "" {
		// Classified text-based but extraction yielded nothing; treat
		// as scanned.
		return TextResult{
			Success:     false,
			RequiresOCR: true,
			Err:         "scanned PDF processing not supported",
		}
	}

	p.log.Info("pdf.text_extracted",
		"file_path", filePath,
		"pages_processed", len(pages),
		"text_length", len(normalized),
	)
	return TextResult{
		Success:            true,
		Content:            normalized,
		ContentLength:      len(normalized),
		IsPotentialInvoice: IsPotentialInvoiceText(normalized),
	}
}

// Analyze classifies sampled page texts. A document is text-based only
// when BOTH the average non-whitespace chars per page meet the
// threshold AND at least the configured ratio of sampled pages
// individually meet it; one text-rich page amid blank pages must not
// flip the whole document.
func (p *PDFProcessor) Analyze(pages []string) PDFAnalysis {
	analysis := PDFAnalysis{
		TotalPages:   len(pages),
		PagesChecked: len(pages),
	}
	if len(pages) == 0 {
		return analysis
	}

	for _, page := range pages {
		chars := trimmedLen(page)
		analysis.TotalCharacters += chars
		if chars >= p.cfg.MinCharsPerPage {
			analysis.PagesWithText++
		}
	}
	analysis.AvgCharsPerPage = float64(analysis.TotalCharacters) / float64(analysis.PagesChecked)
	analysis.TextPageRatio = float64(analysis.PagesWithText) / float64(analysis.PagesChecked)
	analysis.IsTextBased = analysis.AvgCharsPerPage >= float64(p.cfg.MinCharsPerPage) &&
		analysis.TextPageRatio >= p.cfg.TextPageRatio
	return analysis
}

// samplePages extracts plain text from up to MaxPagesToCheck pages.
func (p *PDFProcessor) samplePages(filePath string) ([]string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	total := r.NumPage()
	limit := total
	if p.cfg.MaxPagesToCheck < limit {
		limit = p.cfg.MaxPagesToCheck
	}

	pages := make([]string, 0, limit)
	for i := 1; i <= limit; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			p.log.Warn("pdf.page_text_failed", "file_path", filePath, "page", i, "error", err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func trimmedLen(s string) int {
	return len(strings.TrimSpace(s))
}
