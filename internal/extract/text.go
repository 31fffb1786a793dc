package extract

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/elviscruz45/api-facturas-transmind/constants"
)

var digitRun = regexp.MustCompile(`\d{2,}`)

// TextProcessor extracts and normalizes text files and applies the
// invoice-likelihood heuristic that gates gateway dispatch.
type TextProcessor struct {
	log *slog.Logger
}

func NewTextProcessor(log *slog.Logger) *TextProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &TextProcessor{log: log}
}

// encodingFallbacks is the fixed decode order after UTF-8. Latin-1
// accepts every byte sequence, so the chain always terminates there
// for non-UTF-8 input; Windows-1252 stays listed to keep the fallback
// order explicit.
var encodingFallbacks = []struct {
	name string
	enc  encoding.Encoding
}{
	{"latin-1", charmap.ISO8859_1},
	{"cp1252", charmap.Windows1252},
}

// Process reads the file with encoding fallback, normalizes the
// content and evaluates the invoice-likelihood heuristic.
func (p *TextProcessor) Process(filePath string) TextResult {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		p.log.Error("text.read_failed", "file_path", filePath, "error", err)
		return TextResult{Success: false, Err: "failed to extract text content: " + err.Error()}
	}

	content, encodingName, ok := decodeWithFallback(raw)
	if !ok {
		p.log.Error("text.decode_failed", "file_path", filePath)
		return TextResult{Success: false, Err: "failed to extract text content"}
	}

	normalized := NormalizeText(content)
	p.log.Info("text.content_extracted",
		"file_path", filePath,
		"encoding", encodingName,
		"content_length", len(normalized),
	)

	return TextResult{
		Success:            true,
		Content:            normalized,
		ContentLength:      len(normalized),
		IsPotentialInvoice: IsPotentialInvoiceText(normalized),
	}
}

func decodeWithFallback(raw []byte) (string, string, bool) {
	if utf8.Valid(raw) {
		return string(raw), "utf-8", true
	}
	for _, fb := range encodingFallbacks {
		decoded, err := fb.enc.NewDecoder().Bytes(raw)
		if err != nil {
			continue
		}
		return string(decoded), fb.name, true
	}
	return "", "", false
}

// IsPotentialInvoiceText is true only when the content contains at
// least one bilingual invoice keyword AND a numeric run of two or more
// digits. Both conditions are required; the heuristic is a cheap local
// filter that avoids spending gateway calls on clearly non-invoice
// content.
func IsPotentialInvoiceText(content string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)

	keywordFound := false
	for _, kw := range constants.InvoiceKeywords {
		if strings.Contains(lower, kw) {
			keywordFound = true
			break
		}
	}
	return keywordFound && digitRun.MatchString(content)
}
