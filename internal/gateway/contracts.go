package gateway

import (
	"context"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

// Request carries one file's prepared content to the extraction
// service. Content is plain text for text/pdf kinds and base64-encoded
// bytes for images.
type Request struct {
	Content    string
	Kind       constants.FileKind
	Filename   string
	SequenceID int
}

// Response is the extraction outcome. Invoice is structurally valid
// with the correct back-references even on failure (confidence 0), so
// callers only ever branch on Success.
type Response struct {
	Success bool
	Invoice entity.Invoice
	Err     string
}

// Extractor is the black-box structured-extraction capability the
// orchestrator depends on.
type Extractor interface {
	Extract(ctx context.Context, req Request) Response
}

// ErrorResponse builds the failure shape: success false plus a valid
// zero-confidence invoice pointing back at the source file.
func ErrorResponse(errMsg, filename string, sequenceID int) Response {
	return Response{
		Success: false,
		Invoice: entity.NewInvoice(filename, sequenceID, 0),
		Err:     errMsg,
	}
}
