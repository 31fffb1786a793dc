package entity

import (
	"encoding/json"

	"github.com/elviscruz45/api-facturas-transmind/constants"
)

// LineItem is one row of an invoice detail. Every field is optional
// and independently missing.
type LineItem struct {
	Description *string  `json:"description"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *float64 `json:"unit_price"`
	TotalPrice  *float64 `json:"total_price"`
	Unit        *string  `json:"unit"`
}

// Invoice is the structured extraction result for one file.
// Confidence 0.0 means "no usable invoice data found" and is a valid
// value, not an error sentinel. SourceFile and SequenceID always point
// back at the originating ClassifiedRecord.
type Invoice struct {
	InvoiceNumber   *string    `json:"invoice_number"`
	InvoiceDate     *string    `json:"invoice_date"`
	SupplierName    *string    `json:"supplier_name"`
	SupplierRUC     *string    `json:"supplier_ruc"`
	CustomerName    *string    `json:"customer_name"`
	Items           []LineItem `json:"items"`
	Subtotal        *float64   `json:"subtotal"`
	Tax             *float64   `json:"tax"`
	Total           *float64   `json:"total"`
	Currency        *string    `json:"currency"`
	ConfidenceScore float64    `json:"confidence_score"`
	SourceFile      string     `json:"source_file"`
	SequenceID      int        `json:"sequence_id"`
}

// NewInvoice builds an empty invoice for a source file with the given
// confidence, clamped into [0, 1].
func NewInvoice(sourceFile string, sequenceID int, confidence float64) Invoice {
	return Invoice{
		ConfidenceScore: ClampConfidence(confidence),
		SourceFile:      sourceFile,
		SequenceID:      sequenceID,
	}
}

// ClampConfidence forces a confidence score into [0, 1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UnmarshalJSON clamps the confidence score so out-of-range values
// coming back from the extraction model never leak into responses.
func (inv *Invoice) UnmarshalJSON(data []byte) error {
	type alias Invoice
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.ConfidenceScore = ClampConfidence(a.ConfidenceScore)
	*inv = Invoice(a)
	return nil
}

// ProcessingError is one per-file error entry in the aggregate
// response.
type ProcessingError struct {
	File       string             `json:"file"`
	SequenceID int                `json:"sequence_id"`
	Kind       constants.FileKind `json:"kind"`
	Error      string             `json:"error"`
}

// AggregateResponse folds every per-file outcome of one pipeline run.
// Results and errors each preserve ascending sequence_id order.
// SuccessCount is always len(Results); TotalProcessed counts all
// dispatched files, whether they produced a result or an error entry.
type AggregateResponse struct {
	Results        []Invoice         `json:"results"`
	Errors         []ProcessingError `json:"errors"`
	TotalProcessed int               `json:"total_processed"`
	SuccessCount   int               `json:"success_count"`
}
