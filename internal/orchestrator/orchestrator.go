package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/elviscruz45/api-facturas-transmind/constants"
	"github.com/elviscruz45/api-facturas-transmind/internal/classifier"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
	"github.com/elviscruz45/api-facturas-transmind/internal/extract"
	"github.com/elviscruz45/api-facturas-transmind/internal/gateway"
	"github.com/elviscruz45/api-facturas-transmind/internal/metrics"
	"github.com/elviscruz45/api-facturas-transmind/internal/sorter"
)

// lowLikelihoodConfidence is the fixed score assigned to text files
// whose content does not look like an invoice; those never reach the
// extraction gateway.
const lowLikelihoodConfidence = 0.1

// TextExtractor prepares a plain-text file for the gateway.
type TextExtractor interface {
	Process(filePath string) extract.TextResult
}

// ImageExtractor prepares an image file for the gateway.
type ImageExtractor interface {
	Process(filePath string) extract.ImageResult
}

// Orchestrator drives the full pipeline: chronological ordering,
// classification, per-kind content preparation, and sequential
// dispatch to the extraction gateway.
type Orchestrator struct {
	sorter     *sorter.Sorter
	classifier *classifier.Classifier
	text       TextExtractor
	image      ImageExtractor
	pdf        TextExtractor
	gateway    gateway.Extractor
	log        *slog.Logger
}

func New(srt *sorter.Sorter, cls *classifier.Classifier, text TextExtractor, image ImageExtractor, pdf TextExtractor, gw gateway.Extractor, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		sorter:     srt,
		classifier: cls,
		text:       text,
		image:      image,
		pdf:        pdf,
		gateway:    gw,
		log:        log,
	}
}

// Process runs the pipeline over a set of extracted files. Per-file
// failures become error entries; failures before any file is
// dispatched collapse to a single synthetic error entry with zero
// counts. The response is always non-nil and well-formed.
func (o *Orchestrator) Process(ctx context.Context, descriptors []entity.FileDescriptor) (resp entity.AggregateResponse) {
	start := time.Now()
	resp = entity.AggregateResponse{
		Results: []entity.Invoice{},
		Errors:  []entity.ProcessingError{},
	}

	defer func() {
		if r := recover(); r != nil {
			o.log.Error("orchestrator.panic", "panic", r)
			resp = entity.AggregateResponse{
				Results: []entity.Invoice{},
				Errors: []entity.ProcessingError{{
					File:  "pipeline",
					Kind:  constants.KindOther,
					Error: fmt.Sprintf("pipeline failure: %v", r),
				}},
			}
		}
		metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	}()

	indexed := o.sorter.Sort(descriptors)
	if err := o.sorter.ValidateChronologicalOrder(indexed); err != nil {
		o.log.Error("orchestrator.sequence_invalid", "error", err)
		resp.Errors = append(resp.Errors, entity.ProcessingError{
			File:  "pipeline",
			Kind:  constants.KindOther,
			Error: "sequence validation failed: " + err.Error(),
		})
		return resp
	}

	classified := o.classifier.Classify(indexed)
	records := o.classifier.Processable(classified)

	o.log.Info("orchestrator.dispatch.start",
		"total_files", len(descriptors),
		"classified", classified.Total(),
		"processable", len(records),
	)

	for _, record := range records {
		if err := ctx.Err(); err != nil {
			resp.Errors = append(resp.Errors, entity.ProcessingError{
				File:       record.Filename,
				SequenceID: record.SequenceID,
				Kind:       record.Kind,
				Error:      "processing cancelled: " + err.Error(),
			})
			resp.TotalProcessed++
			continue
		}

		invoice, perr := o.processOne(ctx, record)
		resp.TotalProcessed++
		if perr != nil {
			metrics.FilesProcessed.WithLabelValues(string(record.Kind), "error").Inc()
			resp.Errors = append(resp.Errors, *perr)
			continue
		}
		metrics.FilesProcessed.WithLabelValues(string(record.Kind), "ok").Inc()
		resp.Results = append(resp.Results, *invoice)
	}

	resp.SuccessCount = len(resp.Results)
	o.log.Info("orchestrator.dispatch.done",
		"total_processed", resp.TotalProcessed,
		"success_count", resp.SuccessCount,
		"error_count", len(resp.Errors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp
}

// processOne prepares one classified file and dispatches it. A panic
// inside any extractor or the gateway is contained here so one bad
// file never takes down the batch.
func (o *Orchestrator) processOne(ctx context.Context, record entity.ClassifiedRecord) (invoice *entity.Invoice, perr *entity.ProcessingError) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("orchestrator.file_panic",
				"filename", record.Filename,
				"sequence_id", record.SequenceID,
				"panic", r,
			)
			invoice = nil
			perr = &entity.ProcessingError{
				File:       record.Filename,
				SequenceID: record.SequenceID,
				Kind:       record.Kind,
				Error:      fmt.Sprintf("unexpected failure: %v", r),
			}
		}
	}()

	var req gateway.Request
	switch record.Kind {
	case constants.KindText:
		result := o.text.Process(record.FilePath)
		if !result.Success {
			return nil, o.fileError(record, result.Err)
		}
		if !result.IsPotentialInvoice {
			o.log.Info("orchestrator.low_likelihood_skip",
				"filename", record.Filename,
				"sequence_id", record.SequenceID,
			)
			inv := entity.NewInvoice(record.Filename, record.SequenceID, lowLikelihoodConfidence)
			return &inv, nil
		}
		req = gateway.Request{Content: result.Content, Kind: constants.KindText}

	case constants.KindImage:
		result := o.image.Process(record.FilePath)
		if !result.Success {
			return nil, o.fileError(record, result.Err)
		}
		req = gateway.Request{Content: result.ImageData, Kind: constants.KindImage}

	case constants.KindPDF:
		result := o.pdf.Process(record.FilePath)
		if !result.Success {
			return nil, o.fileError(record, result.Err)
		}
		req = gateway.Request{Content: result.Content, Kind: constants.KindPDF}

	default:
		return nil, o.fileError(record, "unsupported file kind: "+string(record.Kind))
	}

	req.Filename = record.Filename
	req.SequenceID = record.SequenceID

	resp := o.gateway.Extract(ctx, req)
	if !resp.Success {
		return nil, o.fileError(record, resp.Err)
	}
	return &resp.Invoice, nil
}

func (o *Orchestrator) fileError(record entity.ClassifiedRecord, msg string) *entity.ProcessingError {
	o.log.Warn("orchestrator.file_failed",
		"filename", record.Filename,
		"sequence_id", record.SequenceID,
		"kind", string(record.Kind),
		"error", msg,
	)
	return &entity.ProcessingError{
		File:       record.Filename,
		SequenceID: record.SequenceID,
		Kind:       record.Kind,
		Error:      msg,
	}
}
