package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/elviscruz45/api-facturas-transmind/internal/common"
	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

const insertInvoiceSQL = `
INSERT INTO invoices (
	id, run_id, source_file, sequence_id, invoice_number, invoice_date,
	supplier_name, supplier_ruc, customer_name, subtotal, tax, total,
	currency, confidence_score
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const insertLineItemSQL = `
INSERT INTO invoice_items (
	id, invoice_id, position, description, quantity, unit_price, total_price, unit
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// InvoiceRepository persists extraction runs. Invoices are
// identifiable by (run_id, source_file, sequence_id); line items hang
// off their invoice by position.
type InvoiceRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewInvoiceRepository(db *sql.DB, log *slog.Logger) *InvoiceRepository {
	if log == nil {
		log = slog.Default()
	}
	return &InvoiceRepository{db: db, log: log}
}

// SaveResults stores every invoice of one pipeline run in a single
// transaction and returns the run id. Nothing is written when any
// insert fails.
func (r *InvoiceRepository) SaveResults(ctx context.Context, response entity.AggregateResponse) (uuid.UUID, error) {
	runID := uuid.New()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, common.NewAppError("DB_ERROR", "begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, inv := range response.Results {
		invoiceID := uuid.New()
		_, err := tx.ExecContext(ctx, insertInvoiceSQL,
			invoiceID, runID, inv.SourceFile, inv.SequenceID,
			inv.InvoiceNumber, inv.InvoiceDate,
			inv.SupplierName, inv.SupplierRUC, inv.CustomerName,
			inv.Subtotal, inv.Tax, inv.Total,
			inv.Currency, inv.ConfidenceScore,
		)
		if err != nil {
			r.log.Error("repository.save_invoice_failed",
				"source_file", inv.SourceFile,
				"sequence_id", inv.SequenceID,
				"error", err,
			)
			return uuid.Nil, common.NewAppError("DB_ERROR", "insert invoice", err)
		}

		for pos, item := range inv.Items {
			_, err := tx.ExecContext(ctx, insertLineItemSQL,
				uuid.New(), invoiceID, pos+1,
				item.Description, item.Quantity, item.UnitPrice, item.TotalPrice, item.Unit,
			)
			if err != nil {
				r.log.Error("repository.save_item_failed",
					"source_file", inv.SourceFile,
					"sequence_id", inv.SequenceID,
					"position", pos+1,
					"error", err,
				)
				return uuid.Nil, common.NewAppError("DB_ERROR", "insert line item", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, common.NewAppError("DB_ERROR", "commit transaction", err)
	}

	r.log.Info("repository.run_saved",
		"run_id", runID.String(),
		"invoices", len(response.Results),
	)
	return runID, nil
}
