package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/elviscruz45/api-facturas-transmind/internal/entity"
)

// Service renders pipeline runs as XLSX workbooks.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildXLSX returns an XLSX workbook (as bytes) for one aggregate
// response: an "Invoices" sheet with one row per extracted invoice and
// an "Errors" sheet with the per-file failures.
func (s *Service) BuildXLSX(response entity.AggregateResponse) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()

	if err := s.writeInvoicesSheet(f, response.Results); err != nil {
		return nil, err
	}
	if err := s.writeErrorsSheet(f, response.Errors); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"invoices", len(response.Results),
		"errors", len(response.Errors),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func (s *Service) writeInvoicesSheet(f *excelize.File, results []entity.Invoice) error {
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Seq",
		"Source File",
		"Invoice Number",
		"Invoice Date",
		"Supplier",
		"Supplier RUC",
		"Customer",
		"Subtotal",
		"Tax",
		"Total",
		"Currency",
		"Items",
		"Confidence",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, inv := range results {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, inv.SequenceID)
		write(2, inv.SourceFile)
		write(3, strValue(inv.InvoiceNumber))
		write(4, strValue(inv.InvoiceDate))
		write(5, strValue(inv.SupplierName))
		write(6, strValue(inv.SupplierRUC))
		write(7, strValue(inv.CustomerName))
		write(8, numValue(inv.Subtotal))
		write(9, numValue(inv.Tax))
		write(10, numValue(inv.Total))
		write(11, strValue(inv.Currency))
		write(12, len(inv.Items))
		write(13, inv.ConfidenceScore)

		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 6)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "D", 16)
	_ = f.SetColWidth(sheet, "E", "G", 28)
	_ = f.SetColWidth(sheet, "H", "K", 12)

	return nil
}

func (s *Service) writeErrorsSheet(f *excelize.File, errs []entity.ProcessingError) error {
	const sheet = "Errors"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	headers := []string{"Seq", "File", "Kind", "Error"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, pe := range errs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, pe.SequenceID)
		write(2, pe.File)
		write(3, string(pe.Kind))
		write(4, pe.Error)
		row++
	}

	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "D", "D", 60)

	// Excelize starts workbooks with a default "Sheet1".
	_ = f.DeleteSheet("Sheet1")
	return nil
}

func strValue(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func numValue(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}
