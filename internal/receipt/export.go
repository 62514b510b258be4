package receipt

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Receipts"

var exportHeaders = []string{
	"Receipt Number",
	"Payment Date",
	"Provider",
	"Service Type",
	"Total Amount",
	"Transferred Amount",
	"Commission",
	"Payer",
	"Address",
	"Bank Terminal",
	"Status",
	"File",
}

// exportColumnWidths are applied after the rows are written
var exportColumnWidths = map[string]float64{
	"A": 18,
	"B": 18,
	"C": 30,
	"I": 30,
}

// ExportXLSX writes an Excel workbook with one row per receipt, in the same
// order as ListReceipts.
func (s *Service) ExportXLSX(w io.Writer) error {
	receipts, err := s.ListReceipts()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if err := writeReceiptSheet(f, exportSheet, receipts); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

// writeReceiptSheet fills sheet with a bold header row and one row per
// receipt. The first failing write is returned.
func writeReceiptSheet(f *excelize.File, sheet string, receipts []*Receipt) error {
	headers := make([]any, len(exportHeaders))
	for i, h := range exportHeaders {
		headers[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	if err != nil {
		return fmt.Errorf("locating header: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastHeader, header); err != nil {
		return fmt.Errorf("styling header: %w", err)
	}

	for i, r := range receipts {
		date := ""
		if r.PaymentDateTime != nil {
			date = r.PaymentDateTime.Format("2006-01-02 15:04")
		}

		row := []any{
			r.ReceiptNumber,
			date,
			r.ServiceProvider,
			string(r.ServiceType),
			formatAmount(r.TotalAmount),
			formatAmount(r.TransferredAmount),
			formatAmount(r.Commission),
			r.PayerName,
			r.Address,
			r.BankTerminal,
			r.PaymentStatus,
			r.FileName(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("locating row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing receipt %s: %w", r.ReceiptNumber, err)
		}
	}

	for col, width := range exportColumnWidths {
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("sizing column %s: %w", col, err)
		}
	}
	return nil
}
