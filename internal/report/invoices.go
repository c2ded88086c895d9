// Package report renders spreadsheet exports.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/iliyamo/school-admin/internal/model"
)

// ContentTypeXLSX is the media type of the workbooks written here.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const invoiceSheet = "Invoices"

var invoiceHeader = []interface{}{
	"Invoice", "Student", "Academic year", "Description", "Amount", "Paid", "Balance", "Due on", "Status",
}

// WriteInvoices writes one sheet with a header row and one row per invoice,
// followed by a totals row.
func WriteInvoices(w io.Writer, invoices []*model.Invoice) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), invoiceSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(invoiceSheet, "A1", &invoiceHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(invoiceSheet, 1, 1, bold); err != nil {
		return err
	}

	row := 2
	for _, inv := range invoices {
		amount, _ := inv.Amount.Float64()
		paid, _ := inv.AmountPaid.Float64()
		balance, _ := inv.Balance().Float64()
		values := []interface{}{
			inv.ID, inv.StudentID, inv.AcademicYearID, inv.Description,
			amount, paid, balance, inv.DueOn.Format("2006-01-02"), string(inv.Status),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(invoiceSheet, cell, &values); err != nil {
			return err
		}
		row++
	}

	if len(invoices) > 0 {
		last := row - 1
		if err := f.SetCellValue(invoiceSheet, fmt.Sprintf("A%d", row), "Total"); err != nil {
			return err
		}
		for _, col := range []string{"E", "F", "G"} {
			formula := fmt.Sprintf("SUM(%s2:%s%d)", col, col, last)
			if err := f.SetCellFormula(invoiceSheet, fmt.Sprintf("%s%d", col, row), formula); err != nil {
				return err
			}
		}
		if err := f.SetRowStyle(invoiceSheet, row, row, bold); err != nil {
			return err
		}
		if err := f.SetCellStyle(invoiceSheet, "E2", fmt.Sprintf("G%d", row), money); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(invoiceSheet, "D", "D", 40); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
