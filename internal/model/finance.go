package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type FeeType struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type InvoiceStatus string

const (
	InvoiceUnpaid  InvoiceStatus = "UNPAID"
	InvoicePartial InvoiceStatus = "PARTIAL"
	InvoicePaid    InvoiceStatus = "PAID"
)

// StatusFor derives the invoice status from the paid and total amounts.
func StatusFor(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case paid.LessThanOrEqual(decimal.Zero):
		return InvoiceUnpaid
	case paid.LessThan(total):
		return InvoicePartial
	default:
		return InvoicePaid
	}
}

type Invoice struct {
	ID             uint64          `json:"id"`
	StudentID      uint64          `json:"student_id"`
	AcademicYearID uint64          `json:"academic_year_id"`
	FeeTypeID      *uint64         `json:"fee_type_id,omitempty"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	AmountPaid     decimal.Decimal `json:"amount_paid"`
	DueOn          time.Time       `json:"due_on"`
	Status         InvoiceStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Balance is what is still owed on the invoice.
func (i Invoice) Balance() decimal.Decimal { return i.Amount.Sub(i.AmountPaid) }

type Payment struct {
	ID         uint64          `json:"id"`
	InvoiceID  uint64          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	PaidAt     time.Time       `json:"paid_at"`
	RecordedBy *uint64         `json:"recorded_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
