package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/model"
	"github.com/iliyamo/school-admin/internal/report"
	"github.com/iliyamo/school-admin/internal/repository"
	"github.com/iliyamo/school-admin/internal/service"
)

// FinanceHandler serves fee types, invoices and payments.
type FinanceHandler struct {
	FeeTypes *repository.FeeTypeRepo
	Invoices *repository.InvoiceRepo
	Payments *repository.PaymentRepo
	Audit    *service.Auditor
}

func NewFinanceHandler(db *repository.Set, audit *service.Auditor) *FinanceHandler {
	return &FinanceHandler{FeeTypes: db.FeeTypes, Invoices: db.Invoices, Payments: db.Payments, Audit: audit}
}

// ----- DTOs -----

type feeTypeReq struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
}

type invoiceReq struct {
	StudentID      uint64          `json:"student_id" validate:"required"`
	AcademicYearID uint64          `json:"academic_year_id" validate:"required"`
	FeeTypeID      *uint64         `json:"fee_type_id"`
	Description    string          `json:"description" validate:"max=255"`
	Amount         decimal.Decimal `json:"amount"`
	DueOn          Date            `json:"due_on"`
}

type paymentReq struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,oneof=CASH CARD BANK_TRANSFER CHEQUE MOBILE"`
	Reference string          `json:"reference" validate:"max=100"`
	PaidAt    Date            `json:"paid_at"`
}

// ----- fee types -----

func (h *FinanceHandler) ListFeeTypes(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.FeeTypes.List(ctx)
	if err != nil {
		return apperror.Internal("list fee types", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

func (h *FinanceHandler) CreateFeeType(c echo.Context) error {
	var req feeTypeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := positive("amount", req.Amount); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	f := &model.FeeType{Name: strings.TrimSpace(req.Name), Amount: req.Amount, Description: req.Description}
	if err := h.FeeTypes.Create(ctx, f); err != nil {
		return service.MapRepoError(err, "fee type", "create fee type")
	}
	h.Audit.Record(ctx, "fee_type.create", "fee_type", idString(f.ID), map[string]any{"name": f.Name, "amount": f.Amount.StringFixed(2)})
	return c.JSON(http.StatusCreated, f)
}

func (h *FinanceHandler) UpdateFeeType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req feeTypeReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := positive("amount", req.Amount); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	f := &model.FeeType{ID: id, Name: strings.TrimSpace(req.Name), Amount: req.Amount, Description: req.Description}
	if err := h.FeeTypes.Update(ctx, f); err != nil {
		return service.MapRepoError(err, "fee type", "update fee type")
	}
	h.Audit.Record(ctx, "fee_type.update", "fee_type", idString(id), map[string]any{"name": f.Name, "amount": f.Amount.StringFixed(2)})
	return c.JSON(http.StatusOK, f)
}

func (h *FinanceHandler) DeleteFeeType(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.FeeTypes.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "fee type", "delete fee type")
	}
	h.Audit.Record(ctx, "fee_type.delete", "fee_type", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ----- invoices -----

func (h *FinanceHandler) invoiceFilter(c echo.Context) (repository.InvoiceFilter, error) {
	var f repository.InvoiceFilter
	var err error
	if f.Page, err = pageFrom(c); err != nil {
		return f, err
	}
	if f.StudentID, err = queryUint(c, "student_id"); err != nil {
		return f, err
	}
	if f.AcademicYearID, err = queryUint(c, "academic_year_id"); err != nil {
		return f, err
	}
	status := model.InvoiceStatus(strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))))
	switch status {
	case "", model.InvoiceUnpaid, model.InvoicePartial, model.InvoicePaid:
		f.Status = status
	default:
		return f, apperror.Field("status", "must be one of: UNPAID PARTIAL PAID")
	}
	return f, nil
}

func (h *FinanceHandler) ListInvoices(c echo.Context) error {
	f, err := h.invoiceFilter(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Invoices.List(ctx, f, false)
	if err != nil {
		return apperror.Internal("list invoices", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// ExportInvoices streams every invoice matching the filters as a workbook.
// Paging parameters are ignored.
func (h *FinanceHandler) ExportInvoices(c echo.Context) error {
	f, err := h.invoiceFilter(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	list, err := h.Invoices.List(ctx, f, true)
	if err != nil {
		return apperror.Internal("list invoices", err)
	}
	name := fmt.Sprintf("invoices-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentType, report.ContentTypeXLSX)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	c.Response().WriteHeader(http.StatusOK)
	return report.WriteInvoices(c.Response(), list)
}

func (h *FinanceHandler) GetInvoice(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	inv, err := h.Invoices.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "invoice", "load invoice")
	}
	return c.JSON(http.StatusOK, echo.Map{"invoice": inv, "balance": inv.Balance()})
}

func (h *FinanceHandler) CreateInvoice(c echo.Context) error {
	var req invoiceReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	// an invoice for a fee type may omit amount and description
	if req.FeeTypeID != nil && (req.Amount.IsZero() || req.Description == "") {
		ft, err := h.FeeTypes.Get(ctx, *req.FeeTypeID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Field("fee_type_id", "fee type does not exist")
		}
		if err != nil {
			return apperror.Internal("load fee type", err)
		}
		if req.Amount.IsZero() {
			req.Amount = ft.Amount
		}
		if req.Description == "" {
			req.Description = ft.Name
		}
	}
	if err := positive("amount", req.Amount); err != nil {
		return err
	}
	if req.DueOn.IsZero() {
		return apperror.Field("due_on", "required")
	}
	inv := &model.Invoice{
		StudentID:      req.StudentID,
		AcademicYearID: req.AcademicYearID,
		FeeTypeID:      req.FeeTypeID,
		Description:    strings.TrimSpace(req.Description),
		Amount:         req.Amount,
		DueOn:          req.DueOn.Time,
	}
	if err := h.Invoices.Create(ctx, inv); err != nil {
		return service.MapRepoError(err, "invoice", "create invoice")
	}
	h.Audit.Record(ctx, "invoice.create", "invoice", idString(inv.ID), map[string]any{
		"student_id": inv.StudentID,
		"amount":     inv.Amount.StringFixed(2),
	})
	return c.JSON(http.StatusCreated, inv)
}

func (h *FinanceHandler) DeleteInvoice(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Invoices.Delete(ctx, id); err != nil {
		return service.MapRepoError(err, "invoice", "delete invoice")
	}
	h.Audit.Record(ctx, "invoice.delete", "invoice", idString(id), nil)
	return c.NoContent(http.StatusNoContent)
}

// ----- payments -----

func (h *FinanceHandler) ListPayments(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if _, err := h.Invoices.Get(ctx, id); err != nil {
		return service.MapRepoError(err, "invoice", "load invoice")
	}
	list, err := h.Payments.ListByInvoice(ctx, id)
	if err != nil {
		return apperror.Internal("list payments", err)
	}
	return c.JSON(http.StatusOK, items(list))
}

// RecordPayment applies a payment and returns it with the updated invoice.
func (h *FinanceHandler) RecordPayment(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req paymentReq
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := positive("amount", req.Amount); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	p := &model.Payment{
		InvoiceID:  id,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  strings.TrimSpace(req.Reference),
		PaidAt:     req.PaidAt.Time,
		RecordedBy: model.ActorID(ctx),
	}
	if err := h.Payments.Record(ctx, p); err != nil {
		if errors.Is(err, repository.ErrOverpayment) {
			return apperror.Field("amount", "exceeds the outstanding balance")
		}
		return service.MapRepoError(err, "invoice", "record payment")
	}
	inv, err := h.Invoices.Get(ctx, id)
	if err != nil {
		return service.MapRepoError(err, "invoice", "reload invoice")
	}
	h.Audit.Record(ctx, "payment.create", "invoice", idString(id), map[string]any{
		"payment_id": p.ID,
		"amount":     p.Amount.StringFixed(2),
		"status":     string(inv.Status),
	})
	return c.JSON(http.StatusCreated, echo.Map{"payment": p, "invoice": inv})
}
