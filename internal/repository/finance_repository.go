package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/school-admin/internal/model"
)

// ErrOverpayment is returned when a payment would push amount_paid above the
// invoice amount.
var ErrOverpayment = errors.New("payment exceeds outstanding balance")

const feeTypeColumns = "id, name, amount, description, created_at, updated_at"

// FeeTypeRepo persists the fee catalog.
type FeeTypeRepo struct{ DB *sql.DB }

func NewFeeTypeRepo(db *sql.DB) *FeeTypeRepo { return &FeeTypeRepo{DB: db} }

func scanFeeType(s rowScanner) (*model.FeeType, error) {
	var f model.FeeType
	if err := s.Scan(&f.ID, &f.Name, &f.Amount, &f.Description, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FeeTypeRepo) Create(ctx context.Context, f *model.FeeType) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO fee_types (name, amount, description) VALUES (?,?,?)", f.Name, f.Amount, f.Description)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*f = *got
	return nil
}

func (r *FeeTypeRepo) Get(ctx context.Context, id uint64) (*model.FeeType, error) {
	f, err := scanFeeType(r.DB.QueryRowContext(ctx, "SELECT "+feeTypeColumns+" FROM fee_types WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return f, nil
}

func (r *FeeTypeRepo) List(ctx context.Context) ([]*model.FeeType, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+feeTypeColumns+" FROM fee_types ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.FeeType
	for rows.Next() {
		f, err := scanFeeType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *FeeTypeRepo) Update(ctx context.Context, f *model.FeeType) error {
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE fee_types SET name = ?, amount = ?, description = ? WHERE id = ?",
		f.Name, f.Amount, f.Description, f.ID); err != nil {
		return translate(err)
	}
	got, err := r.Get(ctx, f.ID)
	if err != nil {
		return err
	}
	*f = *got
	return nil
}

func (r *FeeTypeRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM fee_types WHERE id = ?", id)
	return expectOne(res, err)
}

const invoiceColumns = "id, student_id, academic_year_id, fee_type_id, description, amount, amount_paid, due_on, status, created_at, updated_at"

// InvoiceRepo persists invoices.
type InvoiceRepo struct{ DB *sql.DB }

func NewInvoiceRepo(db *sql.DB) *InvoiceRepo { return &InvoiceRepo{DB: db} }

func scanInvoice(s rowScanner) (*model.Invoice, error) {
	var (
		inv     model.Invoice
		feeType sql.NullInt64
		status  string
	)
	if err := s.Scan(&inv.ID, &inv.StudentID, &inv.AcademicYearID, &feeType, &inv.Description, &inv.Amount,
		&inv.AmountPaid, &inv.DueOn, &status, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return nil, err
	}
	inv.FeeTypeID = uintPtr(feeType)
	inv.Status = model.InvoiceStatus(status)
	return &inv, nil
}

// Create inserts an unpaid invoice.
func (r *InvoiceRepo) Create(ctx context.Context, inv *model.Invoice) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO invoices (student_id, academic_year_id, fee_type_id, description, amount, amount_paid, due_on, status)
		 VALUES (?,?,?,?,?,0,?,'UNPAID')`,
		inv.StudentID, inv.AcademicYearID, nullableUint(inv.FeeTypeID), inv.Description, inv.Amount, inv.DueOn)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.Get(ctx, uint64(id))
	if err != nil {
		return err
	}
	*inv = *got
	return nil
}

func (r *InvoiceRepo) Get(ctx context.Context, id uint64) (*model.Invoice, error) {
	inv, err := scanInvoice(r.DB.QueryRowContext(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return inv, nil
}

// InvoiceFilter narrows List. Zero values mean "any".
type InvoiceFilter struct {
	StudentID      uint64
	AcademicYearID uint64
	Status         model.InvoiceStatus
	Page           Page
}

// List returns invoices newest first. With all set the page is ignored and
// every match is returned.
func (r *InvoiceRepo) List(ctx context.Context, f InvoiceFilter, all bool) ([]*model.Invoice, error) {
	qb := sq.Select(invoiceColumns).From("invoices").OrderBy("id DESC")
	if !all {
		qb = qb.Limit(f.Page.limit()).Offset(f.Page.Offset)
	}
	if f.StudentID != 0 {
		qb = qb.Where(sq.Eq{"student_id": f.StudentID})
	}
	if f.AcademicYearID != 0 {
		qb = qb.Where(sq.Eq{"academic_year_id": f.AcademicYearID})
	}
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(f.Status)})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// Delete removes an invoice. Invoices with payments are ErrInUse.
func (r *InvoiceRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM invoices WHERE id = ?", id)
	return expectOne(res, err)
}

// PaymentRepo records payments against invoices.
type PaymentRepo struct{ DB *sql.DB }

func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{DB: db} }

// Record inserts p and advances the invoice's paid amount and status in one
// transaction. The invoice row is locked so concurrent payments cannot both
// pass the balance check.
func (r *PaymentRepo) Record(ctx context.Context, p *model.Payment) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer rollbackOn(tx, &err)

	var amount, paid decimal.Decimal
	if err = tx.QueryRowContext(ctx,
		"SELECT amount, amount_paid FROM invoices WHERE id = ? FOR UPDATE", p.InvoiceID).
		Scan(&amount, &paid); err != nil {
		return translate(err)
	}
	newPaid := paid.Add(p.Amount)
	if newPaid.GreaterThan(amount) {
		return ErrOverpayment
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO payments (invoice_id, amount, method, reference, paid_at, recorded_by) VALUES (?,?,?,?,?,?)",
		p.InvoiceID, p.Amount, p.Method, p.Reference, p.PaidAt, nullableUint(p.RecordedBy))
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		"UPDATE invoices SET amount_paid = ?, status = ? WHERE id = ?",
		newPaid, string(model.StatusFor(newPaid, amount)), p.InvoiceID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	p.ID = uint64(id)
	p.CreatedAt = time.Now().UTC()
	return nil
}

// ListByInvoice returns the payments of one invoice, oldest first.
func (r *PaymentRepo) ListByInvoice(ctx context.Context, invoiceID uint64) ([]*model.Payment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, invoice_id, amount, method, reference, paid_at, recorded_by, created_at
		   FROM payments WHERE invoice_id = ? ORDER BY paid_at, id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Payment
	for rows.Next() {
		var (
			p          model.Payment
			recordedBy sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Method, &p.Reference, &p.PaidAt, &recordedBy, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.RecordedBy = uintPtr(recordedBy)
		out = append(out, &p)
	}
	return out, rows.Err()
}
