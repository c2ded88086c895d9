package handler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/school-admin/internal/apperror"
	"github.com/iliyamo/school-admin/internal/repository"
)

// dbTimeout bounds the database work of a single request.
const dbTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// pathID parses the :id route parameter.
func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Field("id", "must be a positive integer")
	}
	return id, nil
}

// queryUint reads an optional unsigned query parameter. Missing means 0.
func queryUint(c echo.Context, name string) (uint64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperror.Field(name, "must be a non-negative integer")
	}
	return n, nil
}

// pageFrom reads limit/offset query parameters.
func pageFrom(c echo.Context) (repository.Page, error) {
	limit, err := queryUint(c, "limit")
	if err != nil {
		return repository.Page{}, err
	}
	offset, err := queryUint(c, "offset")
	if err != nil {
		return repository.Page{}, err
	}
	return repository.Page{Limit: limit, Offset: offset}, nil
}

// Date is a calendar date in JSON bodies. It accepts "2006-01-02" and full
// RFC 3339 timestamps.
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	d.Time = t.UTC()
	return nil
}

// Ptr returns nil for the zero date.
func (d Date) Ptr() *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

// positive validates a money or score amount.
func positive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return apperror.Field(field, "must be greater than 0")
	}
	if v.Exponent() < -2 {
		return apperror.Field(field, "at most two decimal places")
	}
	return nil
}

// items wraps a list response.
func items[T any](list []T) map[string]any {
	if list == nil {
		list = []T{}
	}
	return map[string]any{"items": list}
}

func idString(id uint64) string { return strconv.FormatUint(id, 10) }
