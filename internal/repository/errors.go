// Package repository contains the MySQL data access layer. Repositories speak
// in model types and return the sentinel errors below; mapping them to HTTP
// statuses is the handlers' job.
package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the addressed row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a unique index rejects a write, e.g. a
// duplicate email or role name.
var ErrConflict = errors.New("conflict")

// ErrInUse is returned when a delete is blocked by rows referencing the
// target.
var ErrInUse = errors.New("referenced by other records")

// ErrInvalidReference is returned when a write points at a parent row that
// does not exist.
var ErrInvalidReference = errors.New("referenced record does not exist")

// ErrImmutable is returned when a conditional write skipped a system row.
var ErrImmutable = errors.New("record is immutable")

// MySQL server error numbers the layer reacts to.
const (
	mysqlDuplicateEntry  = 1062
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

// translate maps driver errors onto the package sentinels. Unknown errors
// pass through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDuplicateEntry:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		case mysqlRowIsReferenced:
			return ErrInUse
		case mysqlNoReferencedRow:
			return ErrInvalidReference
		}
	}
	return err
}

// expectOne converts a zero-row write into ErrNotFound.
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Page bounds a list query. A zero Limit selects the default.
type Page struct {
	Limit  uint64
	Offset uint64
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (p Page) limit() uint64 {
	switch {
	case p.Limit == 0:
		return defaultPageSize
	case p.Limit > maxPageSize:
		return maxPageSize
	}
	return p.Limit
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullableUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

func uintPtr(n sql.NullInt64) *uint64 {
	if !n.Valid {
		return nil
	}
	v := uint64(n.Int64)
	return &v
}

func stringPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	s := n.String
	return &s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// rollbackOn rolls tx back when *err is set. Transactional methods defer it
// with a named error result.
func rollbackOn(tx *sql.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			*err = fmt.Errorf("%w (rollback: %v)", *err, rbErr)
		}
	}
}
