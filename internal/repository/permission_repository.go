package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/school-admin/internal/rbac"
)

// PermissionRow is a catalog entry with its surrogate key.
type PermissionRow struct {
	ID uint64 `json:"id"`
	rbac.Permission
}

// PermissionRepo reads the permission catalog and resolves users to their
// permissions. It implements rbac.Store.
type PermissionRepo struct{ DB *sql.DB }

func NewPermissionRepo(db *sql.DB) *PermissionRepo { return &PermissionRepo{DB: db} }

var _ rbac.Store = (*PermissionRepo)(nil)

// EnsureCatalog inserts any catalog pair missing from the table. The unique
// (action, subject) index makes it idempotent.
func (r *PermissionRepo) EnsureCatalog(ctx context.Context) error {
	for _, p := range rbac.Catalog() {
		if _, err := r.DB.ExecContext(ctx,
			"INSERT IGNORE INTO permissions (action, subject) VALUES (?, ?)",
			string(p.Action), string(p.Subject)); err != nil {
			return fmt.Errorf("seed permission %s: %w", p, err)
		}
	}
	return nil
}

func (r *PermissionRepo) List(ctx context.Context) ([]PermissionRow, error) {
	return r.query(ctx, "SELECT id, action, subject FROM permissions ORDER BY subject, action")
}

// Get returns the row for a pair, ErrNotFound when it is not in the catalog.
func (r *PermissionRepo) Get(ctx context.Context, p rbac.Permission) (*PermissionRow, error) {
	var (
		row     PermissionRow
		action  string
		subject string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, action, subject FROM permissions WHERE action = ? AND subject = ?",
		string(p.Action), string(p.Subject)).Scan(&row.ID, &action, &subject)
	if err != nil {
		return nil, translate(err)
	}
	row.Action, row.Subject = rbac.Action(action), rbac.Subject(subject)
	return &row, nil
}

// OfRole lists the permissions granted to a role.
func (r *PermissionRepo) OfRole(ctx context.Context, roleID uint64) ([]PermissionRow, error) {
	return r.query(ctx,
		`SELECT p.id, p.action, p.subject FROM permissions p
		   JOIN role_permissions rp ON rp.permission_id = p.id
		  WHERE rp.role_id = ? ORDER BY p.subject, p.action`, roleID)
}

// PermissionsForUser returns the union of permissions over every role the
// user holds. Soft-deleted and non-ACTIVE users resolve to nothing.
func (r *PermissionRepo) PermissionsForUser(ctx context.Context, userID uint64) ([]rbac.Permission, error) {
	rows, err := r.query(ctx,
		`SELECT DISTINCT p.id, p.action, p.subject FROM permissions p
		   JOIN role_permissions rp ON rp.permission_id = p.id
		   JOIN user_roles ur ON ur.role_id = rp.role_id
		   JOIN users u ON u.id = ur.user_id
		  WHERE ur.user_id = ? AND u.deleted_at IS NULL AND u.status = 'ACTIVE'`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]rbac.Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Permission)
	}
	return out, nil
}

// AccountActive reports whether the user can still act: present, not
// soft-deleted and ACTIVE.
func (r *PermissionRepo) AccountActive(ctx context.Context, userID uint64) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE id = ? AND deleted_at IS NULL AND status = 'ACTIVE'", userID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PermissionRepo) query(ctx context.Context, q string, args ...any) ([]PermissionRow, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PermissionRow
	for rows.Next() {
		var (
			row     PermissionRow
			action  string
			subject string
		)
		if err := rows.Scan(&row.ID, &action, &subject); err != nil {
			return nil, err
		}
		row.Action, row.Subject = rbac.Action(action), rbac.Subject(subject)
		out = append(out, row)
	}
	return out, rows.Err()
}
