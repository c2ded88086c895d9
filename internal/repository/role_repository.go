package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/school-admin/internal/model"
)

const roleColumns = "id, name, description, is_system, created_at, updated_at"

// RoleRepo persists roles and their join tables (role_permissions,
// user_roles).
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

func scanRole(s rowScanner) (*model.Role, error) {
	var r model.Role
	if err := s.Scan(&r.ID, &r.Name, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *RoleRepo) queryRoles(ctx context.Context, q string, args ...any) ([]*model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Create inserts a role. The unique index on name makes concurrent creation
// of the same name resolve to exactly one winner; the others get ErrConflict.
func (r *RoleRepo) Create(ctx context.Context, role *model.Role) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO roles (name, description, is_system) VALUES (?,?,?)",
		role.Name, role.Description, role.IsSystem)
	if err != nil {
		return translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*role = *created
	return nil
}

func (r *RoleRepo) GetByID(ctx context.Context, id uint64) (*model.Role, error) {
	role, err := scanRole(r.DB.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = ?", id))
	if err != nil {
		return nil, translate(err)
	}
	return role, nil
}

func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	role, err := scanRole(r.DB.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE name = ?", name))
	if err != nil {
		return nil, translate(err)
	}
	return role, nil
}

func (r *RoleRepo) List(ctx context.Context) ([]*model.Role, error) {
	return r.queryRoles(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY name")
}

// Update renames a non-system role. A system role, or a missing one, is left
// untouched; the two cases are told apart with a follow-up read.
func (r *RoleRepo) Update(ctx context.Context, id uint64, name, description string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE roles SET name = ?, description = ? WHERE id = ? AND is_system = FALSE",
		name, description, id)
	return r.systemAware(ctx, id, res, err)
}

// Delete removes a non-system role together with its assignments.
func (r *RoleRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM roles WHERE id = ? AND is_system = FALSE", id)
	return r.systemAware(ctx, id, res, err)
}

func (r *RoleRepo) systemAware(ctx context.Context, id uint64, res sql.Result, err error) error {
	err = expectOne(res, err)
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	role, gerr := r.GetByID(ctx, id)
	if gerr != nil {
		return gerr
	}
	if role.IsSystem {
		return ErrImmutable
	}
	// unchanged values report 0 rows unless the DSN sets clientFoundRows
	return nil
}

// GrantPermission links a permission to a role. Granting twice is a no-op.
func (r *RoleRepo) GrantPermission(ctx context.Context, roleID, permissionID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO role_permissions (role_id, permission_id) VALUES (?, ?)", roleID, permissionID)
	return translate(err)
}

// RevokePermission unlinks a permission. Revoking a missing link is a no-op.
func (r *RoleRepo) RevokePermission(ctx context.Context, roleID, permissionID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM role_permissions WHERE role_id = ? AND permission_id = ?", roleID, permissionID)
	return err
}

// AssignToUser gives a role to a user. The (user, role) primary key keeps the
// pair unique; assigning twice is a no-op.
func (r *RoleRepo) AssignToUser(ctx context.Context, userID, roleID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT IGNORE INTO user_roles (user_id, role_id) VALUES (?, ?)", userID, roleID)
	return translate(err)
}

// RemoveFromUser takes a role away from a user.
func (r *RoleRepo) RemoveFromUser(ctx context.Context, userID, roleID uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id = ? AND role_id = ?", userID, roleID)
	return expectOne(res, err)
}

// RolesOfUser lists the roles assigned to a user.
func (r *RoleRepo) RolesOfUser(ctx context.Context, userID uint64) ([]*model.Role, error) {
	return r.queryRoles(ctx,
		`SELECT r.id, r.name, r.description, r.is_system, r.created_at, r.updated_at
		   FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		  WHERE ur.user_id = ? ORDER BY r.name`, userID)
}

// ErrRoleHeld is returned by CreateFirstHolder when a live user already
// holds the role.
var ErrRoleHeld = errors.New("role already held")

// CreateFirstHolder inserts u and assigns it the named role, provided no
// non-deleted user holds that role yet. The role row is locked for the
// duration, so of two concurrent callers only one gets through; the other
// sees the first holder and gets ErrRoleHeld.
func (r *RoleRepo) CreateFirstHolder(ctx context.Context, roleName string, u *model.User) (role *model.Role, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer rollbackOn(tx, &err)

	role, err = scanRole(tx.QueryRowContext(ctx,
		"SELECT "+roleColumns+" FROM roles WHERE name = ? FOR UPDATE", roleName))
	if err != nil {
		return nil, translate(err)
	}
	var n int
	if err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles ur
		   JOIN users u ON u.id = ur.user_id
		  WHERE ur.role_id = ? AND u.deleted_at IS NULL`, role.ID).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, ErrRoleHeld
	}

	u.Email = NormalizeEmail(u.Email)
	if u.Status == "" {
		u.Status = model.UserActive
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO users (email, full_name, external_id, password_hash, status) VALUES (?,?,?,?,?)",
		u.Email, u.FullName, nullableString(u.ExternalID), u.PasswordHash, string(u.Status))
	if err != nil {
		return nil, translate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	if _, err = tx.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", uint64(id), role.ID); err != nil {
		return nil, translate(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}

	created, err := scanUser(r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id))
	if err != nil {
		return nil, translate(err)
	}
	*u = *created
	return role, nil
}
