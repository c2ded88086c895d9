package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/school-admin/internal/model"
)

const userColumns = "id, email, full_name, external_id, password_hash, status, reset_token_hash, reset_token_expires_at, deleted_at, created_at, updated_at"

// UserRepo persists accounts. Users are never hard-deleted.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u          model.User
		externalID sql.NullString
		resetHash  sql.NullString
		resetExp   sql.NullTime
		deletedAt  sql.NullTime
		status     string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.FullName, &externalID, &u.PasswordHash, &status,
		&resetHash, &resetExp, &deletedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Status = model.UserStatus(status)
	u.ExternalID = stringPtr(externalID)
	u.ResetTokenHash = stringPtr(resetHash)
	u.ResetTokenExpiresAt = timePtr(resetExp)
	u.DeletedAt = timePtr(deletedAt)
	return &u, nil
}

// Create inserts u and fills its ID and timestamps. A duplicate email yields
// ErrConflict.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = NormalizeEmail(u.Email)
	if u.Status == "" {
		u.Status = model.UserActive
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, full_name, external_id, password_hash, status) VALUES (?,?,?,?,?)",
		u.Email, u.FullName, nullableString(u.ExternalID), u.PasswordHash, string(u.Status))
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
	*u = *created
	return nil
}

// GetByID returns the user including soft-deleted rows.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", id)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetByEmail fetches a user by normalized email, soft-deleted included, so
// the caller decides how to treat a deleted account.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? LIMIT 1", NormalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetByResetHash finds the user holding a reset token hash.
func (r *UserRepo) GetByResetHash(ctx context.Context, hash string) (*model.User, error) {
	row := r.DB.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE reset_token_hash = ? LIMIT 1", hash)
	u, err := scanUser(row)
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// UserFilter narrows List.
type UserFilter struct {
	Status         model.UserStatus
	Query          string // matched against email and full name
	IncludeDeleted bool
	Page           Page
}

// List returns users ordered by id.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]*model.User, error) {
	qb := sq.Select(userColumns).From("users").OrderBy("id").Limit(f.Page.limit()).Offset(f.Page.Offset)
	if !f.IncludeDeleted {
		qb = qb.Where(sq.Eq{"deleted_at": nil})
	}
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"status": string(f.Status)})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + q + "%"
		qb = qb.Where(sq.Or{sq.Like{"email": like}, sq.Like{"full_name": like}})
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

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UpdateProfile changes the email and full name of a live user.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, email, fullName string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET email = ?, full_name = ? WHERE id = ? AND deleted_at IS NULL",
		NormalizeEmail(email), fullName, id)
	return expectOne(res, err)
}

// SetStatus changes the status of a live user.
func (r *UserRepo) SetStatus(ctx context.Context, id uint64, status model.UserStatus) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET status = ? WHERE id = ? AND deleted_at IS NULL", string(status), id)
	return expectOne(res, err)
}

// SoftDelete stamps deleted_at, deactivates the account and drops any pending
// reset token. Deleting twice is ErrNotFound.
func (r *UserRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET deleted_at = UTC_TIMESTAMP(), status = 'DEACTIVATED',
		        reset_token_hash = NULL, reset_token_expires_at = NULL
		  WHERE id = ? AND deleted_at IS NULL`, id)
	return expectOne(res, err)
}

// SetPasswordHash replaces the stored bcrypt hash.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id uint64, hash string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL", hash, id)
	return expectOne(res, err)
}

// SetResetToken stores the hash of a new reset token, replacing any previous
// one.
func (r *UserRepo) SetResetToken(ctx context.Context, id uint64, hash string, exp time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET reset_token_hash = ?, reset_token_expires_at = ? WHERE id = ? AND deleted_at IS NULL",
		hash, exp, id)
	return expectOne(res, err)
}

// RedeemResetToken swaps the password and clears the token in one statement,
// but only while the token is still present and unexpired at now. Exactly one
// of two concurrent redemptions can succeed; the loser gets ErrNotFound.
func (r *UserRepo) RedeemResetToken(ctx context.Context, hash, newPasswordHash string, now time.Time) (uint64, error) {
	u, err := r.GetByResetHash(ctx, hash)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, reset_token_hash = NULL, reset_token_expires_at = NULL
		  WHERE id = ? AND reset_token_hash = ? AND reset_token_expires_at > ? AND deleted_at IS NULL`,
		newPasswordHash, u.ID, hash, now)
	if err := expectOne(res, err); err != nil {
		return 0, err
	}
	return u.ID, nil
}
