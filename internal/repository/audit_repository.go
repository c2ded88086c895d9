package repository

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"github.com/iliyamo/school-admin/internal/model"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.Reader, 0)
)

// newAuditID returns a time-ordered ULID so audit rows sort by insertion.
func newAuditID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// AuditRepo appends to and reads the audit trail. Entries are immutable: the
// repository has no update or delete.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Append writes an entry, assigning its ID and timestamp.
func (r *AuditRepo) Append(ctx context.Context, e *model.AuditLog) error {
	now := time.Now().UTC()
	e.ID = newAuditID(now)
	e.CreatedAt = now
	var meta any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, metadata, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		e.ID, nullableUint(e.ActorUserID), e.Action, e.EntityType, e.EntityID, meta, e.CreatedAt)
	return err
}

// AuditFilter narrows List.
type AuditFilter struct {
	EntityType string
	EntityID   string
	ActorID    *uint64
	Page       Page
}

// List returns entries newest first.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter) ([]*model.AuditLog, error) {
	qb := sq.Select("id", "actor_user_id", "action", "entity_type", "entity_id", "metadata", "created_at").
		From("audit_logs").
		OrderBy("id DESC").
		Limit(f.Page.limit()).
		Offset(f.Page.Offset)
	if f.EntityType != "" {
		qb = qb.Where(sq.Eq{"entity_type": f.EntityType})
	}
	if f.EntityID != "" {
		qb = qb.Where(sq.Eq{"entity_id": f.EntityID})
	}
	if f.ActorID != nil {
		qb = qb.Where(sq.Eq{"actor_user_id": *f.ActorID})
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

	var out []*model.AuditLog
	for rows.Next() {
		var (
			e     model.AuditLog
			actor sql.NullInt64
			meta  []byte
		)
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.EntityType, &e.EntityID, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ActorUserID = uintPtr(actor)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
