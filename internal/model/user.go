package model

import "time"

// UserStatus is the lifecycle state of an account. Only ACTIVE users can log
// in.
type UserStatus string

const (
	UserActive      UserStatus = "ACTIVE"
	UserInactive    UserStatus = "INACTIVE"
	UserDeactivated UserStatus = "DEACTIVATED"
)

// User represents a row of the `users` table. PasswordHash and the reset
// token columns never leave the service layer.
type User struct {
	ID                  uint64     `json:"id"`
	Email               string     `json:"email"`
	FullName            string     `json:"full_name"`
	ExternalID          *string    `json:"external_id,omitempty"`
	PasswordHash        string     `json:"-"`
	Status              UserStatus `json:"status"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	DeletedAt           *time.Time `json:"deleted_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Roles               []Role     `json:"roles,omitempty"`
}

// CanLogin reports whether the account may open a session.
func (u User) CanLogin() bool {
	return u.DeletedAt == nil && u.Status == UserActive
}

// RoleNames returns the names of the loaded roles.
func (u User) RoleNames() []string {
	out := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		out = append(out, r.Name)
	}
	return out
}

// Role represents a row of the `roles` table. System roles are seeded and
// cannot be changed through the API.
type Role struct {
	ID          uint64    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsSystem    bool      `json:"is_system"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditLog is an append-only record of a mutation.
type AuditLog struct {
	ID          string         `json:"id"`
	ActorUserID *uint64        `json:"actor_user_id,omitempty"`
	Action      string         `json:"action"`
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
