// Package queue defines the messages exchanged over RabbitMQ and the
// publisher and consumer that move them.
package queue

import "time"

// PasswordResetQueue carries PasswordResetRequested events to the mail
// worker.
const PasswordResetQueue = "password.reset.requested"

// PasswordResetRequested is published when a user asks for a reset link. It
// holds everything the mail worker needs to send the message without
// querying the database. The raw token only appears inside ResetURL.
type PasswordResetRequested struct {
	UserID      uint64    `json:"user_id"`
	Email       string    `json:"email"`
	FullName    string    `json:"full_name"`
	ResetURL    string    `json:"reset_url"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequestedAt time.Time `json:"requested_at"`
}
