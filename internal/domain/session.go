package domain

import (
	"context"
	"time"
)

// Session associates a user identity with a remote thread
type Session struct {
	UserIdentity string    `json:"user_identity"`
	ThreadID     string    `json:"thread_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionRepository defines the interface for the user to thread registry.
//
// Lookups report absence through the boolean result, never through an error.
// Errors are returned only for genuine storage failures (wrapped in
// *StorageError) or invalid arguments (ErrInvalidInput, ErrThreadClaimed).
type SessionRepository interface {
	// GetThreadForUser returns the thread registered for user
	GetThreadForUser(ctx context.Context, user string) (string, bool, error)

	// GetUserForThread returns the user that owns threadID
	GetUserForThread(ctx context.Context, threadID string) (string, bool, error)

	// Upsert inserts or overwrites the thread registered for user
	Upsert(ctx context.Context, user, threadID string) error

	// Delete removes the record for user and reports whether one existed
	Delete(ctx context.Context, user string) (bool, error)

	// ClearAll irreversibly removes every record and returns how many were removed
	ClearAll(ctx context.Context) (int64, error)

	// ListAll returns every record ordered by user identity
	ListAll(ctx context.Context) ([]Session, error)
}

// SessionUpsert is the admin payload for registering a thread
type SessionUpsert struct {
	ThreadID string `json:"thread_id" validate:"required,max=255"`
}
