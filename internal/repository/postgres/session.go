package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/thread-router/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// SessionRepository implements domain.SessionRepository on postgres.
// The unique index on thread_id keeps the mapping one-to-one.
type SessionRepository struct {
	db *DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) GetThreadForUser(ctx context.Context, user string) (string, bool, error) {
	if user == "" {
		return "", false, nil
	}
	return r.lookup(ctx, "get thread", `SELECT thread_id FROM sessions WHERE user_identity = $1`, user)
}

func (r *SessionRepository) GetUserForThread(ctx context.Context, threadID string) (string, bool, error) {
	if threadID == "" {
		return "", false, nil
	}
	return r.lookup(ctx, "get user", `SELECT user_identity FROM sessions WHERE thread_id = $1`, threadID)
}

func (r *SessionRepository) Upsert(ctx context.Context, user, threadID string) error {
	if user == "" || threadID == "" {
		return fmt.Errorf("%w: user identity and thread id are required", domain.ErrInvalidInput)
	}

	query := `
		INSERT INTO sessions (user_identity, thread_id, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (user_identity) DO UPDATE
		SET thread_id = EXCLUDED.thread_id,
		    updated_at = CASE
		        WHEN sessions.thread_id = EXCLUDED.thread_id THEN sessions.updated_at
		        ELSE NOW()
		    END
	`
	_, err := r.db.Pool.Exec(ctx, query, user, threadID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrThreadClaimed, threadID)
		}
		return domain.NewStorageError("upsert", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, user string) (bool, error) {
	if user == "" {
		return false, nil
	}

	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions WHERE user_identity = $1`, user)
	if err != nil {
		return false, domain.NewStorageError("delete", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepository) ClearAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM sessions`)
	if err != nil {
		return 0, domain.NewStorageError("clear", err)
	}
	return tag.RowsAffected(), nil
}

func (r *SessionRepository) ListAll(ctx context.Context) ([]domain.Session, error) {
	query := `
		SELECT user_identity, thread_id, created_at, updated_at
		FROM sessions
		ORDER BY user_identity
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		var s domain.Session
		if err := rows.Scan(&s.UserIdentity, &s.ThreadID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, domain.NewStorageError("list", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list", err)
	}
	return sessions, nil
}

func (r *SessionRepository) lookup(ctx context.Context, op, query, arg string) (string, bool, error) {
	var value string
	err := r.db.Pool.QueryRow(ctx, query, arg).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, domain.NewStorageError(op, err)
	}
	return value, true, nil
}
