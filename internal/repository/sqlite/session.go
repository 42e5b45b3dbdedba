package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/Rrens/thread-router/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		user_identity TEXT PRIMARY KEY,
		thread_id     TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_thread_id
		ON sessions(thread_id);
`

// errNoStore signals that the registry file or its schema has not been
// created yet
var errNoStore = errors.New("registry file does not exist")

// SessionRepository implements domain.SessionRepository on a SQLite file.
// The file is opened for the duration of each operation and closed before
// returning: read-only for lookups, read-write for mutations.
type SessionRepository struct {
	path        string
	busyTimeout time.Duration
}

// NewSessionRepository creates a repository backed by the file at path.
// Parent directories are created if needed; the file itself is created on
// the first mutation.
func NewSessionRepository(path string, busyTimeout time.Duration) (*SessionRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("registry file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating registry directory: %w", err)
	}
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	return &SessionRepository{path: path, busyTimeout: busyTimeout}, nil
}

// Path returns the registry file location
func (r *SessionRepository) Path() string {
	return r.path
}

func (r *SessionRepository) GetThreadForUser(ctx context.Context, user string) (string, bool, error) {
	if user == "" {
		return "", false, nil
	}

	var threadID string
	err := r.read(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT thread_id FROM sessions WHERE user_identity = ?`, user,
		).Scan(&threadID)
	})
	return lookupResult(threadID, "get thread", err)
}

func (r *SessionRepository) GetUserForThread(ctx context.Context, threadID string) (string, bool, error) {
	if threadID == "" {
		return "", false, nil
	}

	var user string
	err := r.read(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx,
			`SELECT user_identity FROM sessions WHERE thread_id = ? ORDER BY user_identity LIMIT 1`, threadID,
		).Scan(&user)
	})
	return lookupResult(user, "get user", err)
}

func (r *SessionRepository) Upsert(ctx context.Context, user, threadID string) error {
	if user == "" || threadID == "" {
		return fmt.Errorf("%w: user identity and thread id are required", domain.ErrInvalidInput)
	}

	now := time.Now().UnixMilli()
	return r.write(ctx, "upsert", func(tx *sql.Tx) error {
		var owner string
		err := tx.QueryRowContext(ctx,
			`SELECT user_identity FROM sessions WHERE thread_id = ? AND user_identity <> ?`, threadID, user,
		).Scan(&owner)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %s belongs to %q", domain.ErrThreadClaimed, threadID, owner)
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		// Re-registering the same pair leaves updated_at untouched.
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sessions (user_identity, thread_id, created_at, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(user_identity) DO UPDATE SET
				updated_at = CASE WHEN sessions.thread_id = excluded.thread_id
					THEN sessions.updated_at ELSE excluded.updated_at END,
				thread_id = excluded.thread_id
		`, user, threadID, now, now)
		return err
	})
}

func (r *SessionRepository) Delete(ctx context.Context, user string) (bool, error) {
	if user == "" {
		return false, nil
	}

	var affected int64
	err := r.write(ctx, "delete", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE user_identity = ?`, user)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected > 0, err
}

func (r *SessionRepository) ClearAll(ctx context.Context) (int64, error) {
	var affected int64
	err := r.write(ctx, "clear", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sessions`)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (r *SessionRepository) ListAll(ctx context.Context) ([]domain.Session, error) {
	sessions := []domain.Session{}
	err := r.read(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `
			SELECT user_identity, thread_id, created_at, updated_at
			FROM sessions
			ORDER BY user_identity
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s domain.Session
			var created, updated int64
			if err := rows.Scan(&s.UserIdentity, &s.ThreadID, &created, &updated); err != nil {
				return err
			}
			s.CreatedAt = time.UnixMilli(created).UTC()
			s.UpdatedAt = time.UnixMilli(updated).UTC()
			sessions = append(sessions, s)
		}
		return rows.Err()
	})
	if err != nil && !errors.Is(err, errNoStore) {
		return nil, domain.NewStorageError("list", err)
	}
	return sessions, nil
}

// read opens the file read-only, runs fn, and closes it again.
// It returns errNoStore without touching the filesystem when the file
// does not exist yet, and when the file holds no sessions table.
func (r *SessionRepository) read(ctx context.Context, fn func(*sql.DB) error) error {
	if _, err := os.Stat(r.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errNoStore
		}
		return err
	}

	db, err := r.open(ctx, "ro")
	if err != nil {
		return err
	}
	defer db.Close()

	var tables int
	if err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'sessions'`,
	).Scan(&tables); err != nil {
		return err
	}
	if tables == 0 {
		return errNoStore
	}

	return fn(db)
}

// write opens the file read-write, ensures the schema, runs fn in a
// transaction, and closes the file again
func (r *SessionRepository) write(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	db, err := r.open(ctx, "rwc")
	if err != nil {
		return domain.NewStorageError(op, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return domain.NewStorageError(op, fmt.Errorf("creating schema: %w", err))
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if errors.Is(err, domain.ErrThreadClaimed) {
			return err
		}
		return domain.NewStorageError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError(op, err)
	}
	return nil
}

func (r *SessionRepository) open(ctx context.Context, mode string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=%s&_pragma=busy_timeout(%d)", r.path, mode, r.busyTimeout.Milliseconds())
	if mode != "ro" {
		// take the write lock up front so the ownership check and the
		// insert see the same snapshot
		dsn += "&_txlock=immediate"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	return db, nil
}

func lookupResult(value, op string, err error) (string, bool, error) {
	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, sql.ErrNoRows), errors.Is(err, errNoStore):
		return "", false, nil
	default:
		return "", false, domain.NewStorageError(op, err)
	}
}
