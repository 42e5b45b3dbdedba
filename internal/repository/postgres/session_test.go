package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/Rrens/thread-router/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRepository connects to POSTGRES_TEST_DSN and starts from an empty table
func newTestRepository(t *testing.T) *SessionRepository {
	t.Helper()

	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	require.NoError(t, RunMigrations(dsn))

	db, err := Connect(context.Background(), dsn, 2, 0)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	repo := NewSessionRepository(db)
	_, err = repo.ClearAll(context.Background())
	require.NoError(t, err)
	return repo
}

func TestSessionRepository_Roundtrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "Ana", "thread_1"))

	threadID, ok, err := repo.GetThreadForUser(ctx, "Ana")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "thread_1", threadID)

	user, ok, err := repo.GetUserForThread(ctx, "thread_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Ana", user)

	require.NoError(t, repo.Upsert(ctx, "Ana", "thread_2"))
	_, ok, err = repo.GetUserForThread(ctx, "thread_1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionRepository_RejectsClaimedThread(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "Ana", "thread_1"))
	assert.ErrorIs(t, repo.Upsert(ctx, "Bruno", "thread_1"), domain.ErrThreadClaimed)
}

func TestSessionRepository_DeleteAndClear(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, "Ana", "thread_1"))
	require.NoError(t, repo.Upsert(ctx, "Bruno", "thread_2"))

	deleted, err := repo.Delete(ctx, "Ana")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.Delete(ctx, "Ana")
	require.NoError(t, err)
	assert.False(t, deleted)

	sessions, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Bruno", sessions[0].UserIdentity)

	assert.False(t, sessions[0].CreatedAt.IsZero())

	removed, err := repo.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	sessions, err = repo.ListAll(ctx)
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestSessionRepository_EmptyKeysAreAbsent(t *testing.T) {
	repo := &SessionRepository{}
	ctx := context.Background()

	_, ok, err := repo.GetThreadForUser(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = repo.GetUserForThread(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, repo.Upsert(ctx, "", "thread_1"), domain.ErrInvalidInput)
}
