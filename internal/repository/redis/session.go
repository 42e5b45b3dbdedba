package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Rrens/thread-router/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// SessionRepository implements domain.SessionRepository with three hashes:
// users (user -> thread), threads (thread -> user) and times
// (user -> "created:updated" in unix millis). Mutations run under WATCH so
// the hashes change together.
type SessionRepository struct {
	client     *Client
	usersKey   string
	threadsKey string
	timesKey   string
}

// NewSessionRepository creates a new redis-backed registry
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{
		client:     client,
		usersKey:   client.key("users"),
		threadsKey: client.key("threads"),
		timesKey:   client.key("times"),
	}
}

func (r *SessionRepository) GetThreadForUser(ctx context.Context, user string) (string, bool, error) {
	if user == "" {
		return "", false, nil
	}
	return r.hget(ctx, "get thread", r.usersKey, user)
}

func (r *SessionRepository) GetUserForThread(ctx context.Context, threadID string) (string, bool, error) {
	if threadID == "" {
		return "", false, nil
	}
	return r.hget(ctx, "get user", r.threadsKey, threadID)
}

func (r *SessionRepository) Upsert(ctx context.Context, user, threadID string) error {
	if user == "" || threadID == "" {
		return fmt.Errorf("%w: user identity and thread id are required", domain.ErrInvalidInput)
	}

	return r.watch(ctx, "upsert", func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, r.threadsKey, threadID).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil && owner != user {
			return fmt.Errorf("%w: %s belongs to %q", domain.ErrThreadClaimed, threadID, owner)
		}

		prev, err := tx.HGet(ctx, r.usersKey, user).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		if prev == threadID {
			return nil
		}

		times, err := tx.HGet(ctx, r.timesKey, user).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		now := time.Now().UTC()
		created, _ := parseTimes(times)
		if prev == "" || created.IsZero() {
			created = now
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prev != "" {
				pipe.HDel(ctx, r.threadsKey, prev)
			}
			pipe.HSet(ctx, r.usersKey, user, threadID)
			pipe.HSet(ctx, r.threadsKey, threadID, user)
			pipe.HSet(ctx, r.timesKey, user, formatTimes(created, now))
			return nil
		})
		return err
	})
}

func (r *SessionRepository) Delete(ctx context.Context, user string) (bool, error) {
	if user == "" {
		return false, nil
	}

	var deleted bool
	err := r.watch(ctx, "delete", func(tx *redis.Tx) error {
		threadID, err := tx.HGet(ctx, r.usersKey, user).Result()
		if err == redis.Nil {
			deleted = false
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, r.usersKey, user)
			pipe.HDel(ctx, r.threadsKey, threadID)
			pipe.HDel(ctx, r.timesKey, user)
			return nil
		})
		deleted = err == nil
		return err
	})
	return deleted, err
}

func (r *SessionRepository) ClearAll(ctx context.Context) (int64, error) {
	var removed int64
	err := r.watch(ctx, "clear", func(tx *redis.Tx) error {
		n, err := tx.HLen(ctx, r.usersKey).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.usersKey, r.threadsKey, r.timesKey)
			return nil
		})
		removed = n
		return err
	})
	return removed, err
}

func (r *SessionRepository) ListAll(ctx context.Context) ([]domain.Session, error) {
	var users, times *redis.MapStringStringCmd
	_, err := r.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		users = pipe.HGetAll(ctx, r.usersKey)
		times = pipe.HGetAll(ctx, r.timesKey)
		return nil
	})
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}

	stamps := times.Val()
	sessions := make([]domain.Session, 0, len(users.Val()))
	for user, threadID := range users.Val() {
		created, updated := parseTimes(stamps[user])
		sessions = append(sessions, domain.Session{
			UserIdentity: user,
			ThreadID:     threadID,
			CreatedAt:    created,
			UpdatedAt:    updated,
		})
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UserIdentity < sessions[j].UserIdentity
	})
	return sessions, nil
}

func (r *SessionRepository) hget(ctx context.Context, op, key, field string) (string, bool, error) {
	value, err := r.client.rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewStorageError(op, err)
	}
	return value, true, nil
}

// watch runs fn under WATCH on all hashes, retrying when another writer
// touched them first
func (r *SessionRepository) watch(ctx context.Context, op string, fn func(*redis.Tx) error) error {
	var err error
	for i := 0; i < maxTxRetries; i++ {
		err = r.client.rdb.Watch(ctx, fn, r.usersKey, r.threadsKey, r.timesKey)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrThreadClaimed):
		return err
	default:
		return domain.NewStorageError(op, err)
	}
}

func formatTimes(created, updated time.Time) string {
	return strconv.FormatInt(created.UnixMilli(), 10) + ":" + strconv.FormatInt(updated.UnixMilli(), 10)
}

// parseTimes returns zero times for a missing or malformed value
func parseTimes(v string) (time.Time, time.Time) {
	c, u, ok := strings.Cut(v, ":")
	if !ok {
		return time.Time{}, time.Time{}
	}
	created, err := strconv.ParseInt(c, 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	updated, err := strconv.ParseInt(u, 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}
	}
	return time.UnixMilli(created).UTC(), time.UnixMilli(updated).UTC()
}
