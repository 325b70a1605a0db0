// Package refreshtoken persists the external provider's refresh token
// per local account, for later offline renewal by other services. One
// record per account; a second save overwrites the first.
package refreshtoken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("refresh token not found")

// Record is the stored refresh credential. The token string is opaque;
// its format is the provider's business.
type Record struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// redisClient is the slice of the redis API the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// RedisStore keeps one record per account id. Concurrent saves for the
// same account are last-write-wins, which is an acceptable outcome for
// an overwrite-on-refresh credential.
type RedisStore struct {
	client redisClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *goredis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "refresh_token:",
		now:    time.Now,
	}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Save upserts the account's refresh token. An overwrite replaces the
// token and expiry but keeps the original created timestamp.
func (s *RedisStore) Save(ctx context.Context, userID string, token string, expiresIn int64) error {
	if userID == "" || token == "" {
		return fmt.Errorf("refreshtoken: missing user_id or token")
	}

	now := s.now()
	rec := newRecord(userID, token, expiresIn, now)
	if existing, err := s.Get(ctx, userID); err == nil {
		rec.CreatedAt = existing.CreatedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("refreshtoken: marshal: %w", err)
	}

	// A response without a usable expires_in still carries a valid
	// credential; store it without a TTL rather than dropping it.
	var ttl time.Duration
	if !rec.ExpiresAt.IsZero() {
		ttl = rec.ExpiresAt.Sub(now)
	}

	return s.client.Set(ctx, s.key(userID), data, ttl).Err()
}

// Get returns the account's current record. Used by token-renewal
// collaborators, not by the auth flow itself.
func (s *RedisStore) Get(ctx context.Context, userID string) (*Record, error) {
	val, err := s.client.Get(ctx, s.key(userID)).Result()
	if err == goredis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("refreshtoken: unmarshal: %w", err)
	}
	return &rec, nil
}

// newRecord leaves ExpiresAt zero when the provider gave no usable
// expiry; Save stores such records without a TTL.
func newRecord(userID, token string, expiresIn int64, now time.Time) Record {
	rec := Record{
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
	}
	if expiresIn > 0 {
		rec.ExpiresAt = now.Add(time.Duration(expiresIn) * time.Second)
	}
	return rec
}
