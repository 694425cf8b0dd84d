package emailvalidation

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "validation_token:"

// RedisTokenStore keeps each token in a hash that Redis expires at ExpiresAt.
type RedisTokenStore struct {
	client redis.UniversalClient
}

// NewRedisTokenStore creates a Redis-backed token store.
func NewRedisTokenStore(client redis.UniversalClient) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

func tokenKey(id string) string {
	return tokenKeyPrefix + id
}

// Save writes the record and its expiry atomically.
func (s *RedisTokenStore) Save(ctx context.Context, rec Record) error {
	key := tokenKey(rec.ID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"fiscal_code", rec.FiscalCode,
			"email", rec.Email,
			"validator_hash", rec.ValidatorHash,
			"expires_at", rec.ExpiresAt.UTC().Format(time.RFC3339Nano),
		)
		pipe.ExpireAt(ctx, key, rec.ExpiresAt)
		return nil
	})
	return err
}

// Get returns the record or ErrTokenNotFound.
func (s *RedisTokenStore) Get(ctx context.Context, id string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, tokenKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrTokenNotFound
	}
	expiresAt, err := time.Parse(time.RFC3339Nano, fields["expires_at"])
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return &Record{
		ID:            id,
		FiscalCode:    fields["fiscal_code"],
		Email:         fields["email"],
		ValidatorHash: fields["validator_hash"],
		ExpiresAt:     expiresAt,
	}, nil
}

// Delete removes the record. DEL is atomic, so when two callers race only
// one of them sees a removed key.
func (s *RedisTokenStore) Delete(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Del(ctx, tokenKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Compile-time interface check
var _ TokenStore = (*RedisTokenStore)(nil)
