package validatedemail

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "validated_email:"

// RedisIndex implements Index with one set of fiscal codes per email.
type RedisIndex struct {
	client redis.UniversalClient
}

// NewRedisIndex creates a Redis-backed index.
func NewRedisIndex(client redis.UniversalClient) *RedisIndex {
	return &RedisIndex{client: client}
}

// Insert adds fiscalCode to the set of email.
func (x *RedisIndex) Insert(ctx context.Context, fiscalCode, email string) error {
	return x.client.SAdd(ctx, redisKeyPrefix+email, fiscalCode).Err()
}

// Delete removes fiscalCode from the set of email.
func (x *RedisIndex) Delete(ctx context.Context, fiscalCode, email string) error {
	return x.client.SRem(ctx, redisKeyPrefix+email, fiscalCode).Err()
}

// Lookup returns the fiscal codes that validated email, sorted.
func (x *RedisIndex) Lookup(ctx context.Context, email string) ([]string, error) {
	codes, err := x.client.SMembers(ctx, redisKeyPrefix+email).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(codes)
	return codes, nil
}

// Compile-time interface check
var _ Index = (*RedisIndex)(nil)
