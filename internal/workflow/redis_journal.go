package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	instanceKeyPrefix = "workflow:instance:"
	pendingKey        = "workflow:pending"
)

// RedisJournal stores instances as JSON strings and tracks non-terminal
// ones in a set, so a restarted process can resume them.
type RedisJournal struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisJournal creates a journal. Terminal instances expire after
// retention; zero keeps them forever.
func NewRedisJournal(client redis.UniversalClient, retention time.Duration) *RedisJournal {
	return &RedisJournal{client: client, retention: retention}
}

func instanceKey(id string) string {
	return instanceKeyPrefix + id
}

// Save writes inst and updates the pending set in one transaction.
func (j *RedisJournal) Save(ctx context.Context, inst *Instance) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode instance: %w", err)
	}

	_, err = j.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if inst.Status.Terminal() {
			pipe.Set(ctx, instanceKey(inst.ID), data, j.retention)
			pipe.SRem(ctx, pendingKey, inst.ID)
		} else {
			pipe.Set(ctx, instanceKey(inst.ID), data, 0)
			pipe.SAdd(ctx, pendingKey, inst.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save instance %s: %w", inst.ID, err)
	}
	return nil
}

// Load reads one instance.
func (j *RedisJournal) Load(ctx context.Context, id string) (*Instance, error) {
	data, err := j.client.Get(ctx, instanceKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load instance %s: %w", id, err)
	}

	var inst Instance
	if err := json.Unmarshal(data, &inst); err != nil {
		return nil, fmt.Errorf("decode instance %s: %w", id, err)
	}
	return &inst, nil
}

// Pending returns the ids of non-terminal instances in a stable order.
func (j *RedisJournal) Pending(ctx context.Context) ([]string, error) {
	ids, err := j.client.SMembers(ctx, pendingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending instances: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// Compile-time interface check
var _ Journal = (*RedisJournal)(nil)
