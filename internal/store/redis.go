package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to redis with short timeouts.
func NewRedis(addr string) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
	})
	return &Redis{Client: client}
}

// Healthy verifies redis connectivity.
func (r *Redis) Healthy(ctx context.Context) bool {
	if r == nil || r.Client == nil {
		return false
	}
	return r.Client.Ping(ctx).Err() == nil
}

// RedisSnapshot keeps each collection as a JSON string under its own key and
// replaces both in one MULTI/EXEC.
type RedisSnapshot struct {
	client *redis.Client
	prefix string
}

// NewRedisSnapshot stores collections under prefix+"users" and prefix+"history".
func NewRedisSnapshot(client *redis.Client, prefix string) *RedisSnapshot {
	if prefix == "" {
		prefix = "faceattend:"
	}
	return &RedisSnapshot{client: client, prefix: prefix}
}

func (r *RedisSnapshot) usersKey() string   { return r.prefix + "users" }
func (r *RedisSnapshot) historyKey() string { return r.prefix + "history" }

// Load implements Backend.
func (r *RedisSnapshot) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	if err := r.get(ctx, r.usersKey(), &snap.Users); err != nil {
		return Snapshot{}, err
	}
	if err := r.get(ctx, r.historyKey(), &snap.History); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (r *RedisSnapshot) get(ctx context.Context, key string, into any) error {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// Replace implements Backend.
func (r *RedisSnapshot) Replace(ctx context.Context, snap Snapshot) error {
	snap.normalize()
	users, err := json.Marshal(snap.Users)
	if err != nil {
		return err
	}
	history, err := json.Marshal(snap.History)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.usersKey(), users, 0)
		pipe.Set(ctx, r.historyKey(), history, 0)
		return nil
	})
	return err
}

// Close implements Backend. The client belongs to the caller.
func (r *RedisSnapshot) Close() error { return nil }
