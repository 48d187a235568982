package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"chatsync/internal/logger"
)

const defaultPrefix = "chatsync:presence"

// Redis key patterns:
// {prefix}:online             SET<identity>        - identities online on any instance
// {prefix}:owner:{identity}   STRING<instance id>  - instance holding the live handle, with TTL

// releaseScript deletes the owner key and set member only while this
// instance still owns the identity.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	redis.call("DEL", KEYS[1])
	redis.call("SREM", KEYS[2], ARGV[2])
	return 1
end
return 0
`)

// refreshScript extends the owner key only while this instance owns it,
// so a newer connection on another instance is never taken back.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisRegistry keeps connection handles in a local MemoryRegistry and
// mirrors the online set into Redis so every instance sees the same
// online list. Lookup stays local: a handle cannot cross processes.
type RedisRegistry struct {
	local      *MemoryRegistry
	client     *redis.Client
	prefix     string
	instanceID string
	ttl        time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRedisRegistry connects to redisURL and verifies it with a ping.
func NewRedisRegistry(ctx context.Context, redisURL, instanceID string, ttl time.Duration) (*RedisRegistry, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisRegistryWithClient(client, instanceID, ttl), nil
}

// NewRedisRegistryWithClient builds a registry on an existing client.
func NewRedisRegistryWithClient(client *redis.Client, instanceID string, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisRegistry{
		local:      NewMemoryRegistry(),
		client:     client,
		prefix:     defaultPrefix,
		instanceID: instanceID,
		ttl:        ttl,
	}
}

func (r *RedisRegistry) onlineKey() string {
	return r.prefix + ":online"
}

func (r *RedisRegistry) ownerKey(identity string) string {
	return fmt.Sprintf("%s:owner:%s", r.prefix, identity)
}

// Register maps identity locally and claims it in Redis.
func (r *RedisRegistry) Register(ctx context.Context, identity string, conn Conn) (Conn, error) {
	prev, _ := r.local.Register(ctx, identity, conn)

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.ownerKey(identity), r.instanceID, r.ttl)
	pipe.SAdd(ctx, r.onlineKey(), identity)
	if _, err := pipe.Exec(ctx); err != nil {
		return prev, fmt.Errorf("failed to publish presence: %w", err)
	}
	return prev, nil
}

// Unregister drops the local mapping if it still points at conn and
// releases the Redis claim if this instance still owns it.
func (r *RedisRegistry) Unregister(ctx context.Context, identity string, conn Conn) (bool, error) {
	removed, _ := r.local.Unregister(ctx, identity, conn)
	if !removed {
		return false, nil
	}

	keys := []string{r.ownerKey(identity), r.onlineKey()}
	if err := releaseScript.Run(ctx, r.client, keys, r.instanceID, identity).Err(); err != nil {
		return true, fmt.Errorf("failed to release presence: %w", err)
	}
	return true, nil
}

// Lookup returns the handle held by this instance.
func (r *RedisRegistry) Lookup(ctx context.Context, identity string) (Conn, bool) {
	return r.local.Lookup(ctx, identity)
}

// ListOnline returns the cluster-wide online set. Members whose owner
// key expired (a crashed instance) are pruned.
func (r *RedisRegistry) ListOnline(ctx context.Context) ([]string, error) {
	members, err := r.client.SMembers(ctx, r.onlineKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}

	pipe := r.client.Pipeline()
	checks := make([]*redis.IntCmd, len(members))
	for i, id := range members {
		checks[i] = pipe.Exists(ctx, r.ownerKey(id))
	}
	if len(members) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("failed to check presence owners: %w", err)
		}
	}

	online := make([]string, 0, len(members))
	var stale []interface{}
	for i, id := range members {
		if checks[i].Val() == 1 {
			online = append(online, id)
		} else {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		r.client.SRem(ctx, r.onlineKey(), stale...)
	}

	sort.Strings(online)
	return online, nil
}

// StartHeartbeat refreshes the owner keys of local identities until ctx
// is cancelled or Close is called.
func (r *RedisRegistry) StartHeartbeat(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	interval := r.ttl / 3
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.refresh(ctx)
			}
		}
	}()

	l := logger.L()
	l.Info().Dur("interval", interval).Dur("ttl", r.ttl).Msg("presence heartbeat started")
}

func (r *RedisRegistry) refresh(ctx context.Context) {
	ids, _ := r.local.ListOnline(ctx)
	for _, id := range ids {
		err := refreshScript.Run(ctx, r.client, []string{r.ownerKey(id)}, r.instanceID, r.ttl.Milliseconds()).Err()
		if err != nil && err != redis.Nil {
			l := logger.L()
			l.Error().Str(logger.FieldUserID, id).Err(err).Msg("failed to refresh presence")
		}
	}
}

// Close stops the heartbeat and closes the Redis client.
func (r *RedisRegistry) Close() error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.mu.Unlock()
	return r.client.Close()
}
