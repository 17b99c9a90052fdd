package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gomodule/redigo/redis"
)

// RedisStore is an optional Store backed by Redis via redigo, for
// deployments that want the cache shared across gateway instances. Tags are
// tracked with Redis sets keyed "tag:<tag>" holding member cache keys.
type RedisStore struct {
	Pool *redis.Pool

	connected    atomic.Bool
	retryCounter atomic.Int64
}

func NewRedisStore(pool *redis.Pool) *RedisStore {
	s := &RedisStore{Pool: pool}
	s.connected.Store(true)
	return s
}

func (r *RedisStore) Fetch(ctx context.Context, key string) (Entry, bool, error) {
	conn, err := r.Pool.GetContext(ctx)
	if err != nil {
		return Entry{}, false, r.noteFailure(err)
	}
	defer conn.Close()

	b, err := redis.Bytes(conn.Do("GET", key))
	if err == redis.ErrNil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, r.noteFailure(err)
	}
	return Entry{Key: key, Value: b}, true, nil
}

func (r *RedisStore) FetchMulti(ctx context.Context, keys []string) (map[string]Entry, error) {
	out := make(map[string]Entry, len(keys))
	for _, k := range keys {
		e, ok, err := r.Fetch(ctx, k)
		if err != nil {
			return out, err
		}
		if ok {
			out[k] = e
		}
	}
	return out, nil
}

func (r *RedisStore) Insert(ctx context.Context, entry Entry) error {
	conn, err := r.Pool.GetContext(ctx)
	if err != nil {
		return r.noteFailure(err)
	}
	defer conn.Close()

	ttl := int(time.Until(entry.ExpiresAt).Seconds())
	if ttl <= 0 {
		ttl = 1
	}
	if _, err := conn.Do("SET", entry.Key, entry.Value, "EX", ttl); err != nil {
		return r.noteFailure(err)
	}
	for _, tag := range entry.Tags {
		if _, err := conn.Do("SADD", "tag:"+tag, entry.Key); err != nil {
			return r.noteFailure(err)
		}
	}
	r.connected.Store(true)
	return nil
}

func (r *RedisStore) InsertBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStore) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	conn, err := r.Pool.GetContext(ctx)
	if err != nil {
		return 0, r.noteFailure(err)
	}
	defer conn.Close()

	members, err := redis.Strings(conn.Do("SMEMBERS", "tag:"+tag))
	if err != nil {
		return 0, r.noteFailure(err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	args := redis.Args{}.Add(members[0])
	for _, m := range members[1:] {
		args = args.Add(m)
	}
	if _, err := conn.Do("DEL", args...); err != nil {
		return 0, r.noteFailure(err)
	}
	if _, err := conn.Do("DEL", "tag:"+tag); err != nil {
		return 0, r.noteFailure(err)
	}
	return len(members), nil
}

func (r *RedisStore) noteFailure(err error) error {
	r.connected.Store(false)
	r.retryCounter.Add(1)
	return fmt.Errorf("cache: redis store: %w", err)
}

// Connected reports whether the last operation against Redis succeeded.
// RunReconnectionTask clears this back to true once connectivity returns.
func (r *RedisStore) Connected() bool { return r.connected.Load() }

// RetryCount is the storage-connection-retry counter.
func (r *RedisStore) RetryCount() int64 { return r.retryCounter.Load() }

// RunReconnectionTask polls the pool on a fixed interval until ctx is
// cancelled, refreshing Connected()/RetryCount() so callers can surface
// connectivity metrics without failing requests on the hot path.
func (r *RedisStore) RunReconnectionTask(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.connected.Load() {
				continue
			}
			conn, err := r.Pool.GetContext(ctx)
			if err != nil {
				r.retryCounter.Add(1)
				continue
			}
			_, err = conn.Do("PING")
			conn.Close()
			if err == nil {
				r.connected.Store(true)
			} else {
				r.retryCounter.Add(1)
			}
		}
	}
}
