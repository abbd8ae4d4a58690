package store

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenRevoker blacklists session tokens until they would have expired
// anyway. The JWT session store consults it on every lookup so logout
// works for self-contained tokens.
type TokenRevoker interface {
	Revoke(token string, ttl time.Duration) error
	IsRevoked(token string) (bool, error)
}

// MemoryTokenRevoker is the in-process revoker used in tests and
// single-instance runs.
type MemoryTokenRevoker struct {
	mu      sync.Mutex
	expires map[string]time.Time
}

// NewMemoryTokenRevoker builds an empty in-memory revoker.
func NewMemoryTokenRevoker() *MemoryTokenRevoker {
	return &MemoryTokenRevoker{expires: make(map[string]time.Time)}
}

// Revoke blacklists the token for ttl. Non-positive ttl means the token
// is already expired and needs no entry.
func (r *MemoryTokenRevoker) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expires[token] = time.Now().Add(ttl)
	return nil
}

// IsRevoked reports whether the token is on the blacklist. Expired
// entries are dropped on read.
func (r *MemoryTokenRevoker) IsRevoked(token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	until, ok := r.expires[token]
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		delete(r.expires, token)
		return false, nil
	}
	return true, nil
}

// RedisTokenRevoker shares the blacklist across instances; redis TTLs
// garbage-collect entries.
type RedisTokenRevoker struct {
	client *redis.Client
}

// NewRedisTokenRevoker connects a redis-backed revoker.
func NewRedisTokenRevoker(addr, password string) *RedisTokenRevoker {
	return &RedisTokenRevoker{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}
}

// Revoke blacklists the token for ttl.
func (r *RedisTokenRevoker) Revoke(token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return r.client.Set(ctx, revocationKey(token), "1", ttl).Err()
}

// IsRevoked reports whether the token is on the blacklist.
func (r *RedisTokenRevoker) IsRevoked(token string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	n, err := r.client.Exists(ctx, revocationKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func revocationKey(token string) string {
	return "sensetech:revoked:" + token
}
