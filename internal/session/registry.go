package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry tracks revoked session ids until their tokens expire.
type Registry interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
	Close() error
}

// MemoryRegistry is the in-process fallback used when Redis is not
// configured. Revocations do not survive a restart, which is acceptable
// because tokens themselves expire.
type MemoryRegistry struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{revoked: make(map[string]time.Time)}
}

func (m *MemoryRegistry) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = time.Now().Add(ttl)
	// Opportunistic sweep of expired entries.
	if len(m.revoked) > 1024 {
		now := time.Now()
		for sid, exp := range m.revoked {
			if exp.Before(now) {
				delete(m.revoked, sid)
			}
		}
	}
	return nil
}

func (m *MemoryRegistry) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if exp.Before(time.Now()) {
		delete(m.revoked, sessionID)
		return false, nil
	}
	return true, nil
}

func (m *MemoryRegistry) Close() error { return nil }

// RedisRegistry stores revocations in Redis so they are shared across
// processes and survive restarts.
type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(ctx context.Context, addr, password string, db int) (*RedisRegistry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &RedisRegistry{client: client}, nil
}

func revocationKey(sessionID string) string {
	return "session:revoked:" + sessionID
}

func (r *RedisRegistry) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	return r.client.Set(ctx, revocationKey(sessionID), "1", ttl).Err()
}

func (r *RedisRegistry) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, revocationKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRegistry) Close() error {
	return r.client.Close()
}
