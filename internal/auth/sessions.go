package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore хранит выданные токены (по jti), чтобы logout мог их отозвать.
type SessionStore interface {
	Register(ctx context.Context, tokenID, userID string, expiresAt time.Time) error
	Active(ctx context.Context, tokenID string) (bool, error)
	Revoke(ctx context.Context, tokenID string) error
}

// MemorySessions - SessionStore в памяти процесса.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]time.Time
	now      func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{
		sessions: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *MemorySessions) Register(_ context.Context, tokenID, _ string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.sessions {
		if !exp.After(now) {
			delete(m.sessions, id)
		}
	}
	m.sessions[tokenID] = expiresAt
	return nil
}

func (m *MemorySessions) Active(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.sessions[tokenID]
	return ok && exp.After(m.now()), nil
}

func (m *MemorySessions) Revoke(_ context.Context, tokenID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, tokenID)
	return nil
}

const sessionKeyPrefix = "orderdesk:session:"

// RedisSessions хранит сессии в Redis с TTL до истечения токена.
type RedisSessions struct {
	client redis.UniversalClient
}

func NewRedisSessions(client redis.UniversalClient) *RedisSessions {
	return &RedisSessions{client: client}
}

func (r *RedisSessions) Register(ctx context.Context, tokenID, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+tokenID, userID, ttl).Err(); err != nil {
		return fmt.Errorf("register session: %w", err)
	}
	return nil
}

func (r *RedisSessions) Active(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, sessionKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisSessions) Revoke(ctx context.Context, tokenID string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+tokenID).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Ping проверяет соединение с Redis для readiness.
func (r *RedisSessions) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

var (
	_ SessionStore = (*MemorySessions)(nil)
	_ SessionStore = (*RedisSessions)(nil)
)
