package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// PresenceMirror mirrors the in-process presence set into redis so sibling
// services can answer "is X online" without holding a socket. The in-memory
// registry stays the source of truth; every mirror write is best-effort.
//
// key: rt:presence:<user>, value: gateway id, TTL bounds staleness when a
// gateway dies without cleaning up.
type PresenceMirror struct {
	rdb       *redis.Client
	gatewayID string
	ttl       time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewPresenceMirror(c RedisConfig, gatewayID string, ttl time.Duration) *PresenceMirror {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceMirror{
		rdb:       redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}),
		gatewayID: gatewayID,
		ttl:       ttl,
	}
}

func presenceKey(user string) string { return "rt:presence:" + user }

func (p *PresenceMirror) Online(ctx context.Context, user string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Set(ctx, presenceKey(user), p.gatewayID, p.ttl).Err()
}

func (p *PresenceMirror) Refresh(ctx context.Context, user string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Expire(ctx, presenceKey(user), p.ttl).Err()
}

func (p *PresenceMirror) Offline(ctx context.Context, user string) error {
	if p == nil {
		return nil
	}
	return p.rdb.Del(ctx, presenceKey(user)).Err()
}

// Lookup reports which gateway holds the user, if any.
func (p *PresenceMirror) Lookup(ctx context.Context, user string) (gatewayID string, online bool, err error) {
	if p == nil {
		return "", false, nil
	}
	val, err := p.rdb.Get(ctx, presenceKey(user)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (p *PresenceMirror) Close() error {
	if p == nil {
		return nil
	}
	return p.rdb.Close()
}
