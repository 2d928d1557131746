package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Revoker is the logout denylist.  A token whose jti is revoked is rejected by
// the gate until it would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, jti string, exp time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisDenylist keeps revoked jti values as Redis keys that expire together
// with the token.
type RedisDenylist struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisDenylist(rdb *redis.Client) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, prefix: "revoked", now: time.Now}
}

func (d *RedisDenylist) key(jti string) string { return d.prefix + ":" + jti }

// Revoke denylists jti until exp.  Already expired tokens are ignored.
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, exp time.Time) error {
	ttl := exp.Sub(d.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, d.key(jti), 1, ttl).Err()
}

func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	n, err := d.rdb.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
