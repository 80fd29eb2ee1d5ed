package kv

import (
	"context"
	"log/slog"

	goredis "github.com/go-redis/redis/v8"
)

// CooldownKey builds the throttle key for an (event kind, symbol) pair.
// Candle alerts and fused-event alerts throttle independently per symbol.
func CooldownKey(kind, symbol string) string {
	return cooldownKeyPref + kind + ":" + symbol
}

// CanAlert reports whether no cooldown is currently set for (kind, symbol).
// A KV failure counts as "can alert": a duplicate notification is preferable
// to a silently dropped one.
func (s *Store) CanAlert(ctx context.Context, kind, symbol string) bool {
	err := s.rdb.Get(ctx, CooldownKey(kind, symbol)).Err()
	if err == goredis.Nil {
		return true
	}
	if err != nil {
		slog.Warn("cooldown check failed", "kind", kind, "symbol", symbol, "err", err)
		return true
	}
	return false
}

// SetCooldown marks (kind, symbol) as alerted for ttlSec seconds.
func (s *Store) SetCooldown(ctx context.Context, kind, symbol string, ttlSec int) {
	if err := s.rdb.Set(ctx, CooldownKey(kind, symbol), "1", secsDuration(ttlSec)).Err(); err != nil {
		slog.Warn("cooldown set failed", "kind", kind, "symbol", symbol, "err", err)
	}
}

// ClearCooldown removes the throttle mark. Used by tests and operators.
func (s *Store) ClearCooldown(ctx context.Context, kind, symbol string) {
	s.rdb.Del(ctx, CooldownKey(kind, symbol))
}
