package kv

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	goredis "github.com/go-redis/redis/v8"

	"marketfuse/internal/model"
)

// upsertCandle applies one trade to an open candle as a single atomic unit.
// This script is the per-key serialization point that makes horizontal
// scaling of the aggregator safe: no in-process lock is ever held across a
// network call.
var upsertCandle = goredis.NewScript(`
local key = KEYS[1]
local price = tonumber(ARGV[1])
local vol = tonumber(ARGV[2])
local ts_ms = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key,
    "open", price,
    "high", price,
    "low", price,
    "close", price,
    "volume", vol,
    "last_update_ms", ts_ms
  )
else
  local high = tonumber(redis.call("HGET", key, "high"))
  local low  = tonumber(redis.call("HGET", key, "low"))
  if price > high then
    redis.call("HSET", key, "high", price)
  end
  if price < low then
    redis.call("HSET", key, "low", price)
  end
  redis.call("HSET", key, "close", price)
  redis.call("HINCRBYFLOAT", key, "volume", vol)
  redis.call("HSET", key, "last_update_ms", ts_ms)
end
redis.call("EXPIRE", key, ttl)
return 1
`)

// CandleKey builds the open-candle hash key for (symbol, minute bucket).
func CandleKey(symbol string, minuteTSMS int64) string {
	return candleKeyPrefix + symbol + ":" + strconv.FormatInt(minuteTSMS, 10)
}

// ParseCandleKey extracts (symbol, minute bucket) from an open-candle key.
func ParseCandleKey(key string) (string, int64, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 4 {
		return "", 0, fmt.Errorf("malformed candle key %q", key)
	}
	minuteTSMS, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed candle key %q: %w", key, err)
	}
	symbol := parts[len(parts)-2]
	if symbol == "" {
		return "", 0, fmt.Errorf("malformed candle key %q", key)
	}
	return symbol, minuteTSMS, nil
}

// UpsertTrade atomically applies a trade to the open candle for
// (symbol, minute bucket), creating it on the first trade of the minute and
// refreshing the TTL so orphaned minutes self-expire.
func (s *Store) UpsertTrade(ctx context.Context, symbol string, minuteTSMS int64, price, volume float64, tsMS int64, ttlSec int) error {
	key := CandleKey(symbol, minuteTSMS)
	return upsertCandle.Run(ctx, s.rdb, []string{key}, price, volume, tsMS, ttlSec).Err()
}

// ScanOpenCandles enumerates all open-candle keys.
func (s *Store) ScanOpenCandles(ctx context.Context) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, candleKeyPrefix+"*", 2000).Result()
		if err != nil {
			return nil, fmt.Errorf("kv scan candles: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

// ReadOpenCandle reads and decodes the full candle hash at key.
// A missing or unparsable OHLCV field is an error; the caller decides
// whether to drop the key.
func (s *Store) ReadOpenCandle(ctx context.Context, key string) (model.OpenCandle, error) {
	var oc model.OpenCandle

	data, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return oc, fmt.Errorf("kv read candle %s: %w", key, err)
	}
	if len(data) == 0 {
		return oc, fmt.Errorf("kv read candle %s: empty", key)
	}

	symbol, minuteTSMS, err := ParseCandleKey(key)
	if err != nil {
		return oc, err
	}
	oc.Symbol = symbol
	oc.MinuteTSMS = minuteTSMS

	for field, dst := range map[string]*float64{
		"open":   &oc.Open,
		"high":   &oc.High,
		"low":    &oc.Low,
		"close":  &oc.Close,
		"volume": &oc.Volume,
	} {
		raw, ok := data[field]
		if !ok {
			return oc, fmt.Errorf("candle %s missing field %s", key, field)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return oc, fmt.Errorf("candle %s field %s unparsable: %w", key, field, err)
		}
		*dst = v
	}

	// last_update_ms defaults to 0 when absent; the finalizer treats that
	// as immediately stale.
	oc.LastUpdateMS, _ = strconv.ParseInt(data["last_update_ms"], 10, 64)
	return oc, nil
}

// DeleteKey removes a key after finalization.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// SetLatestClose caches the latest close for a symbol with a 6-hour TTL,
// for downstream reference regardless of the join threshold.
func (s *Store) SetLatestClose(ctx context.Context, symbol string, close float64, minuteTSMS int64, ttlSec int) error {
	key := latestClosePref + symbol
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, key, "close", strconv.FormatFloat(close, 'f', -1, 64), "minute_ts_ms", strconv.FormatInt(minuteTSMS, 10))
	pipe.Expire(ctx, key, secsDuration(ttlSec))
	_, err := pipe.Exec(ctx)
	return err
}

// LatestClose returns the cached latest close for a symbol, or (0, 0) when
// none is cached.
func (s *Store) LatestClose(ctx context.Context, symbol string) (float64, int64, error) {
	data, err := s.rdb.HGetAll(ctx, latestClosePref+symbol).Result()
	if err != nil {
		return 0, 0, err
	}
	close, _ := strconv.ParseFloat(data["close"], 64)
	minuteTSMS, _ := strconv.ParseInt(data["minute_ts_ms"], 10, 64)
	return close, minuteTSMS, nil
}
