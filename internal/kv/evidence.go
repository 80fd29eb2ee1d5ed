package kv

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"marketfuse/internal/model"
)

// Evidence buffers hold at most this many items per (kind, symbol).
const evidenceMaxItems = 50

// NewsKey builds the evidence-list key for a symbol's news buffer.
func NewsKey(symbol string) string { return newsKeyPrefix + symbol }

// SocialKey builds the evidence-list key for a symbol's social buffer.
func SocialKey(symbol string) string { return socialKeyPrefix + symbol }

// AppendNews prepends a news item to the symbol's buffer. Best effort: a KV
// failure is logged and swallowed so ingestion keeps flowing.
func (s *Store) AppendNews(ctx context.Context, symbol string, item model.NewsItem, retentionSec int) {
	s.appendEvidence(ctx, NewsKey(symbol), item, retentionSec)
}

// AppendSocial prepends a social item to the symbol's buffer. Best effort.
func (s *Store) AppendSocial(ctx context.Context, symbol string, item model.SocialItem, retentionSec int) {
	s.appendEvidence(ctx, SocialKey(symbol), item, retentionSec)
}

// appendEvidence does LPUSH + LTRIM + EXPIRE as one pipelined unit so
// concurrent appends can neither exceed the cap nor lose items.
func (s *Store) appendEvidence(ctx context.Context, key string, item any, retentionSec int) {
	payload, err := json.Marshal(item)
	if err != nil {
		slog.Warn("evidence marshal failed", "key", key, "err", err)
		return
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, key, string(payload))
	pipe.LTrim(ctx, key, 0, evidenceMaxItems-1)
	pipe.Expire(ctx, key, time.Duration(retentionSec)*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("evidence append failed", "key", key, "err", err)
	}
}

// RecentNews returns the symbol's news items whose timestamps fall within
// the lookback window, newest first. A KV failure yields an empty list.
func (s *Store) RecentNews(ctx context.Context, symbol string, lookbackSec int) []model.NewsItem {
	raw := s.recentRaw(ctx, NewsKey(symbol))
	now := time.Now().Unix()
	out := make([]model.NewsItem, 0, len(raw))
	for _, r := range raw {
		var item model.NewsItem
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			continue
		}
		if item.TSUnix > 0 && now-item.TSUnix <= int64(lookbackSec) {
			out = append(out, item)
		}
	}
	return out
}

// RecentSocial returns the symbol's social items within the lookback window,
// newest first. A KV failure yields an empty list.
func (s *Store) RecentSocial(ctx context.Context, symbol string, lookbackSec int) []model.SocialItem {
	raw := s.recentRaw(ctx, SocialKey(symbol))
	now := time.Now().Unix()
	out := make([]model.SocialItem, 0, len(raw))
	for _, r := range raw {
		var item model.SocialItem
		if err := json.Unmarshal([]byte(r), &item); err != nil {
			continue
		}
		if item.TSUnix > 0 && now-item.TSUnix <= int64(lookbackSec) {
			out = append(out, item)
		}
	}
	return out
}

func (s *Store) recentRaw(ctx context.Context, key string) []string {
	raw, err := s.rdb.LRange(ctx, key, 0, evidenceMaxItems-1).Result()
	if err != nil {
		slog.Warn("evidence read failed", "key", key, "err", err)
		return nil
	}
	return raw
}
