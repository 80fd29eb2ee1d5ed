package kv

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
)

// DedupKey builds the seen-mark key for a canonical evidence URL.
func DedupKey(url string) string {
	sum := sha1.Sum([]byte(url))
	return dedupKeyPrefix + hex.EncodeToString(sum[:])
}

// Seen reports whether the URL was already ingested. A KV failure counts as
// unseen so collection keeps flowing; downstream consumers tolerate rare
// duplicates.
func (s *Store) Seen(ctx context.Context, url string) bool {
	return s.rdb.Get(ctx, DedupKey(url)).Err() == nil
}

// Mark records the URL as seen with a TTL.
func (s *Store) Mark(ctx context.Context, url string, ttlSec int) error {
	return s.rdb.Set(ctx, DedupKey(url), "1", secsDuration(ttlSec)).Err()
}
