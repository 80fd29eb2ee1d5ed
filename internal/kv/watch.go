package kv

import (
	"context"
	"sort"
	"strings"
)

// WatchKey builds the watchlist set key for a chat.
func WatchKey(chatID string) string { return watchKeyPrefix + chatID }

// WatchAdd adds a symbol to the chat's watchlist.
func (s *Store) WatchAdd(ctx context.Context, chatID, symbol string) error {
	return s.rdb.SAdd(ctx, WatchKey(chatID), strings.ToUpper(symbol)).Err()
}

// WatchRemove removes a symbol from the chat's watchlist.
func (s *Store) WatchRemove(ctx context.Context, chatID, symbol string) error {
	return s.rdb.SRem(ctx, WatchKey(chatID), strings.ToUpper(symbol)).Err()
}

// WatchList returns the chat's watchlist, sorted for stable display.
func (s *Store) WatchList(ctx context.Context, chatID string) ([]string, error) {
	vals, err := s.rdb.SMembers(ctx, WatchKey(chatID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(vals)
	return vals, nil
}
