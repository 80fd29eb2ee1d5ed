package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustEnv_ReturnsSetValue(t *testing.T) {
	t.Setenv("TRADE_FEED_API_KEY", "tok-abc123")
	assert.Equal(t, "tok-abc123", MustEnv("TRADE_FEED_API_KEY"))
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 120, cfg.FinalizeGraceSec)
	assert.Equal(t, 0.25, cfg.JoinThresholdPct)
	assert.Equal(t, "trades.raw", cfg.TopicTradesRaw)
}

func TestWatchlist(t *testing.T) {
	cfg := &Config{WatchSymbols: "nvda, TSLA,,aapl "}
	wl := cfg.Watchlist()
	assert.Equal(t, map[string]bool{"NVDA": true, "TSLA": true, "AAPL": true}, wl)

	assert.Empty(t, (&Config{}).Watchlist(), "empty list means accept all")
}

func TestSymbolList(t *testing.T) {
	cfg := &Config{StreamSymbols: " aapl,TSLA ,"}
	assert.Equal(t, []string{"AAPL", "TSLA"}, cfg.SymbolList())
}

func TestSubredditList(t *testing.T) {
	cfg := &Config{SocialSubreddits: "stocks, wallstreetbets"}
	assert.Equal(t, []string{"stocks", "wallstreetbets"}, cfg.SubredditList())
}

func TestRSSFeedList(t *testing.T) {
	cfg := &Config{RSSFeeds: "https://a.example/rss, ,https://b.example/rss"}
	assert.Equal(t, []string{"https://a.example/rss", "https://b.example/rss"}, cfg.RSSFeedList())
}
