package kv

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/internal/model"
)

func TestParseCandleKey(t *testing.T) {
	sym, bucket, err := ParseCandleKey("candle:1m:AAPL:1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", sym)
	assert.Equal(t, int64(1700000000000), bucket)

	_, _, err = ParseCandleKey("candle:1m:AAPL:notanumber")
	assert.Error(t, err)

	_, _, err = ParseCandleKey("garbage")
	assert.Error(t, err)
}

func TestReadOpenCandle(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)
	key := CandleKey("TSLA", 1700000000000)

	mock.ExpectHGetAll(key).SetVal(map[string]string{
		"open": "200", "high": "210", "low": "200", "close": "205",
		"volume": "10", "last_update_ms": "1700000055000",
	})

	oc, err := store.ReadOpenCandle(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "TSLA", oc.Symbol)
	assert.Equal(t, int64(1700000000000), oc.MinuteTSMS)
	assert.Equal(t, 200.0, oc.Open)
	assert.Equal(t, 210.0, oc.High)
	assert.Equal(t, 205.0, oc.Close)
	assert.Equal(t, 10.0, oc.Volume)
	assert.Equal(t, int64(1700000055000), oc.LastUpdateMS)
}

func TestReadOpenCandle_MissingField(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)
	key := CandleKey("TSLA", 1700000000000)

	mock.ExpectHGetAll(key).SetVal(map[string]string{
		"open": "200", "high": "210", "close": "205", "volume": "10",
	})

	_, err := store.ReadOpenCandle(context.Background(), key)
	assert.Error(t, err, "a candle hash without a low field is unusable")
}

func TestAppendNews_PipelineShape(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)

	item := model.NewsItem{Headline: "NVDA beats", URL: "https://x/1", Source: "rss", TSUnix: 1700000000}
	payload, _ := json.Marshal(item)

	mock.ExpectTxPipeline()
	mock.ExpectLPush(NewsKey("NVDA"), string(payload)).SetVal(1)
	mock.ExpectLTrim(NewsKey("NVDA"), 0, evidenceMaxItems-1).SetVal("OK")
	mock.ExpectExpire(NewsKey("NVDA"), 7200*time.Second).SetVal(true)
	mock.ExpectTxPipelineExec()

	store.AppendNews(context.Background(), "NVDA", item, 7200)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentNews_WindowFiltering(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)

	now := time.Now().Unix()
	fresh, _ := json.Marshal(model.NewsItem{Headline: "fresh", TSUnix: now - 60})
	stale, _ := json.Marshal(model.NewsItem{Headline: "stale", TSUnix: now - 7200})
	noTS, _ := json.Marshal(model.NewsItem{Headline: "no ts"})

	mock.ExpectLRange(NewsKey("AAPL"), 0, evidenceMaxItems-1).
		SetVal([]string{string(fresh), "not json", string(stale), string(noTS)})

	items := store.RecentNews(context.Background(), "AAPL", 1800)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh", items[0].Headline)
}

func TestRecentSocial_KVFailureYieldsEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)

	mock.ExpectLRange(SocialKey("AAPL"), 0, evidenceMaxItems-1).SetErr(assert.AnError)

	items := store.RecentSocial(context.Background(), "AAPL", 3600)
	assert.Empty(t, items)
}

func TestCooldown(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)
	ctx := context.Background()

	mock.ExpectGet(CooldownKey("candle_1m", "AAPL")).RedisNil()
	assert.True(t, store.CanAlert(ctx, "candle_1m", "AAPL"))

	mock.ExpectGet(CooldownKey("candle_1m", "AAPL")).SetVal("1")
	assert.False(t, store.CanAlert(ctx, "candle_1m", "AAPL"))

	// Cooldowns are type-aware: a candle cooldown does not throttle fused alerts.
	mock.ExpectGet(CooldownKey("fused_event", "AAPL")).RedisNil()
	assert.True(t, store.CanAlert(ctx, "fused_event", "AAPL"))

	mock.ExpectSet(CooldownKey("fused_event", "AAPL"), "1", 300*time.Second).SetVal("OK")
	store.SetCooldown(ctx, "fused_event", "AAPL", 300)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDedup(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)
	ctx := context.Background()
	url := "https://example.com/article"

	mock.ExpectGet(DedupKey(url)).RedisNil()
	assert.False(t, store.Seen(ctx, url))

	mock.ExpectSet(DedupKey(url), "1", 86400*time.Second).SetVal("OK")
	require.NoError(t, store.Mark(ctx, url, 86400))

	mock.ExpectGet(DedupKey(url)).SetVal("1")
	assert.True(t, store.Seen(ctx, url))
}

func TestWatchList(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewWithClient(db)
	ctx := context.Background()

	mock.ExpectSAdd(WatchKey("42"), "NVDA").SetVal(1)
	require.NoError(t, store.WatchAdd(ctx, "42", "nvda"))

	mock.ExpectSMembers(WatchKey("42")).SetVal([]string{"TSLA", "AAPL", "NVDA"})
	list, err := store.WatchList(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "NVDA", "TSLA"}, list)
}
