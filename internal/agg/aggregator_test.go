package agg

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/internal/bus"
	"marketfuse/internal/kv/kvtest"
	"marketfuse/internal/model"
)

func trade(sym string, ts int64, price, vol float64) model.Trade {
	return model.Trade{EventType: model.KindTrade, Symbol: sym, TSMS: ts, Price: price, Volume: vol, SourceTag: "test"}
}

func TestApply_BuildsCandleAcrossTrades(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	a := New(store, 10800)
	ctx := context.Background()

	// Three trades in one minute: 200x3, 210x5, 205x2.
	base := int64(1_700_000_000_000)
	bucket := model.MinuteBucketMS(base)
	require.NoError(t, a.Apply(ctx, trade("AAPL", base+1000, 200, 3)))
	require.NoError(t, a.Apply(ctx, trade("AAPL", base+20_000, 210, 5)))
	require.NoError(t, a.Apply(ctx, trade("AAPL", base+40_000, 205, 2)))

	oc, ok := store.Candle("AAPL", bucket)
	require.True(t, ok)
	assert.Equal(t, 200.0, oc.Open)
	assert.Equal(t, 210.0, oc.High)
	assert.Equal(t, 200.0, oc.Low)
	assert.Equal(t, 205.0, oc.Close)
	assert.Equal(t, 10.0, oc.Volume)
	assert.Equal(t, base+40_000, oc.LastUpdateMS)
	assert.Equal(t, 10800, store.TTL("AAPL", bucket))
}

func TestApply_IgnoresNonTradeEvents(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	a := New(store, 10800)

	hb := model.Trade{EventType: model.KindHeartbeat, Symbol: "AAPL", TSMS: 1_700_000_000_000}
	require.NoError(t, a.Apply(context.Background(), hb))
	assert.Equal(t, 0, store.Len())
}

func TestApply_DropsUntimestampedAndUnnamed(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	a := New(store, 10800)
	dropped := 0
	a.OnDropped = func() { dropped++ }

	require.NoError(t, a.Apply(context.Background(), trade("AAPL", 0, 100, 1)))
	require.NoError(t, a.Apply(context.Background(), trade("", 1_700_000_000_000, 100, 1)))
	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 2, dropped)
}

func TestApply_ZeroVolumeStillUpdatesPrices(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	a := New(store, 10800)
	ctx := context.Background()

	base := int64(1_700_000_000_000)
	require.NoError(t, a.Apply(ctx, trade("TSLA", base, 100, 5)))
	require.NoError(t, a.Apply(ctx, trade("TSLA", base+1000, 120, 0)))

	oc, ok := store.Candle("TSLA", model.MinuteBucketMS(base))
	require.True(t, ok)
	assert.Equal(t, 120.0, oc.High)
	assert.Equal(t, 120.0, oc.Close)
	assert.Equal(t, 5.0, oc.Volume)
}

func TestApply_SurfacesPersistentStoreFailure(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	store.UpsertErr = errors.New("kv down")
	a := New(store, 10800)

	err := a.Apply(context.Background(), trade("AAPL", 1_700_000_000_000, 100, 1))
	assert.Error(t, err)
}

func pushBody(t *testing.T, payload []byte) *strings.Reader {
	t.Helper()
	body, err := bus.EncodePush(payload, map[string]string{"event_type": model.KindTrade})
	require.NoError(t, err)
	return strings.NewReader(string(body))
}

func TestHandlePush_AppliesTrade(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	a := New(store, 10800)

	tr := trade("NVDA", 1_700_000_000_000, 500, 2)
	req := httptest.NewRequest(http.MethodPost, "/pubsub", pushBody(t, tr.JSON()))
	rec := httptest.NewRecorder()
	a.HandlePush(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, store.Len())
}

func TestHandlePush_AcksInvalidJSON(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	a := New(store, 10800)

	req := httptest.NewRequest(http.MethodPost, "/pubsub", pushBody(t, []byte("not json")))
	rec := httptest.NewRecorder()
	a.HandlePush(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, store.Len())
}

func TestHandlePush_BadBodyIs400(t *testing.T) {
	a := New(kvtest.NewFakeCandleStore(), 10800)

	req := httptest.NewRequest(http.MethodPost, "/pubsub", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	a.HandlePush(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePush_StoreDownIs503(t *testing.T) {
	store := kvtest.NewFakeCandleStore()
	store.UpsertErr = errors.New("kv down")
	a := New(store, 10800)

	tr := trade("AAPL", 1_700_000_000_000, 100, 1)
	req := httptest.NewRequest(http.MethodPost, "/pubsub", pushBody(t, tr.JSON()))
	rec := httptest.NewRecorder()
	a.HandlePush(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
