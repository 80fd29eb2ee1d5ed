package fusion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketfuse/internal/bus"
	"marketfuse/internal/model"
)

type fakeEvidence struct {
	mu     sync.Mutex
	news   map[string][]model.NewsItem
	social map[string][]model.SocialItem
	closes map[string]float64
}

func newFakeEvidence() *fakeEvidence {
	return &fakeEvidence{
		news:   make(map[string][]model.NewsItem),
		social: make(map[string][]model.SocialItem),
		closes: make(map[string]float64),
	}
}

func (f *fakeEvidence) AppendNews(_ context.Context, symbol string, item model.NewsItem, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.news[symbol] = append([]model.NewsItem{item}, f.news[symbol]...)
}

func (f *fakeEvidence) AppendSocial(_ context.Context, symbol string, item model.SocialItem, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.social[symbol] = append([]model.SocialItem{item}, f.social[symbol]...)
}

func (f *fakeEvidence) RecentNews(_ context.Context, symbol string, _ int) []model.NewsItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.news[symbol]
}

func (f *fakeEvidence) RecentSocial(_ context.Context, symbol string, _ int) []model.SocialItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.social[symbol]
}

func (f *fakeEvidence) SetLatestClose(_ context.Context, symbol string, close float64, _ int64, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes[symbol] = close
	return nil
}

type fusedCapture struct {
	mu     sync.Mutex
	events []model.FusedEvent
}

func (f *fusedCapture) Publish(_ context.Context, _ string, payload any, _ map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *(payload.(*model.FusedEvent)))
	return nil
}

func newJoiner(store EvidenceStore, pub bus.Publisher, watchlist map[string]bool) *Joiner {
	return New(store, pub, Options{
		Topic:             "events.normalized",
		JoinThresholdPct:  0.25,
		NewsLookbackSec:   1800,
		SocialLookbackSec: 3600,
		Watchlist:         watchlist,
	})
}

func candle(sym string, open, close float64) model.Candle {
	return model.Candle{
		EventType:   model.KindCandle1m,
		Symbol:      sym,
		MinuteTSMS:  1700000000000 - 60000,
		Open:        open,
		High:        close,
		Low:         open,
		Close:       close,
		Volume:      100,
		FinalizedAt: time.UnixMilli(1700000000000).UTC(),
	}
}

func TestSeverity(t *testing.T) {
	cases := []struct {
		pct    float64
		news   int
		social int
		want   int
	}{
		{1.2, 2, 0, 34}, // 18 + 16
		{1.2, 3, 0, 42}, // 18 + 24
		{-1.2, 2, 0, 34},
		{0.3, 0, 0, 5},       // round(4.5) = 5
		{10, 10, 10, 100},    // 150+50+30 clamped
		{0.5, 100, 100, 88},  // 8 + 50 + 30
		{0, 0, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Severity(tc.pct, tc.news, tc.social),
			fmt.Sprintf("pct=%v news=%d social=%d", tc.pct, tc.news, tc.social))
	}
}

func TestDirectionOf(t *testing.T) {
	assert.Equal(t, model.DirectionPositive, DirectionOf(0.5))
	assert.Equal(t, model.DirectionNegative, DirectionOf(-0.5))
	assert.Equal(t, model.DirectionNeutral, DirectionOf(0))
}

func TestOnCandle_FusesWithNewsEvidence(t *testing.T) {
	store := newFakeEvidence()
	pub := &fusedCapture{}
	j := newJoiner(store, pub, nil)
	ctx := context.Background()

	now := time.Now().Unix()
	store.AppendNews(ctx, "NVDA", model.NewsItem{Headline: "NVDA beats estimates", TSUnix: now - 300}, 7200)
	store.AppendNews(ctx, "NVDA", model.NewsItem{Headline: "NVDA raises guidance", TSUnix: now - 600}, 7200)

	j.OnCandle(ctx, candle("NVDA", 500, 506)) // +1.2%

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, model.KindFused, ev.EventType)
	assert.Equal(t, "NVDA", ev.Symbol)
	assert.Equal(t, model.DirectionPositive, ev.Direction)
	assert.Equal(t, 34, ev.Severity)
	assert.Equal(t, 2, ev.Context.News.Count)
	assert.Len(t, ev.Evidence.NewsItems, 2)
	assert.InDelta(t, 1.2, ev.Price.ChangePct1m, 1e-9)
	assert.Equal(t, 506.0, store.closes["NVDA"])
}

func TestOnCandle_ThirdNewsItemRaisesSeverity(t *testing.T) {
	store := newFakeEvidence()
	pub := &fusedCapture{}
	j := newJoiner(store, pub, nil)
	ctx := context.Background()

	now := time.Now().Unix()
	for i := 0; i < 3; i++ {
		store.AppendNews(ctx, "NVDA", model.NewsItem{Headline: "NVDA headline", TSUnix: now - int64(i)*60}, 7200)
	}

	j.OnCandle(ctx, candle("NVDA", 500, 506))

	require.Len(t, pub.events, 1)
	assert.Equal(t, 42, pub.events[0].Severity)
}

func TestOnCandle_BelowThresholdCachesCloseOnly(t *testing.T) {
	store := newFakeEvidence()
	pub := &fusedCapture{}
	j := newJoiner(store, pub, nil)

	j.OnCandle(context.Background(), candle("AAPL", 100, 100.1)) // +0.1%

	assert.Empty(t, pub.events)
	assert.Equal(t, 100.1, store.closes["AAPL"], "close cached regardless of threshold")
}

func TestOnCandle_ZeroOpenNeverFuses(t *testing.T) {
	store := newFakeEvidence()
	pub := &fusedCapture{}
	j := newJoiner(store, pub, nil)

	j.OnCandle(context.Background(), candle("AAPL", 0, 100))
	assert.Empty(t, pub.events)
}

func TestOnCandle_EvidenceTruncatedToFive(t *testing.T) {
	store := newFakeEvidence()
	pub := &fusedCapture{}
	j := newJoiner(store, pub, nil)
	ctx := context.Background()

	now := time.Now().Unix()
	for i := 0; i < 8; i++ {
		store.AppendNews(ctx, "TSLA", model.NewsItem{Headline: fmt.Sprintf("h%d", i), TSUnix: now}, 7200)
	}

	j.OnCandle(ctx, candle("TSLA", 200, 210))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, 8, ev.Context.News.Count)
	assert.Len(t, ev.Context.News.Headlines, 3)
	assert.Len(t, ev.Evidence.NewsItems, 5)
	assert.Equal(t, "h7", ev.Evidence.NewsItems[0].Headline, "newest first")
}

func TestOnNews_ProviderSymbolList(t *testing.T) {
	store := newFakeEvidence()
	j := newJoiner(store, &fusedCapture{}, nil)

	j.OnNews(context.Background(), model.NewsEvent{
		EventType:  model.KindNews,
		Headline:   "Chipmakers rally",
		Related:    "NVDA, amd",
		IngestedAt: time.Now().UTC().Format(time.RFC3339),
	})

	assert.Len(t, store.news["NVDA"], 1)
	assert.Len(t, store.news["AMD"], 1)
}

func TestOnNews_SummaryCappedAtAppendTime(t *testing.T) {
	store := newFakeEvidence()
	j := newJoiner(store, &fusedCapture{}, nil)

	j.OnNews(context.Background(), model.NewsEvent{
		EventType:  model.KindNews,
		Headline:   "NVDA earnings deep dive",
		Related:    "NVDA",
		Summary:    strings.Repeat("字", 1000),
		IngestedAt: time.Now().UTC().Format(time.RFC3339),
	})

	require.Len(t, store.news["NVDA"], 1)
	assert.Len(t, []rune(store.news["NVDA"][0].Summary), maxSummaryRunes)
}

func TestOnNews_HeadlineExtractionWithWatchlist(t *testing.T) {
	store := newFakeEvidence()
	j := newJoiner(store, &fusedCapture{}, map[string]bool{"NVDA": true})

	j.OnNews(context.Background(), model.NewsEvent{
		EventType: model.KindNews,
		Headline:  "CEO says NVDA and INTC will define the AI era",
	})

	assert.Len(t, store.news["NVDA"], 1)
	assert.Empty(t, store.news["INTC"], "not on watchlist")
	assert.Empty(t, store.news["CEO"], "stop word")
}

func TestOnSocial_ExtractsFromTitleAndText(t *testing.T) {
	store := newFakeEvidence()
	j := newJoiner(store, &fusedCapture{}, nil)

	j.OnSocial(context.Background(), model.SocialEvent{
		EventType: model.KindSocial,
		Platform:  "reddit",
		Title:     "TSLA delivery numbers",
		Text:      "also watching RIVN here",
	})

	assert.Len(t, store.social["TSLA"], 1)
	assert.Len(t, store.social["RIVN"], 1)
}

func TestExtractSymbols_FanoutCap(t *testing.T) {
	related := "A1,B1,C1,D1,E1,F1,G1,H1,I1,J1,K1,L1"
	syms := ExtractSymbols(related, "", nil)
	assert.Len(t, syms, 10)
}

func TestHandlePush_DispatchesByEventType(t *testing.T) {
	store := newFakeEvidence()
	pub := &fusedCapture{}
	j := newJoiner(store, pub, nil)

	c := candle("NVDA", 500, 506)
	body, err := bus.EncodePush(c.JSON(), map[string]string{"event_type": model.KindCandle1m})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pubsub", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	j.HandlePush(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, pub.events, 1)
}

func TestHandlePush_UnknownKindAcked(t *testing.T) {
	j := newJoiner(newFakeEvidence(), &fusedCapture{}, nil)

	body, err := bus.EncodePush([]byte(`{"event_type":"unknown"}`), nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pubsub", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	j.HandlePush(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}
