package alert

import (
	"context"
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

type fakeCooldowns struct {
	mu  sync.Mutex
	set map[string]int
}

func newFakeCooldowns() *fakeCooldowns {
	return &fakeCooldowns{set: make(map[string]int)}
}

func (f *fakeCooldowns) CanAlert(_ context.Context, kind, symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.set[kind+":"+symbol]
	return !ok
}

func (f *fakeCooldowns) SetCooldown(_ context.Context, kind, symbol string, ttlSec int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set[kind+":"+symbol] = ttlSec
}

type fakeChannel struct {
	mu   sync.Mutex
	name string
	ok   bool
	sent []string
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return f.ok
}

func defaultOpts() Options {
	return Options{
		CandleThresholdPct: 0.9,
		CandleCooldownSec:  180,
		FusedSeverityMin:   35,
		FusedCooldownSec:   300,
	}
}

func candle(sym string, open, close float64) model.Candle {
	return model.Candle{
		EventType:   model.KindCandle1m,
		Symbol:      sym,
		MinuteTSMS:  1699999980000,
		Open:        open,
		High:        close,
		Low:         open,
		Close:       close,
		Volume:      1000,
		FinalizedAt: time.UnixMilli(1700000100000).UTC(),
	}
}

func TestOnCandle_ThresholdExactlyMet(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	ln := &fakeChannel{name: "line", ok: true}
	g := New(cd, []Channel{tg, ln}, defaultOpts())

	g.OnCandle(context.Background(), candle("AAPL", 100, 100.9)) // exactly 0.9%

	assert.Len(t, tg.sent, 1)
	assert.Len(t, ln.sent, 1)
	assert.Equal(t, 180, cd.set["candle_1m:AAPL"])
}

func TestOnCandle_CooldownHonored(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	g := New(cd, []Channel{tg}, defaultOpts())
	ctx := context.Background()

	g.OnCandle(ctx, candle("AAPL", 100, 100.9))
	require.Len(t, tg.sent, 1)

	g.OnCandle(ctx, candle("AAPL", 100, 101.5)) // 1.5%, inside cooldown
	assert.Len(t, tg.sent, 1, "no second send")
	assert.Equal(t, 180, cd.set["candle_1m:AAPL"], "cooldown still set")
}

func TestOnCandle_BelowThresholdSilent(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	g := New(cd, []Channel{tg}, defaultOpts())

	g.OnCandle(context.Background(), candle("AAPL", 100, 100.5))
	assert.Empty(t, tg.sent)
	assert.Empty(t, cd.set)
}

func TestOnCandle_NoCooldownWhenAllChannelsFail(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: false}
	ln := &fakeChannel{name: "line", ok: false}
	g := New(cd, []Channel{tg, ln}, defaultOpts())

	g.OnCandle(context.Background(), candle("AAPL", 100, 102))
	assert.Empty(t, cd.set, "failed send must not burn the cooldown")
}

func TestOnCandle_CooldownWhenOneChannelSucceeds(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: false}
	ln := &fakeChannel{name: "line", ok: true}
	g := New(cd, []Channel{tg, ln}, defaultOpts())

	g.OnCandle(context.Background(), candle("AAPL", 100, 102))
	assert.Equal(t, 180, cd.set["candle_1m:AAPL"])
}

func TestOnCandle_LINEGetsStrippedMarkup(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	ln := &fakeChannel{name: "line", ok: true}
	g := New(cd, []Channel{tg, ln}, defaultOpts())

	g.OnCandle(context.Background(), candle("AAPL", 100, 102))

	require.Len(t, tg.sent, 1)
	require.Len(t, ln.sent, 1)
	assert.Contains(t, tg.sent[0], "<b>")
	assert.NotContains(t, ln.sent[0], "<b>")
}

func fused(sym string, severity int) model.FusedEvent {
	return model.FusedEvent{
		SchemaVersion: "1.0",
		EventType:     model.KindFused,
		Symbol:        sym,
		MinuteTSMS:    1699999980000,
		Severity:      severity,
		Direction:     model.DirectionPositive,
		FusedAt:       time.UnixMilli(1700000100000).UTC(),
	}
}

func TestOnFused_SeverityGate(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	g := New(cd, []Channel{tg}, defaultOpts())
	ctx := context.Background()

	g.OnFused(ctx, fused("NVDA", 34))
	assert.Empty(t, tg.sent, "below threshold")

	g.OnFused(ctx, fused("NVDA", 42))
	assert.Len(t, tg.sent, 1)
	assert.Equal(t, 300, cd.set["fused_event:NVDA"])
}

func TestCooldowns_TypeAware(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	g := New(cd, []Channel{tg}, defaultOpts())
	ctx := context.Background()

	g.OnCandle(ctx, candle("NVDA", 100, 102))
	g.OnFused(ctx, fused("NVDA", 42))

	assert.Len(t, tg.sent, 2, "candle and fused cooldowns are independent")
	assert.Equal(t, 180, cd.set["candle_1m:NVDA"])
	assert.Equal(t, 300, cd.set["fused_event:NVDA"])
}

func TestHandlePush_RoutesCandle(t *testing.T) {
	cd := newFakeCooldowns()
	tg := &fakeChannel{name: "telegram", ok: true}
	g := New(cd, []Channel{tg}, defaultOpts())

	c := candle("AAPL", 100, 102)
	body, err := bus.EncodePush(c.JSON(), map[string]string{"event_type": model.KindCandle1m})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/pubsub", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	g.HandlePush(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, tg.sent, 1)
}

func TestFormatCandleMessage(t *testing.T) {
	msg := FormatCandleMessage(candle("AAPL", 100, 102), 2.0)
	assert.Contains(t, msg, "[即時警報] AAPL")
	assert.Contains(t, msg, "+2.00%")
	assert.Contains(t, msg, "<b>")
}

func TestFormatFusedMessage_Headlines(t *testing.T) {
	ev := fused("NVDA", 42)
	ev.Price.ChangePct1m = 1.2
	ev.Context.News.Count = 2
	ev.Evidence.NewsItems = []model.NewsItem{
		{Headline: "NVDA beats estimates", Source: "wire", URL: "https://example.com/1"},
		{Headline: "NVDA raises guidance", Source: "wire"},
	}

	msg := FormatFusedMessage(ev)
	assert.Contains(t, msg, "[融合事件] NVDA")
	assert.Contains(t, msg, "利多")
	assert.Contains(t, msg, "42/100")
	assert.Contains(t, msg, "NVDA beats estimates")
	assert.Contains(t, msg, "https://example.com/1")
}

func TestFormatFusedMessage_NoNews(t *testing.T) {
	msg := FormatFusedMessage(fused("NVDA", 42))
	assert.Contains(t, msg, "無可用新聞摘要")
}

func TestStripMarkup(t *testing.T) {
	assert.Equal(t, "bold and code", StripMarkup("<b>bold</b> and <code>code</code>"))
}
