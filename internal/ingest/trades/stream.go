// Package trades ingests tick-level trades over a long-lived websocket and
// publishes normalized trade events on the raw trades topic. The connection
// self-heals with truncated exponential backoff; periodic heartbeats on the
// same topic let downstream confirm the feed is alive.
package trades

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"marketfuse/internal/bus"
	"marketfuse/internal/model"
)

// Options carries the streamer's tunables.
type Options struct {
	FeedURL         string // wss endpoint, API key appended as ?token=
	APIKey          string
	Symbols         []string
	Topic           string
	SourceTag       string
	PingInterval    time.Duration
	ReconnectMinSec float64
	ReconnectMaxSec float64
	HeartbeatPeriod time.Duration
}

// Streamer owns the feed connection.
type Streamer struct {
	pub  bus.Publisher
	opts Options

	// Metrics hooks (optional, set externally)
	OnTrade     func()
	OnReconnect func()
}

// New creates a Streamer.
func New(pub bus.Publisher, opts Options) *Streamer {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.SourceTag == "" {
		opts.SourceTag = "feed"
	}
	return &Streamer{pub: pub, opts: opts}
}

// Backoff returns the reconnect delay for the given attempt (1-based):
// truncated exponential with up to 25% jitter.
func (s *Streamer) Backoff(attempt int) time.Duration {
	base := math.Min(s.opts.ReconnectMaxSec, s.opts.ReconnectMinSec*math.Pow(2, float64(attempt-1)))
	jitter := rand.Float64() * 0.25 * base
	delay := math.Min(s.opts.ReconnectMaxSec, base+jitter)
	return time.Duration(delay * float64(time.Second))
}

// feedMessage is the provider's wire format: batches of trades plus
// occasional pings.
type feedMessage struct {
	Type string `json:"type"`
	Data []struct {
		Symbol string  `json:"s"`
		Price  float64 `json:"p"`
		TSMS   int64   `json:"t"`
		Volume float64 `json:"v"`
	} `json:"data"`
}

// Run connects and streams until ctx is cancelled, reconnecting on any
// failure. The heartbeat loop runs alongside for the whole lifetime.
func (s *Streamer) Run(ctx context.Context) {
	if s.opts.HeartbeatPeriod > 0 {
		go s.heartbeatLoop(ctx)
	}

	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		attempt++
		delay := s.Backoff(attempt)
		slog.Error("feed disconnected, reconnecting", "attempt", attempt, "delay", delay, "err", err)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// streamOnce runs one connection lifetime: dial, subscribe, read until the
// connection breaks. A read deadline of two ping intervals detects silent
// dead peers.
func (s *Streamer) streamOnce(ctx context.Context) error {
	url := s.opts.FeedURL
	if s.opts.APIKey != "" {
		url += "?token=" + s.opts.APIKey
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("feed connected", "symbols", s.opts.Symbols)
	for _, sym := range s.opts.Symbols {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "symbol": sym}); err != nil {
			return err
		}
	}

	readWindow := 2 * s.opts.PingInterval
	_ = conn.SetReadDeadline(time.Now().Add(readWindow))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readWindow))
	})

	// Ping loop ends with the connection.
	pingCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		t := time.NewTicker(s.opts.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWindow))
		s.handleMessage(ctx, raw)
	}
}

// handleMessage publishes every trade in a feed batch. Non-trade frames and
// malformed payloads are skipped.
func (s *Streamer) handleMessage(ctx context.Context, raw []byte) {
	var msg feedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Type != "trade" {
		return
	}

	for _, item := range msg.Data {
		if item.Symbol == "" {
			continue
		}
		t := model.Trade{
			EventType: model.KindTrade,
			Symbol:    item.Symbol,
			TSMS:      item.TSMS,
			Price:     item.Price,
			Volume:    item.Volume,
			SourceTag: s.opts.SourceTag,
		}
		if err := s.pub.Publish(ctx, s.opts.Topic, &t, nil); err != nil {
			slog.Warn("trade publish failed", "symbol", t.Symbol, "err", err)
			continue
		}
		if s.OnTrade != nil {
			s.OnTrade()
		}
	}
}

func (s *Streamer) heartbeatLoop(ctx context.Context) {
	t := time.NewTicker(s.opts.HeartbeatPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hb := model.NewHeartbeat("streamer alive")
			if err := s.pub.Publish(ctx, s.opts.Topic, &hb, nil); err != nil {
				slog.Warn("heartbeat publish failed", "err", err)
			}
		}
	}
}
