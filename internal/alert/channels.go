package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"marketfuse/internal/breaker"
)

// Channel is one push destination. Send reports success iff the remote
// accepted the message; transport errors and non-2xx responses are logged
// and reported as failure, never raised.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) bool
}

const pushTimeout = 10 * time.Second

// TelegramChannel pushes via the Bot API in HTML parse mode with link
// previews disabled. Sends are rate limited to stay inside the Bot API
// budget and guarded by a circuit breaker so a dead channel fails fast.
type TelegramChannel struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	limiter  *rate.Limiter
	brk      *breaker.Breaker
}

// NewTelegramChannel creates a Telegram channel. Empty credentials leave
// the channel unconfigured; Send then always reports failure.
func NewTelegramChannel(botToken, chatID string) *TelegramChannel {
	return &TelegramChannel{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: pushTimeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 25),
		brk:      breaker.New(5, 60*time.Second),
	}
}

// SetBaseURL overrides the API host, for tests.
func (t *TelegramChannel) SetBaseURL(u string) { t.baseURL = u }

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, text string) bool {
	if t.botToken == "" || t.chatID == "" {
		return false
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return false
	}

	err := t.brk.Execute(func() error {
		body, _ := json.Marshal(map[string]any{
			"chat_id":                  t.chatID,
			"text":                     text,
			"parse_mode":               "HTML",
			"disable_web_page_preview": true,
		})

		url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("telegram request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.client.Do(req)
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("telegram status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		slog.Error("telegram push failed", "err", err)
		return false
	}
	return true
}

// LINEChannel pushes via the LINE Messaging API. Rich-text markup must be
// stripped by the caller before Send.
type LINEChannel struct {
	channelToken string
	to           string
	baseURL      string
	client       *http.Client
	brk          *breaker.Breaker
}

// NewLINEChannel creates a LINE channel. Empty credentials leave the
// channel unconfigured.
func NewLINEChannel(channelToken, to string) *LINEChannel {
	return &LINEChannel{
		channelToken: channelToken,
		to:           to,
		baseURL:      "https://api.line.me",
		client:       &http.Client{Timeout: pushTimeout},
		brk:          breaker.New(5, 60*time.Second),
	}
}

// SetBaseURL overrides the API host, for tests.
func (l *LINEChannel) SetBaseURL(u string) { l.baseURL = u }

func (l *LINEChannel) Name() string { return "line" }

func (l *LINEChannel) Send(ctx context.Context, text string) bool {
	if l.channelToken == "" || l.to == "" {
		return false
	}

	err := l.brk.Execute(func() error {
		body, _ := json.Marshal(map[string]any{
			"to":       l.to,
			"messages": []map[string]string{{"type": "text", "text": text}},
		})

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/v2/bot/message/push", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("line request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+l.channelToken)

		resp, err := l.client.Do(req)
		if err != nil {
			return fmt.Errorf("line send: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("line status %d", resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		slog.Error("line push failed", "err", err)
		return false
	}
	return true
}
