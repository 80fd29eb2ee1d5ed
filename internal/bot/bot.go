// Package bot serves the Telegram webhook command interface: watchlist
// management backed by the KV store and on-demand analysis proxied to the
// analysis responder.
package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"marketfuse/internal/httpapi"
	"marketfuse/internal/model"
)

// WatchStore is the slice of the KV store the bot needs.
type WatchStore interface {
	WatchAdd(ctx context.Context, chatID, symbol string) error
	WatchRemove(ctx context.Context, chatID, symbol string) error
	WatchList(ctx context.Context, chatID string) ([]string, error)
}

// Sender delivers an HTML message to one chat. Tests capture in memory.
type Sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// TelegramSender sends via the Bot API.
type TelegramSender struct {
	botToken string
	baseURL  string
	client   *http.Client
}

// NewTelegramSender creates a sender for the given bot token.
func NewTelegramSender(botToken string) *TelegramSender {
	return &TelegramSender{
		botToken: botToken,
		baseURL:  "https://api.telegram.org",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SetBaseURL overrides the API host, for tests.
func (t *TelegramSender) SetBaseURL(u string) { t.baseURL = u }

func (t *TelegramSender) SendMessage(ctx context.Context, chatID, text string) error {
	body, _ := json.Marshal(map[string]any{
		"chat_id":                  chatID,
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
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram status %d", resp.StatusCode)
	}
	return nil
}

// PlannerClient calls the analysis responder over HTTP.
type PlannerClient struct {
	baseURL string
	client  *http.Client
}

// NewPlannerClient creates a client for the responder at baseURL. Empty
// baseURL leaves analysis unconfigured.
func NewPlannerClient(baseURL string) *PlannerClient {
	return &PlannerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether a responder URL is set.
func (p *PlannerClient) Configured() bool { return p.baseURL != "" }

type analyzeResponse struct {
	OK     bool            `json:"ok"`
	Error  string          `json:"error"`
	Result model.TradePlan `json:"result"`
}

// Analyze requests a plan for symbol.
func (p *PlannerClient) Analyze(ctx context.Context, symbol, timeframe string) (model.TradePlan, error) {
	body, _ := json.Marshal(map[string]string{"symbol": symbol, "timeframe": timeframe})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return model.TradePlan{}, fmt.Errorf("planner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.TradePlan{}, fmt.Errorf("planner call: %w", err)
	}
	defer resp.Body.Close()

	var ar analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return model.TradePlan{}, fmt.Errorf("planner decode: %w", err)
	}
	if !ar.OK {
		if ar.Error == "" {
			ar.Error = "unknown error"
		}
		return model.TradePlan{}, fmt.Errorf("planner: %s", ar.Error)
	}
	return ar.Result, nil
}

// Planner is the analysis dependency; satisfied by PlannerClient.
type Planner interface {
	Configured() bool
	Analyze(ctx context.Context, symbol, timeframe string) (model.TradePlan, error)
}

// Bot handles webhook updates.
type Bot struct {
	watch         WatchStore
	sender        Sender
	planner       Planner
	webhookSecret string
}

// New creates a Bot. webhookSecret empty disables header verification.
func New(watch WatchStore, sender Sender, planner Planner, webhookSecret string) *Bot {
	return &Bot{watch: watch, sender: sender, planner: planner, webhookSecret: webhookSecret}
}

// update is the subset of a Telegram webhook update the bot reads.
type update struct {
	Message       *updateMessage `json:"message"`
	EditedMessage *updateMessage `json:"edited_message"`
}

type updateMessage struct {
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text"`
}

// HandleWebhook is the POST /telegram handler. Replies are sent
// asynchronously from Telegram's point of view: the webhook is always
// acknowledged so Telegram never re-delivers processed updates.
func (b *Bot) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if b.webhookSecret != "" {
		if r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != b.webhookSecret {
			slog.Warn("webhook secret mismatch")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	var u update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat.ID == 0 {
		httpapi.Ack(w)
		return
	}

	chatID := fmt.Sprintf("%d", msg.Chat.ID)
	b.dispatch(r.Context(), chatID, msg.Text)
	httpapi.Ack(w)
}

func (b *Bot) dispatch(ctx context.Context, chatID, text string) {
	cmd, args := ParseCommand(text)

	switch cmd {
	case "/start", "/help":
		b.reply(ctx, chatID, helpText)

	case "/watch":
		b.handleWatch(ctx, chatID, args)

	case "/watchlist":
		b.handleWatchlist(ctx, chatID)

	case "/analyze":
		b.handleAnalyze(ctx, chatID, args)
	}
}

func (b *Bot) handleWatch(ctx context.Context, chatID string, args []string) {
	if len(args) < 2 {
		b.reply(ctx, chatID, "Usage: /watch add SYM or /watch remove SYM")
		return
	}
	action := strings.ToLower(args[0])
	sym := strings.ToUpper(args[1])

	switch action {
	case "add":
		if err := b.watch.WatchAdd(ctx, chatID, sym); err != nil {
			slog.Warn("watch add failed", "chat_id", chatID, "symbol", sym, "err", err)
			b.reply(ctx, chatID, "❌ Could not update watchlist, try again later.")
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("✅ Added <b>%s</b> to watchlist.", sym))
	case "remove":
		if err := b.watch.WatchRemove(ctx, chatID, sym); err != nil {
			slog.Warn("watch remove failed", "chat_id", chatID, "symbol", sym, "err", err)
			b.reply(ctx, chatID, "❌ Could not update watchlist, try again later.")
			return
		}
		b.reply(ctx, chatID, fmt.Sprintf("🗑 Removed <b>%s</b> from watchlist.", sym))
	default:
		b.reply(ctx, chatID, "Usage: /watch add SYM or /watch remove SYM")
	}
}

func (b *Bot) handleWatchlist(ctx context.Context, chatID string) {
	items, err := b.watch.WatchList(ctx, chatID)
	if err != nil {
		slog.Warn("watchlist read failed", "chat_id", chatID, "err", err)
		items = nil
	}
	if len(items) == 0 {
		b.reply(ctx, chatID, "📌 Watchlist is empty. Use /watch add SYM to add symbols.")
		return
	}
	var sb strings.Builder
	sb.WriteString("📌 <b>Your Watchlist:</b>\n")
	for _, s := range items {
		sb.WriteString("• " + s + "\n")
	}
	b.reply(ctx, chatID, strings.TrimRight(sb.String(), "\n"))
}

func (b *Bot) handleAnalyze(ctx context.Context, chatID string, args []string) {
	if len(args) == 0 {
		b.reply(ctx, chatID, "Usage: /analyze SYM")
		return
	}
	if b.planner == nil || !b.planner.Configured() {
		b.reply(ctx, chatID, "❌ Analysis service not configured.")
		return
	}
	sym := strings.ToUpper(args[0])

	b.reply(ctx, chatID, fmt.Sprintf("🔄 Analyzing %s...", sym))

	plan, err := b.planner.Analyze(ctx, sym, "15m")
	if err != nil {
		slog.Warn("analyze proxy failed", "symbol", sym, "err", err)
		b.reply(ctx, chatID, fmt.Sprintf("❌ Analysis failed: %v", err))
		return
	}
	b.reply(ctx, chatID, FormatAnalyzeResult(sym, plan))
}

func (b *Bot) reply(ctx context.Context, chatID, text string) {
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		slog.Warn("reply failed", "chat_id", chatID, "err", err)
	}
}
