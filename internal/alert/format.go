package alert

import (
	"fmt"
	"strings"

	"marketfuse/internal/model"
)

const divider = "━━━━━━━━━━━━━━━"

// FormatCandleMessage renders a candle alert in Telegram HTML.
// Pure function of the event so formatting is testable in isolation.
func FormatCandleMessage(c model.Candle, pct float64) string {
	direction := "📈 上漲"
	if pct < 0 {
		direction = "📉 下跌"
	}
	emoji := "⚠️"
	if pct > 2 || pct < -2 {
		emoji = "🔥"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>[即時警報] %s</b>\n", emoji, c.Symbol)
	b.WriteString(divider + "\n")
	b.WriteString("📊 1分鐘 K 線異動\n")
	fmt.Fprintf(&b, "• 方向：%s <b>%+.2f%%</b>\n", direction, pct)
	fmt.Fprintf(&b, "• O/H/L/C：%.2f/%.2f/%.2f/%.2f\n", c.Open, c.High, c.Low, c.Close)
	fmt.Fprintf(&b, "• 成交量：%.0f\n", c.Volume)
	fmt.Fprintf(&b, "• 時間：%d\n", c.MinuteTSMS)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "⏰ %s", c.FinalizedAt.Format("15:04:05"))
	return b.String()
}

// FormatFusedMessage renders a fused-event alert with its top headlines.
func FormatFusedMessage(ev model.FusedEvent) string {
	var directionZH, emoji string
	switch ev.Direction {
	case model.DirectionPositive:
		directionZH, emoji = "📈 利多", "🟢"
	case model.DirectionNegative:
		directionZH, emoji = "📉 利空", "🔴"
	default:
		directionZH, emoji = "➡️ 中性", "🟡"
	}

	var severityEmoji string
	switch {
	case ev.Severity >= 70:
		severityEmoji = "🔥🔥🔥"
	case ev.Severity >= 50:
		severityEmoji = "🔥🔥"
	case ev.Severity >= 35:
		severityEmoji = "🔥"
	}

	var newsLines []string
	for i, n := range ev.Evidence.NewsItems {
		if i == 3 {
			break
		}
		headline := strings.TrimSpace(n.Headline)
		url := strings.TrimSpace(n.URL)
		if headline == "" && url == "" {
			continue
		}
		if url != "" {
			newsLines = append(newsLines, fmt.Sprintf("  • %s (%s)\n    🔗 %s", truncate(headline, 50), n.Source, url))
		} else {
			newsLines = append(newsLines, fmt.Sprintf("  • %s (%s)", truncate(headline, 60), n.Source))
		}
	}
	newsBlock := "  • (無可用新聞摘要)"
	if len(newsLines) > 0 {
		newsBlock = strings.Join(newsLines, "\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>[融合事件] %s</b> %s\n", emoji, ev.Symbol, severityEmoji)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "📊 Direction：%s\n", directionZH)
	fmt.Fprintf(&b, "🎯 Severity：<b>%d/100</b>\n", ev.Severity)
	fmt.Fprintf(&b, "📈 1m Move：%+.2f%%\n", ev.Price.ChangePct1m)
	fmt.Fprintf(&b, "📰 News Count：%d\n", ev.Context.News.Count)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "<b>Top Headlines:</b>\n%s\n", newsBlock)
	b.WriteString(divider + "\n")
	fmt.Fprintf(&b, "⏰ %s", ev.FusedAt.Format("2006-01-02 15:04:05"))
	return b.String()
}

// StripMarkup removes HTML tags for plain-text channels.
func StripMarkup(s string) string {
	r := strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "", "<code>", "", "</code>", "")
	return r.Replace(s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
