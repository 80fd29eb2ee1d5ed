package bot

import (
	"fmt"
	"strings"

	"marketfuse/internal/model"
)

const helpText = "🤖 <b>MarketFuse Assistant</b>\n\n" +
	"<b>Market & Analysis:</b>\n" +
	"• /analyze SYM - In-depth fusion analysis\n" +
	"• /watch add SYM - Follow a symbol\n" +
	"• /watch remove SYM - Unfollow a symbol\n" +
	"• /watchlist - Show your followed symbols\n"

// FormatAnalyzeResult renders a trade plan as a Telegram HTML message.
func FormatAnalyzeResult(symbol string, plan model.TradePlan) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("📊 <b>%s Analysis</b>", symbol))
	lines = append(lines, "━━━━━━━━━━━━━━━")
	if plan.Snapshot.Price > 0 {
		lines = append(lines, fmt.Sprintf("💰 Price: $%.2f", plan.Snapshot.Price))
	}
	lines = append(lines, fmt.Sprintf("📈 Trend: %s | Vol: %s", orDash(plan.MarketStructure.Trend), orDash(plan.Snapshot.VolatilityRegime)))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("🎯 <b>Action: %s</b>", orDash(plan.SuggestedAction.Action)))
	lines = append(lines, fmt.Sprintf("📊 Confidence: %d%%", plan.SuggestedAction.Confidence))
	lines = append(lines, fmt.Sprintf("⏰ Timing: %s", orDash(plan.SuggestedAction.TimingWindow)))

	if len(plan.SuggestedAction.RiskFlags) > 0 {
		lines = append(lines, "⚠️ Risks: "+strings.Join(head(plan.SuggestedAction.RiskFlags, 3), ", "))
	}

	if len(plan.SuggestedAction.InvalidationRules) > 0 {
		lines = append(lines, "", "❌ Invalidation:")
		for _, rule := range head(plan.SuggestedAction.InvalidationRules, 2) {
			lines = append(lines, "  • "+truncate(rule, 50))
		}
	}

	if len(plan.Catalysts.NewsTop3) > 0 || len(plan.Catalysts.SocialTop3) > 0 {
		lines = append(lines, "", "🔍 <b>Catalysts:</b>")
		if len(plan.Catalysts.NewsTop3) > 0 {
			lines = append(lines, " 📰 <i>News:</i>")
			for _, n := range head(plan.Catalysts.NewsTop3, 2) {
				lines = append(lines, "  • "+truncate(n, 60))
			}
		}
		if len(plan.Catalysts.SocialTop3) > 0 {
			lines = append(lines, " 💬 <i>Social:</i>")
			for _, s := range head(plan.Catalysts.SocialTop3, 2) {
				lines = append(lines, "  • "+truncate(s, 60))
			}
		}
	}

	lines = append(lines, "", "⚠️ <i>Decision support only, not financial advice.</i>")
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func head(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
