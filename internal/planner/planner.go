// Package planner is the analysis responder: given a symbol it assembles
// candle history and evidence into a structured decision-support answer,
// asking the reasoning oracle when one is configured and falling back to a
// deterministic plan otherwise. An oracle answer that breaks the contract
// is discarded, never passed through.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"marketfuse/internal/httpapi"
	"marketfuse/internal/model"
)

// CandleSource is the slice of the candle table the planner needs.
type CandleSource interface {
	RecentCandles(ctx context.Context, symbol string, limit int) ([]model.Candle, error)
}

// EvidenceSource is the slice of the evidence buffer the planner needs.
type EvidenceSource interface {
	RecentNews(ctx context.Context, symbol string, lookbackSec int) []model.NewsItem
	RecentSocial(ctx context.Context, symbol string, lookbackSec int) []model.SocialItem
}

const (
	candleHistoryLimit  = 120
	evidenceLookbackSec = 3600
	candleTailForOracle = 30
)

// Planner assembles analysis answers.
type Planner struct {
	candles  CandleSource
	evidence EvidenceSource
	oracle   Oracle // nil means fallback-only
}

// New creates a Planner. oracle may be nil.
func New(candles CandleSource, evidence EvidenceSource, oracle Oracle) *Planner {
	return &Planner{candles: candles, evidence: evidence, oracle: oracle}
}

// Analyze builds the answer for one symbol. The returned plan always
// validates against the contract.
func (p *Planner) Analyze(ctx context.Context, symbol, timeframe string) (model.TradePlan, error) {
	candles, err := p.candles.RecentCandles(ctx, symbol, candleHistoryLimit)
	if err != nil {
		return model.TradePlan{}, fmt.Errorf("planner candles %s: %w", symbol, err)
	}

	window := tail(candles, statsWindow)
	var latestPrice float64
	if len(candles) > 0 {
		latestPrice = candles[len(candles)-1].Close
	}
	support, resistance := SupportResistance(window)
	trend := TrendLabel(window)
	vol := VolatilityRegime(window)

	news := p.evidence.RecentNews(ctx, symbol, evidenceLookbackSec)
	social := p.evidence.RecentSocial(ctx, symbol, evidenceLookbackSec)

	var newsTop3 []string
	for _, n := range news {
		if n.Headline != "" {
			newsTop3 = append(newsTop3, n.Headline)
		}
		if len(newsTop3) == 3 {
			break
		}
	}
	var socialTop3 []string
	for _, s := range social {
		if s.Title != "" {
			socialTop3 = append(socialTop3, s.Title)
		}
		if len(socialTop3) == 3 {
			break
		}
	}

	fallback := buildFallback(symbol, timeframe, latestPrice, trend, vol, support, resistance, newsTop3, socialTop3)

	if p.oracle == nil {
		return fallback, nil
	}

	userPayload, err := json.Marshal(map[string]any{
		"symbol":                 symbol,
		"timeframe":              timeframe,
		"latest_price":           latestPrice,
		"trend":                  trend,
		"volatility_regime":      vol,
		"support":                support,
		"resistance":             resistance,
		"recent_news":            head(news, 5),
		"recent_social":          head(social, 5),
		"recent_candles_1m_tail": tail(candles, candleTailForOracle),
	})
	if err != nil {
		return fallback, nil
	}

	raw, err := p.oracle.Reason(ctx, skillContract, "DATA(JSON): "+string(userPayload))
	if err != nil {
		slog.Warn("oracle call failed, using fallback", "symbol", symbol, "err", err)
		return fallback, nil
	}

	var plan model.TradePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		slog.Warn("oracle answer unparsable, using fallback", "symbol", symbol, "err", err)
		return fallback, nil
	}
	if err := plan.Validate(); err != nil {
		slog.Warn("oracle answer violates contract, using fallback", "symbol", symbol, "err", err)
		return fallback, nil
	}
	return plan, nil
}

func head[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// buildFallback produces the deterministic answer used when the oracle is
// unavailable or misbehaves.
func buildFallback(symbol, timeframe string, latestPrice float64, trend, vol string,
	support, resistance []float64, newsTop3, socialTop3 []string) model.TradePlan {

	var p model.TradePlan
	p.Snapshot.Symbol = symbol
	p.Snapshot.Timeframe = timeframe
	p.Snapshot.Price = latestPrice
	p.Snapshot.VolatilityRegime = vol

	p.Catalysts.NewsTop3 = newsTop3
	p.Catalysts.SocialTop3 = socialTop3

	p.MarketStructure.Trend = trend
	p.MarketStructure.Support = support
	p.MarketStructure.Resistance = resistance
	p.MarketStructure.VolumeNote = "Volume analysis from last 30 candles"

	p.Scenarios.Base = model.Scenario{Path: "Continue current regime with mean reversion near key levels.", Prob: 55}
	p.Scenarios.Bull = model.Scenario{Path: "Break above resistance with volume confirmation.", Prob: 25}
	p.Scenarios.Bear = model.Scenario{Path: "Lose support and accelerate downside.", Prob: 20}

	p.SuggestedAction.Action = model.ActionWatch
	p.SuggestedAction.TimingWindow = "next 1-4h"
	p.SuggestedAction.Confidence = 55
	p.SuggestedAction.InvalidationRules = []string{
		"If price breaks below support with rising volume.",
		"If major negative news breaks.",
	}
	p.SuggestedAction.RiskFlags = []string{"uncertainty"}

	p.Disclosures = []string{
		"This is informational decision support, not financial advice.",
		"High volatility can cause rapid losses.",
	}
	return p
}

type analyzeRequest struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
}

// HandleAnalyze is the POST /analyze handler.
func (p *Planner) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid json"})
		return
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		httpapi.WriteJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "symbol required"})
		return
	}
	timeframe := strings.TrimSpace(req.Timeframe)
	if timeframe == "" {
		timeframe = "15m"
	}

	plan, err := p.Analyze(r.Context(), symbol, timeframe)
	if err != nil {
		slog.Error("analyze failed", "symbol", symbol, "err", err)
		httpapi.WriteJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "analysis unavailable"})
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "result": plan})
}
