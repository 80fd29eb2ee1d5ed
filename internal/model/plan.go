package model

import "fmt"

// Suggested actions an analysis answer may recommend.
const (
	ActionWatch   = "WATCH"
	ActionBuyZone = "BUY_ZONE"
	ActionReduce  = "REDUCE"
	ActionHedge   = "HEDGE"
	ActionAvoid   = "AVOID"
)

// Scenario is one branch of the scenario tree in an analysis answer.
type Scenario struct {
	Path string `json:"path"`
	Prob int    `json:"prob"`
}

// TradePlan is the structured decision-support answer returned by the
// analysis responder. The shape is the normative skill contract: an oracle
// answer that does not validate against it is discarded in favour of the
// deterministic fallback.
type TradePlan struct {
	Snapshot struct {
		Symbol           string  `json:"symbol"`
		Timeframe        string  `json:"timeframe"`
		Price            float64 `json:"price"`
		VolatilityRegime string  `json:"volatility_regime"`
	} `json:"snapshot"`

	Catalysts struct {
		NewsTop3   []string `json:"news_top3"`
		SocialTop3 []string `json:"social_top3"`
	} `json:"catalysts"`

	MarketStructure struct {
		Trend      string    `json:"trend"`
		Support    []float64 `json:"support"`
		Resistance []float64 `json:"resistance"`
		VolumeNote string    `json:"volume_note"`
	} `json:"market_structure"`

	Scenarios struct {
		Base Scenario `json:"base"`
		Bull Scenario `json:"bull"`
		Bear Scenario `json:"bear"`
	} `json:"scenarios"`

	SuggestedAction struct {
		Action            string   `json:"action"`
		TimingWindow      string   `json:"timing_window"`
		Confidence        int      `json:"confidence"`
		InvalidationRules []string `json:"invalidation_rules"`
		RiskFlags         []string `json:"risk_flags"`
	} `json:"suggested_action"`

	Disclosures []string `json:"disclosures"`
}

var validActions = map[string]bool{
	ActionWatch:   true,
	ActionBuyZone: true,
	ActionReduce:  true,
	ActionHedge:   true,
	ActionAvoid:   true,
}

// Validate checks the contract invariants: a known action, scenario
// probabilities summing to 100, at least two invalidation rules, and a
// non-empty disclosures list. A bare directive without invalidation rules
// never passes.
func (p *TradePlan) Validate() error {
	if !validActions[p.SuggestedAction.Action] {
		return fmt.Errorf("unknown action %q", p.SuggestedAction.Action)
	}
	sum := p.Scenarios.Base.Prob + p.Scenarios.Bull.Prob + p.Scenarios.Bear.Prob
	if sum != 100 {
		return fmt.Errorf("scenario probabilities sum to %d, want 100", sum)
	}
	if len(p.SuggestedAction.InvalidationRules) < 2 {
		return fmt.Errorf("need at least 2 invalidation rules, got %d", len(p.SuggestedAction.InvalidationRules))
	}
	if p.SuggestedAction.Confidence < 0 || p.SuggestedAction.Confidence > 100 {
		return fmt.Errorf("confidence %d out of range", p.SuggestedAction.Confidence)
	}
	if len(p.Disclosures) == 0 {
		return fmt.Errorf("disclosures must not be empty")
	}
	return nil
}
