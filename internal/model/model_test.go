package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinuteBucketMS(t *testing.T) {
	assert.Equal(t, int64(1700000000000-1700000000000%60000), MinuteBucketMS(1700000015000))
	assert.Equal(t, int64(0), MinuteBucketMS(59999))
	assert.Equal(t, int64(60000), MinuteBucketMS(60000))

	// Idempotent under repeated application.
	b := MinuteBucketMS(1700000015000)
	assert.Equal(t, b, MinuteBucketMS(b))
}

func TestCandle_ChangePct(t *testing.T) {
	c := Candle{Open: 100, Close: 100.9}
	assert.InDelta(t, 0.9, c.ChangePct(), 1e-9)

	// open == 0 means no defined move.
	z := Candle{Open: 0, Close: 150}
	assert.Equal(t, 0.0, z.ChangePct())

	n := Candle{Open: -5, Close: 10}
	assert.Equal(t, 0.0, n.ChangePct())
}

func validPlan() TradePlan {
	var p TradePlan
	p.SuggestedAction.Action = ActionWatch
	p.SuggestedAction.Confidence = 55
	p.SuggestedAction.InvalidationRules = []string{"break of support", "negative news"}
	p.Scenarios.Base = Scenario{Path: "range", Prob: 55}
	p.Scenarios.Bull = Scenario{Path: "breakout", Prob: 25}
	p.Scenarios.Bear = Scenario{Path: "breakdown", Prob: 20}
	p.Disclosures = []string{"This is informational decision support, not financial advice."}
	return p
}

func TestTradePlan_Validate(t *testing.T) {
	p := validPlan()
	require.NoError(t, p.Validate())

	bad := validPlan()
	bad.Scenarios.Bear.Prob = 25
	assert.Error(t, bad.Validate(), "probabilities must sum to 100")

	bad = validPlan()
	bad.SuggestedAction.InvalidationRules = []string{"only one"}
	assert.Error(t, bad.Validate(), "bare directives are rejected")

	bad = validPlan()
	bad.SuggestedAction.Action = "BUY"
	assert.Error(t, bad.Validate())

	bad = validPlan()
	bad.Disclosures = nil
	assert.Error(t, bad.Validate())
}
