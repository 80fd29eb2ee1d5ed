package planner

import "marketfuse/internal/model"

// Trend and volatility labels used in analysis answers.
const (
	TrendUp    = "up"
	TrendDown  = "down"
	TrendRange = "range"

	VolLow    = "low"
	VolNormal = "normal"
	VolHigh   = "high"
)

// statsWindow is how many trailing candles feed the market-structure stats.
const statsWindow = 60

// SupportResistance derives the simple support and resistance levels from a
// candle window: min of lows and max of highs.
func SupportResistance(candles []model.Candle) (support, resistance []float64) {
	if len(candles) == 0 {
		return nil, nil
	}
	lo, hi := candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		if c.Low < lo {
			lo = c.Low
		}
		if c.High > hi {
			hi = c.High
		}
	}
	return []float64{lo}, []float64{hi}
}

// TrendLabel compares first close to last close with a ±1% dead-band.
// Fewer than 20 candles is not enough signal and reads as range.
func TrendLabel(candles []model.Candle) string {
	if len(candles) < 20 {
		return TrendRange
	}
	first := candles[0].Close
	last := candles[len(candles)-1].Close
	switch {
	case last > first*1.01:
		return TrendUp
	case last < first*0.99:
		return TrendDown
	default:
		return TrendRange
	}
}

// VolatilityRegime classifies the close-price range of the window:
// below 1% is low, above 3% is high.
func VolatilityRegime(candles []model.Candle) string {
	if len(candles) < 20 {
		return VolNormal
	}
	lo, hi := candles[0].Close, candles[0].Close
	for _, c := range candles[1:] {
		if c.Close < lo {
			lo = c.Close
		}
		if c.Close > hi {
			hi = c.Close
		}
	}
	if lo <= 0 {
		return VolNormal
	}
	rng := (hi - lo) / lo
	switch {
	case rng > 0.03:
		return VolHigh
	case rng < 0.01:
		return VolLow
	default:
		return VolNormal
	}
}

// tail returns the last n elements of candles.
func tail(candles []model.Candle, n int) []model.Candle {
	if len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}
