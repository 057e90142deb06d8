package ensemble

import (
	"math"
	"time"

	"oraculum/internal/domain"
)

type RegimeConfig struct {
	VolatileScore float64
	TrendADX      float64
}

type BucketConfig struct {
	LowBelow  float64
	HighAbove float64
}

type BreakoutConfig struct {
	FakeRisk         float64
	ContinuationRisk float64
	NearLevelPct     float64
}

// VolatilityScore is ATR relative to its average, 1.0 meaning normal. A
// "high" label forces at least 2.0.
func VolatilityScore(s domain.MarketSnapshot) float64 {
	score := 1.0
	hasRatio := s.ATR > 0 && s.ATRAvg > 0
	if hasRatio {
		score = s.ATR / s.ATRAvg
	}
	switch s.Volatility {
	case "high":
		score = math.Max(score, 2.0)
	case "low":
		if !hasRatio {
			score = 0.5
		}
	}
	return score
}

func Bucket(score float64, cfg BucketConfig) domain.VolatilityBucket {
	switch {
	case score < cfg.LowBelow:
		return domain.VolatilityLow
	case score > cfg.HighAbove:
		return domain.VolatilityHigh
	}
	return domain.VolatilityNormal
}

func DetectRegime(s domain.MarketSnapshot, volScore float64, cfg RegimeConfig) domain.Regime {
	if volScore > cfg.VolatileScore {
		return domain.RegimeVolatile
	}
	adx := s.Indicators.ADX
	if adx == nil || adx.Value <= cfg.TrendADX {
		return domain.RegimeRanging
	}
	ema20 := s.Price
	if s.Indicators.EMA != nil && s.Indicators.EMA.EMA20 > 0 {
		ema20 = s.Indicators.EMA.EMA20
	}
	switch {
	case adx.Trend == domain.SignalBull || s.Price > ema20:
		return domain.RegimeTrendingUp
	case adx.Trend == domain.SignalBear || s.Price < ema20:
		return domain.RegimeTrendingDown
	}
	return domain.RegimeRanging
}

// SessionAt tags the trading session by UTC hour.
func SessionAt(t time.Time) domain.Session {
	h := t.UTC().Hour()
	switch {
	case h < 7:
		return domain.SessionAsia
	case h < 13:
		return domain.SessionEurope
	}
	return domain.SessionUS
}

// Breakout scores how likely a move through a level is to reverse.
func Breakout(s domain.MarketSnapshot, volScore float64, cfg BreakoutConfig) (domain.BreakoutClass, float64) {
	wick := wickRatio(s.Candle)
	volPart := math.Min(1, math.Max(0, volScore-1))
	weak := 0.0
	if s.Volume != nil && s.Volume.Average > 0 && s.Volume.Current < s.Volume.Average {
		weak = 1
	}
	near := 0.0
	if nearLevel(s, cfg.NearLevelPct) {
		near = 1
	}

	risk := 0.35*wick + 0.25*volPart + 0.25*weak + 0.15*near
	switch {
	case risk > cfg.FakeRisk:
		return domain.BreakoutFakeRisk, risk
	case risk < cfg.ContinuationRisk && near == 1:
		return domain.BreakoutContinuation, risk
	}
	return domain.BreakoutNeutral, risk
}

func wickRatio(c *domain.Candle) float64 {
	if c == nil {
		return 0
	}
	rng := c.High - c.Low
	if rng <= 0 {
		return 0
	}
	upper := c.High - math.Max(c.Open, c.Close)
	lower := math.Min(c.Open, c.Close) - c.Low
	return math.Min(1, math.Max(0, (upper+lower)/rng))
}

func nearLevel(s domain.MarketSnapshot, pct float64) bool {
	sr := s.SupportResistance
	if sr == nil {
		return false
	}
	if sr.NearSupport || sr.NearResistance {
		return true
	}
	if s.Price <= 0 {
		return false
	}
	for _, level := range []float64{sr.Support, sr.Resistance} {
		if level > 0 && math.Abs(s.Price-level)/s.Price*100 < pct {
			return true
		}
	}
	return false
}
