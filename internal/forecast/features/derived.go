package features

import (
	"math"

	"oraculum/internal/domain"
)

// Derived feature names. These make up the pattern memory vector.
const (
	RSIMomentum        = "rsi_momentum"
	MACDAcceleration   = "macd_acceleration"
	VolumeTrend        = "volume_trend"
	VolatilityRegime   = "volatility_regime"
	WhalePressure      = "whale_pressure"
	OrderImbalance     = "order_imbalance"
	MTFAlignment       = "mtf_alignment"
	TrendStrength      = "trend_strength"
	MomentumDivergence = "momentum_divergence"
	LiquidityZones     = "liquidity_zones"
)

var MemoryFeatures = []string{
	RSIMomentum,
	MACDAcceleration,
	VolumeTrend,
	VolatilityRegime,
	WhalePressure,
	OrderImbalance,
	MTFAlignment,
	TrendStrength,
	MomentumDivergence,
	LiquidityZones,
	PriceROC,
}

func registerDerived(r *Registry) {
	r.register(RSIMomentum, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		in := s.Indicators
		if in.RSI == nil || in.PrevRSI == nil {
			return 0, false
		}
		return math.Tanh((*in.RSI - *in.PrevRSI) / 10), true
	})
	r.register(MACDAcceleration, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		m := s.Indicators.MACD
		if m == nil || m.PrevHistogram == nil {
			return 0, false
		}
		return math.Tanh((m.Histogram - *m.PrevHistogram) * 10), true
	})
	r.register(VolumeTrend, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		v := s.Volume
		if v == nil || v.Average <= 0 || v.Current < 0 {
			return 0, false
		}
		return math.Tanh(v.Current/v.Average - 1), true
	})
	r.register(VolatilityRegime, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.ATR <= 0 || s.ATRAvg <= 0 {
			return 0, false
		}
		return s.ATR/s.ATRAvg - 1, true
	})
	r.register(WhalePressure, 1.2, func(s domain.MarketSnapshot) (float64, bool) {
		if s.WhaleFlow == nil {
			return 0, false
		}
		return ratio(s.WhaleFlow.Buy, s.WhaleFlow.Sell)
	})
	r.register(OrderImbalance, 1.1, func(s domain.MarketSnapshot) (float64, bool) {
		if s.OrderBook == nil {
			return 0, false
		}
		return ratio(s.OrderBook.BidVolume, s.OrderBook.AskVolume)
	})
	r.register(MTFAlignment, 1.3, func(s domain.MarketSnapshot) (float64, bool) {
		total, net := 0, 0.0
		for _, tf := range Timeframes {
			v, ok := s.MTF[tf]
			if !ok {
				continue
			}
			d, ok := signal(v)
			if !ok {
				continue
			}
			total++
			net += d
		}
		if total == 0 {
			return 0, false
		}
		return net / float64(total), true
	})
	r.register(TrendStrength, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		adx := s.Indicators.ADX
		if adx == nil {
			return 0, false
		}
		dir, ok := signal(adx.Trend)
		if !ok {
			return 0, false
		}
		return dir * math.Min(1, adx.Value/50), true
	})
	r.register(MomentumDivergence, 1.2, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Divergence == nil {
			return 0, false
		}
		return bias(s.Divergence.Type, 0.8)
	})
	r.register(LiquidityZones, 1.1, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Liquidity == nil {
			return 0, false
		}
		return ratio(s.Liquidity.BuyLiquidity, s.Liquidity.SellLiquidity)
	})
}

// ratio maps two non-negative sides to (a-b)/(a+b).
func ratio(a, b float64) (float64, bool) {
	if a < 0 || b < 0 || a+b == 0 {
		return 0, false
	}
	return (a - b) / (a + b), true
}
