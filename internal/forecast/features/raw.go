package features

import (
	"math"

	"oraculum/internal/domain"
)

// Raw feature names consumed by the model bank.
const (
	RSI              = "rsi"
	StochRSI         = "stoch_rsi"
	Momentum         = "momentum"
	RSIDivergence    = "rsi_divergence"
	EMACross         = "ema_cross"
	MACD             = "macd"
	ADX              = "adx"
	Supertrend       = "supertrend"
	Volume           = "volume"
	OBV              = "obv"
	CVD              = "cvd"
	WhaleFlow        = "whale_flow"
	SupportResist    = "support_resistance"
	OrderBlocks      = "order_blocks"
	FVG              = "fvg"
	Liquidity        = "liquidity"
	CandlePatterns   = "candlestick_patterns"
	ChartPatterns    = "chart_patterns"
	Divergences      = "divergences"
	MTF1m            = "mtf_1m"
	MTF5m            = "mtf_5m"
	MTF15m           = "mtf_15m"
	MTF1h            = "mtf_1h"
	MTF4h            = "mtf_4h"
	adxTrendingLevel = 25.0
)

// Timeframes in the order mtf features are read.
var Timeframes = []string{"1m", "5m", "15m", "1h", "4h"}

func registerRaw(r *Registry) {
	r.register(RSI, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return oscillator(s.Indicators.RSI)
	})
	r.register(StochRSI, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return oscillator(s.Indicators.StochRSI)
	})
	r.register(Momentum, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return signal(s.Indicators.Momentum)
	})
	r.register(RSIDivergence, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Divergence == nil {
			return 0, false
		}
		return bias(s.Divergence.Type, 1)
	})

	r.register(EMACross, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Indicators.EMA == nil {
			return 0, false
		}
		return signal(s.Indicators.EMA.Signal)
	})
	r.register(MACD, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Indicators.MACD == nil {
			return 0, false
		}
		return s.Indicators.MACD.Histogram * 10, true
	})
	r.register(ADX, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		adx := s.Indicators.ADX
		if adx == nil {
			return 0, false
		}
		strength := 0.5
		if adx.Value > adxTrendingLevel {
			strength = 1
		}
		dir, ok := signal(adx.Trend)
		if !ok {
			return 0, false
		}
		return dir * strength, true
	})
	r.register(Supertrend, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return signal(s.Indicators.Supertrend)
	})

	r.register(Volume, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Volume == nil {
			return 0, false
		}
		switch s.Volume.Trend {
		case "increasing":
			return 0.5, true
		case "decreasing":
			return -0.5, true
		case "flat":
			return 0, true
		}
		return 0, false
	})
	r.register(OBV, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return signal(s.Indicators.OBV)
	})
	r.register(CVD, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.CVD == nil {
			return 0, false
		}
		return math.Tanh(*s.CVD / 1e6), true
	})
	r.register(WhaleFlow, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.WhaleFlow == nil {
			return 0, false
		}
		return math.Tanh((s.WhaleFlow.Buy - s.WhaleFlow.Sell) / 1e5), true
	})

	r.register(SupportResist, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		sr := s.SupportResistance
		if sr == nil {
			return 0, false
		}
		switch {
		case sr.NearSupport:
			return 0.7, true
		case sr.NearResistance:
			return -0.7, true
		}
		return 0, true
	})
	r.register(OrderBlocks, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return biasFlags(s.OrderBlocks, 0.5)
	})
	r.register(FVG, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		return biasFlags(s.FVG, 0.3)
	})
	r.register(Liquidity, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		liq := s.Liquidity
		if liq == nil {
			return 0, false
		}
		switch {
		case liq.BuyLiquidity > liq.SellLiquidity:
			return 0.4, true
		case liq.BuyLiquidity < liq.SellLiquidity:
			return -0.4, true
		}
		return 0, true
	})

	r.register(CandlePatterns, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.CandlePatterns == nil {
			return 0, false
		}
		score := 0.0
		for _, p := range s.CandlePatterns {
			switch p.Type {
			case domain.BiasBullish:
				score += 0.3
			case domain.BiasBearish:
				score -= 0.3
			}
		}
		return score, true
	})
	r.register(ChartPatterns, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.ChartPattern == nil {
			return 0, false
		}
		return bias(s.ChartPattern.Bias, 0.6)
	})
	r.register(Divergences, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
		if s.Divergence == nil {
			return 0, false
		}
		return bias(s.Divergence.Type, 0.8)
	})

	for i, name := range []string{MTF1m, MTF5m, MTF15m, MTF1h, MTF4h} {
		tf := Timeframes[i]
		r.register(name, 1.0, func(s domain.MarketSnapshot) (float64, bool) {
			v, ok := s.MTF[tf]
			if !ok {
				return 0, false
			}
			return signal(v)
		})
	}
}

func oscillator(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return (*v - 50) / 50, true
}

func signal(v string) (float64, bool) {
	switch v {
	case domain.SignalBull:
		return 1, true
	case domain.SignalBear:
		return -1, true
	case domain.SignalNeutral:
		return 0, true
	}
	return 0, false
}

func bias(v string, magnitude float64) (float64, bool) {
	switch v {
	case domain.BiasBullish:
		return magnitude, true
	case domain.BiasBearish:
		return -magnitude, true
	case "":
		return 0, false
	}
	return 0, true
}

func biasFlags(b *domain.Bias, magnitude float64) (float64, bool) {
	if b == nil {
		return 0, false
	}
	switch {
	case b.Bullish && !b.Bearish:
		return magnitude, true
	case b.Bearish && !b.Bullish:
		return -magnitude, true
	}
	return 0, true
}
