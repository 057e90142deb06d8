package domain

import "time"

// MarketSnapshot is one tick of already-computed market state. Every
// optional reading is a pointer or an empty string; absent readings are
// treated as unavailable features, never as zero.
type MarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Time      time.Time `json:"time"`
	Price     float64   `json:"price"`
	PrevPrice float64   `json:"prev_price"`

	Indicators Indicators `json:"indicators"`

	Volume            *VolumeInfo        `json:"volume,omitempty"`
	CVD               *float64           `json:"cvd,omitempty"`
	WhaleFlow         *WhaleFlow         `json:"whale_flow,omitempty"`
	SupportResistance *SupportResistance `json:"support_resistance,omitempty"`
	OrderBlocks       *Bias              `json:"order_blocks,omitempty"`
	FVG               *Bias              `json:"fvg,omitempty"`
	Liquidity         *Liquidity         `json:"liquidity,omitempty"`
	OrderBook         *OrderBook         `json:"order_book,omitempty"`
	CandlePatterns    []CandlePattern    `json:"candle_patterns,omitempty"`
	ChartPattern      *ChartPattern      `json:"chart_pattern,omitempty"`
	Divergence        *Divergence        `json:"divergence,omitempty"`
	Candle            *Candle            `json:"candle,omitempty"`

	// MTF maps a timeframe ("1m", "5m", "15m", "1h", "4h") to bull, bear or neutral.
	MTF map[string]string `json:"mtf,omitempty"`

	Volatility string  `json:"volatility,omitempty"` // low, normal, high
	ATR        float64 `json:"atr,omitempty"`
	ATRAvg     float64 `json:"atr_avg,omitempty"`
}

type Indicators struct {
	RSI        *float64 `json:"rsi,omitempty"`
	PrevRSI    *float64 `json:"prev_rsi,omitempty"`
	StochRSI   *float64 `json:"stoch_rsi,omitempty"`
	Momentum   string   `json:"momentum,omitempty"`
	EMA        *EMA     `json:"ema,omitempty"`
	MACD       *MACD    `json:"macd,omitempty"`
	ADX        *ADX     `json:"adx,omitempty"`
	Supertrend string   `json:"supertrend,omitempty"`
	OBV        string   `json:"obv,omitempty"`
}

type EMA struct {
	Signal string  `json:"signal,omitempty"`
	EMA20  float64 `json:"ema20,omitempty"`
	EMA50  float64 `json:"ema50,omitempty"`
}

type MACD struct {
	Histogram     float64  `json:"histogram"`
	PrevHistogram *float64 `json:"prev_histogram,omitempty"`
}

type ADX struct {
	Value     float64  `json:"value"`
	PrevValue *float64 `json:"prev_value,omitempty"`
	Trend     string   `json:"trend,omitempty"`
}

type VolumeInfo struct {
	Trend   string  `json:"trend,omitempty"` // increasing, decreasing, flat
	Current float64 `json:"current,omitempty"`
	Average float64 `json:"average,omitempty"`
}

type WhaleFlow struct {
	Buy  float64 `json:"buy"`
	Sell float64 `json:"sell"`
}

type SupportResistance struct {
	NearSupport    bool    `json:"near_support"`
	NearResistance bool    `json:"near_resistance"`
	Support        float64 `json:"support,omitempty"`
	Resistance     float64 `json:"resistance,omitempty"`
}

type Bias struct {
	Bullish bool `json:"bullish"`
	Bearish bool `json:"bearish"`
}

type Liquidity struct {
	BuyLiquidity  float64 `json:"buy_liquidity"`
	SellLiquidity float64 `json:"sell_liquidity"`
}

type OrderBook struct {
	BidVolume float64 `json:"bid_volume"`
	AskVolume float64 `json:"ask_volume"`
}

type CandlePattern struct {
	Name string `json:"name"`
	Type string `json:"type"` // bullish, bearish
}

type ChartPattern struct {
	Name string `json:"name"`
	Bias string `json:"bias"`
}

type Divergence struct {
	Type string `json:"type"` // bullish, bearish
}

// Candle is the most recent OHLC bar.
type Candle struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// HasPrice reports whether the snapshot carries a usable price.
func (s MarketSnapshot) HasPrice() bool {
	return s.Price > 0
}

const (
	SignalBull    = "bull"
	SignalBear    = "bear"
	SignalNeutral = "neutral"

	BiasBullish = "bullish"
	BiasBearish = "bearish"
)
