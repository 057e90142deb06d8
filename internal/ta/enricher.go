package ta

import (
	"strings"
	"sync"

	"oraculum/internal/domain"
)

const (
	rsiPeriod  = 14
	emaFast    = 20
	emaSlow    = 50
	macdFast   = 12
	macdSlow   = 26
	macdSignal = 9
)

// Enricher keeps a rolling close history per symbol and fills indicators a
// snapshot leaves out. Readings the snapshot already carries win.
type Enricher struct {
	mu      sync.Mutex
	window  int
	history map[string][]float64
}

// NewEnricher keeps up to window closes per symbol; anything under the slow
// EMA period is raised to it.
func NewEnricher(window int) *Enricher {
	if window < emaSlow*2 {
		window = emaSlow * 2
	}
	return &Enricher{window: window, history: make(map[string][]float64)}
}

func (e *Enricher) Enrich(s domain.MarketSnapshot) domain.MarketSnapshot {
	if s.Price <= 0 {
		return s
	}
	closes := e.push(strings.ToUpper(s.Symbol), s.Price)

	in := &s.Indicators
	if in.RSI == nil {
		if series := RSISeries(closes, rsiPeriod); series != nil {
			n := len(series)
			in.RSI = ptr(series[n-1])
			if in.PrevRSI == nil && n-2 >= rsiPeriod {
				in.PrevRSI = ptr(series[n-2])
			}
		}
	}
	if in.EMA == nil && len(closes) >= emaSlow {
		fast := EMASeries(closes, emaFast)
		slow := EMASeries(closes, emaSlow)
		last := len(closes) - 1
		in.EMA = &domain.EMA{Signal: crossSignal(fast[last], slow[last]), EMA20: fast[last], EMA50: slow[last]}
	}
	if in.MACD == nil && len(closes) >= macdSlow+macdSignal {
		hist := MACDHistogram(closes, macdFast, macdSlow, macdSignal)
		n := len(hist)
		// percent of price, so the reading is comparable across symbols
		in.MACD = &domain.MACD{
			Histogram:     hist[n-1] / s.Price * 100,
			PrevHistogram: ptr(hist[n-2] / s.Price * 100),
		}
	}
	if s.PrevPrice == 0 && len(closes) >= 2 {
		s.PrevPrice = closes[len(closes)-2]
	}
	return s
}

func (e *Enricher) push(symbol string, price float64) []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := append(e.history[symbol], price)
	if len(h) > e.window {
		h = h[len(h)-e.window:]
	}
	e.history[symbol] = h
	out := make([]float64, len(h))
	copy(out, h)
	return out
}

func crossSignal(fast, slow float64) string {
	switch {
	case fast > slow:
		return domain.SignalBull
	case fast < slow:
		return domain.SignalBear
	default:
		return domain.SignalNeutral
	}
}

func ptr(v float64) *float64 { return &v }
