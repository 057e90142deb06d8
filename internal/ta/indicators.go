// Package ta computes indicator series from a close-price history.
package ta

import "math"

// EMASeries is the exponential moving average of values, seeded with the
// first value.
func EMASeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	copy(out, values)
	if period <= 1 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	for i := 1; i < len(out); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSISeries is Wilder's RSI. Entries before the first full period are NaN;
// nil is returned when there is not enough history.
func RSISeries(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) <= period {
		return nil
	}
	out := make([]float64, len(closes))
	for i := 0; i < period; i++ {
		out[i] = math.NaN()
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		g, l := split(closes[i] - closes[i-1])
		gain += g
		loss += l
	}
	n := float64(period)
	gain /= n
	loss /= n
	out[period] = rsi(gain, loss)

	for i := period + 1; i < len(closes); i++ {
		g, l := split(closes[i] - closes[i-1])
		gain = (gain*(n-1) + g) / n
		loss = (loss*(n-1) + l) / n
		out[i] = rsi(gain, loss)
	}
	return out
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsi(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}

// MACDHistogram returns the MACD line minus its signal line.
func MACDHistogram(values []float64, fast, slow, signal int) []float64 {
	if len(values) == 0 {
		return nil
	}
	fastEMA := EMASeries(values, fast)
	slowEMA := EMASeries(values, slow)
	line := make([]float64, len(values))
	for i := range values {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EMASeries(line, signal)
	hist := make([]float64, len(values))
	for i := range values {
		hist[i] = line[i] - sig[i]
	}
	return hist
}
