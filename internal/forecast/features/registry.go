package features

import (
	"math"
	"sort"

	"oraculum/internal/domain"
)

// FeatureFn reads one feature from a snapshot. ok=false means the inputs
// were missing and the feature must be excluded, not treated as zero.
type FeatureFn func(s domain.MarketSnapshot) (value float64, ok bool)

// PriceROC is computable from price and previous price alone and is the
// fallback every model can rely on.
const PriceROC = "price_roc"

type Config struct {
	// PriceROCScale multiplies the percent change before tanh.
	PriceROCScale float64
	// Importance overrides per-feature importance weights.
	Importance map[string]float64
}

// Registry is populated once and is read-only afterwards.
type Registry struct {
	fns        map[string]FeatureFn
	importance map[string]float64
}

func NewRegistry(cfg Config) *Registry {
	if cfg.PriceROCScale <= 0 {
		cfg.PriceROCScale = 5
	}
	r := &Registry{
		fns:        make(map[string]FeatureFn),
		importance: make(map[string]float64),
	}
	registerRaw(r)
	registerDerived(r)
	r.register(PriceROC, 1.0, priceROC(cfg.PriceROCScale))
	for name, w := range cfg.Importance {
		if _, ok := r.fns[name]; ok && w > 0 {
			r.importance[name] = w
		}
	}
	return r
}

func (r *Registry) register(name string, importance float64, fn FeatureFn) {
	r.fns[name] = fn
	r.importance[name] = importance
}

// Value computes one feature. Panics, non-finite values and unknown names
// all come back as unavailable. Results are clamped to [-1,1].
func (r *Registry) Value(name string, s domain.MarketSnapshot) (v float64, ok bool) {
	fn, found := r.fns[name]
	if !found {
		return 0, false
	}
	defer func() {
		if rec := recover(); rec != nil {
			v, ok = 0, false
		}
	}()
	v, ok = fn(s)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return clamp(v), true
}

// Vector evaluates names and keeps only the available entries.
func (r *Registry) Vector(names []string, s domain.MarketSnapshot) domain.FeatureVector {
	out := make(domain.FeatureVector, len(names))
	for _, name := range names {
		if v, ok := r.Value(name, s); ok {
			out[name] = v
		}
	}
	return out
}

// MemoryVector is the vector stored in and matched against pattern memory.
func (r *Registry) MemoryVector(s domain.MarketSnapshot) domain.FeatureVector {
	return r.Vector(MemoryFeatures, s)
}

func (r *Registry) Importance(name string) float64 {
	if w, ok := r.importance[name]; ok {
		return w
	}
	return 1.0
}

func (r *Registry) Has(name string) bool {
	_, ok := r.fns[name]
	return ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.fns))
	for name := range r.fns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func priceROC(scale float64) FeatureFn {
	return func(s domain.MarketSnapshot) (float64, bool) {
		if s.Price <= 0 || s.PrevPrice <= 0 {
			return 0, false
		}
		pct := (s.Price - s.PrevPrice) / s.PrevPrice * 100
		return math.Tanh(pct * scale), true
	}
}
