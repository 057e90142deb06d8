package memory

import (
	"math"
	"sort"
	"time"

	"oraculum/internal/domain"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

type Config struct {
	Capacity        int
	QueryThreshold  float64
	MergeThreshold  float64
	ContextPenalty  float64
	SweepMinOccur   int
	SweepStaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Capacity:        2000,
		QueryThreshold:  0.72,
		MergeThreshold:  0.85,
		ContextPenalty:  0.05,
		SweepMinOccur:   3,
		SweepStaleAfter: 24 * time.Hour,
	}
}

// Context is the soft tie-break information compared on query.
type Context struct {
	Session          domain.Session
	VolatilityBucket domain.VolatilityBucket
}

// Observation is a finalized prediction worth remembering.
type Observation struct {
	Regime    domain.Regime
	Direction domain.Direction
	Features  domain.FeatureVector
	Context   Context
	Breakout  domain.BreakoutClass
	Success   bool
	Return    float64
	At        time.Time
}

// Memory is a bounded store of past conditions and their outcomes.
type Memory struct {
	cfg      Config
	patterns []*domain.Pattern
	newID    func() string
}

func New(cfg Config) *Memory {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.QueryThreshold <= 0 || cfg.QueryThreshold >= 1 {
		cfg.QueryThreshold = def.QueryThreshold
	}
	if cfg.MergeThreshold <= 0 || cfg.MergeThreshold >= 1 {
		cfg.MergeThreshold = def.MergeThreshold
	}
	if cfg.ContextPenalty < 0 {
		cfg.ContextPenalty = def.ContextPenalty
	}
	if cfg.SweepMinOccur <= 0 {
		cfg.SweepMinOccur = def.SweepMinOccur
	}
	if cfg.SweepStaleAfter <= 0 {
		cfg.SweepStaleAfter = def.SweepStaleAfter
	}
	return &Memory{cfg: cfg, newID: uuid.NewString}
}

func (m *Memory) Len() int { return len(m.patterns) }

// Similarity is 1 - mean|a[k]-b[k]| over keys present in both vectors, 0
// when they share nothing.
func Similarity(a, b domain.FeatureVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	scores := make([]float64, 0, len(a))
	for k, x := range a {
		y, ok := b[k]
		if !ok {
			continue
		}
		scores = append(scores, 1-math.Abs(x-y))
	}
	if len(scores) == 0 {
		return 0
	}
	return stat.Mean(scores, nil)
}

func (m *Memory) contextPenalty(p *domain.Pattern, ctx Context) float64 {
	penalty := 0.0
	if ctx.Session != "" && p.Session != "" && ctx.Session != p.Session {
		penalty += m.cfg.ContextPenalty
	}
	if ctx.VolatilityBucket != "" && p.VolatilityBucket != "" && ctx.VolatilityBucket != p.VolatilityBucket {
		penalty += m.cfg.ContextPenalty
	}
	return penalty
}

// Query returns the closest pattern of the same regime above the query
// threshold.
func (m *Memory) Query(regime domain.Regime, vec domain.FeatureVector, ctx Context) (domain.PatternMatch, bool) {
	var best *domain.Pattern
	bestScore := 0.0
	for _, p := range m.patterns {
		if p.Regime != regime {
			continue
		}
		score := Similarity(vec, p.Features) - m.contextPenalty(p, ctx)
		if score > m.cfg.QueryThreshold && score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return domain.PatternMatch{}, false
	}
	return domain.PatternMatch{
		PatternID:   best.ID,
		Similarity:  bestScore,
		Confidence:  bestScore * best.SuccessRate,
		Direction:   best.Direction,
		SuccessRate: best.SuccessRate,
		Occurrences: best.Occurrences,
		AvgReturn:   best.AvgReturn,
	}, true
}

// Upsert merges the observation into the most similar pattern of the same
// regime above the merge threshold, or inserts a new one. It returns the
// pattern id and the ids evicted to stay within capacity.
func (m *Memory) Upsert(obs Observation) (id string, evicted []string) {
	var target *domain.Pattern
	bestSim := 0.0
	for _, p := range m.patterns {
		if p.Regime != obs.Regime {
			continue
		}
		sim := Similarity(obs.Features, p.Features)
		if sim > m.cfg.MergeThreshold && sim > bestSim {
			target, bestSim = p, sim
		}
	}

	if target != nil {
		record(target, obs)
		return target.ID, nil
	}

	p := &domain.Pattern{
		ID:               m.newID(),
		Regime:           obs.Regime,
		Direction:        obs.Direction,
		Features:         obs.Features.Clone(),
		Session:          obs.Context.Session,
		VolatilityBucket: obs.Context.VolatilityBucket,
		Breakout:         obs.Breakout,
		CreatedAt:        obs.At,
	}
	record(p, obs)
	m.patterns = append(m.patterns, p)
	return p.ID, m.evict(p.ID)
}

func record(p *domain.Pattern, obs Observation) {
	prev := float64(p.Occurrences)
	p.Occurrences++
	if obs.Success {
		p.SuccessCount++
		p.LastOutcome = domain.OutcomeWin
	} else {
		p.FailCount++
		p.LastOutcome = domain.OutcomeLoss
	}
	p.SuccessRate = float64(p.SuccessCount) / float64(p.Occurrences)
	p.AvgReturn = (p.AvgReturn*prev + obs.Return) / float64(p.Occurrences)
	p.UpdatedAt = obs.At
}

// Score ranks patterns for eviction; lower is evicted first.
func Score(p *domain.Pattern) float64 {
	return p.SuccessRate * math.Log(float64(p.Occurrences)+1)
}

func (m *Memory) evict(keep string) []string {
	over := len(m.patterns) - m.cfg.Capacity
	if over <= 0 {
		return nil
	}
	candidates := make([]*domain.Pattern, 0, len(m.patterns))
	for _, p := range m.patterns {
		if p.ID != keep {
			candidates = append(candidates, p)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := Score(candidates[i]), Score(candidates[j])
		if si != sj {
			return si < sj
		}
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})
	drop := make(map[string]struct{}, over)
	evicted := make([]string, 0, over)
	for _, p := range candidates[:over] {
		drop[p.ID] = struct{}{}
		evicted = append(evicted, p.ID)
	}
	m.remove(func(p *domain.Pattern) bool {
		_, ok := drop[p.ID]
		return ok
	})
	return evicted
}

// Sweep drops patterns with few occurrences that have not been touched for
// the stale window.
func (m *Memory) Sweep(now time.Time) int {
	before := len(m.patterns)
	m.remove(func(p *domain.Pattern) bool {
		return p.Occurrences < m.cfg.SweepMinOccur && now.Sub(p.UpdatedAt) > m.cfg.SweepStaleAfter
	})
	return before - len(m.patterns)
}

func (m *Memory) remove(drop func(*domain.Pattern) bool) {
	kept := m.patterns[:0]
	for _, p := range m.patterns {
		if !drop(p) {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(m.patterns); i++ {
		m.patterns[i] = nil
	}
	m.patterns = kept
}

// Patterns returns deep copies of the stored patterns.
func (m *Memory) Patterns() []domain.Pattern {
	out := make([]domain.Pattern, len(m.patterns))
	for i, p := range m.patterns {
		cp := *p
		cp.Features = p.Features.Clone()
		out[i] = cp
	}
	return out
}

// Restore replaces the store with saved patterns, repairing count
// invariants and trimming to capacity.
func (m *Memory) Restore(saved []domain.Pattern) {
	m.patterns = m.patterns[:0]
	for _, p := range saved {
		if p.ID == "" || p.SuccessCount < 0 || p.FailCount < 0 {
			continue
		}
		cp := p
		cp.Features = p.Features.Clone()
		cp.Occurrences = cp.SuccessCount + cp.FailCount
		if cp.Occurrences == 0 {
			continue
		}
		cp.SuccessRate = float64(cp.SuccessCount) / float64(cp.Occurrences)
		m.patterns = append(m.patterns, &cp)
	}
	m.evict("")
}
