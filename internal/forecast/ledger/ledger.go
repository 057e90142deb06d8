package ledger

import (
	"errors"
	"math"
	"sort"
	"time"

	"oraculum/internal/domain"

	"github.com/google/uuid"
)

var ErrNoPrice = errors.New("snapshot has no price")

type Config struct {
	Horizons     []int
	AutoHorizons []int
	// Threshold is the percent move a directional call needs.
	Threshold float64
	// NeutralBand is the percent move a NEUTRAL call must stay within.
	NeutralBand float64
	HistoryCap  int
	MaxPending  int
	// Grace is how far past due a horizon may be when rehydrating after a
	// restart and still be scheduled. Runtime checks score whenever they fire.
	Grace time.Duration
	// StaleAfter is how long past its completion horizon a pending
	// prediction is kept before being swept.
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Horizons:     []int{2, 5, 10, 15, 30, 60},
		AutoHorizons: []int{5, 15, 60},
		Threshold:    0.1,
		NeutralBand:  0.15,
		HistoryCap:   500,
		MaxPending:   200,
		Grace:        2 * time.Minute,
		StaleAfter:   10 * time.Minute,
	}
}

// Issue describes a forecast to record.
type Issue struct {
	Symbol   string
	Price    float64
	Priority domain.Priority
	Result   domain.EnsembleResult
	Features domain.FeatureVector
	At       time.Time
}

// VerifyResult reports what a fired check did. Applied is false for every
// idempotent no-op.
type VerifyResult struct {
	Applied      bool
	Verification domain.Verification
	Confidence   float64
	// Completed is set when this check finalized the prediction.
	Completed *domain.Prediction
}

// Ledger owns pending predictions until they complete, then keeps a bounded
// completed history.
type Ledger struct {
	cfg       Config
	pending   map[string]*domain.Prediction
	order     []string
	completed []*domain.Prediction
	newID     func() string
}

func New(cfg Config) *Ledger {
	def := DefaultConfig()
	cfg.Horizons = normalizeHorizons(cfg.Horizons)
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = def.Horizons
	}
	cfg.AutoHorizons = normalizeHorizons(cfg.AutoHorizons)
	if len(cfg.AutoHorizons) == 0 {
		cfg.AutoHorizons = def.AutoHorizons
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.NeutralBand <= 0 {
		cfg.NeutralBand = def.NeutralBand
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = def.HistoryCap
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &Ledger{cfg: cfg, pending: make(map[string]*domain.Prediction), newID: uuid.NewString}
}

func normalizeHorizons(in []int) []int {
	seen := make(map[int]struct{}, len(in))
	out := make([]int, 0, len(in))
	for _, h := range in {
		if h <= 0 {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Ints(out)
	return out
}

func (l *Ledger) Config() Config { return l.cfg }

// HorizonsFor returns the horizon set checked for a priority.
func (l *Ledger) HorizonsFor(p domain.Priority) []int {
	if p == domain.PriorityLow {
		return append([]int(nil), l.cfg.AutoHorizons...)
	}
	return append([]int(nil), l.cfg.Horizons...)
}

// Issue records a pending prediction and returns the checks to schedule
// and the ids pruned to keep the pending set bounded.
func (l *Ledger) Issue(in Issue) (*domain.Prediction, []Task, []string, error) {
	if in.Price <= 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return nil, nil, nil, ErrNoPrice
	}
	if in.Priority == "" {
		in.Priority = domain.PriorityHigh
	}
	horizons := l.HorizonsFor(in.Priority)
	p := &domain.Prediction{
		ID:                l.newID(),
		Symbol:            in.Symbol,
		CreatedAt:         in.At,
		IssuePrice:        in.Price,
		Priority:          in.Priority,
		Horizons:          horizons,
		CompletionHorizon: horizons[len(horizons)-1],
		Result:            in.Result.Clone(),
		Features:          in.Features.Clone(),
		Verifications:     []domain.Verification{},
		State:             domain.StatePending,
	}
	l.pending[p.ID] = p
	l.order = append(l.order, p.ID)
	pruned := l.prunePending()

	tasks := make([]Task, 0, len(horizons))
	for _, h := range horizons {
		tasks = append(tasks, Task{ID: p.ID, Horizon: h, Due: in.At.Add(time.Duration(h) * time.Minute)})
	}
	return p.Clone(), tasks, pruned, nil
}

func (l *Ledger) prunePending() []string {
	var pruned []string
	for len(l.pending) > l.cfg.MaxPending && len(l.order) > 0 {
		id := l.order[0]
		l.order = l.order[1:]
		if _, ok := l.pending[id]; ok {
			delete(l.pending, id)
			pruned = append(pruned, id)
		}
	}
	return pruned
}

func (l *Ledger) dropOrder(id string) {
	for i, o := range l.order {
		if o == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			return
		}
	}
}

// Succeeded applies the direction rule to a percent price change.
func Succeeded(dir domain.Direction, change, threshold, neutralBand float64) bool {
	switch dir {
	case domain.DirectionBull:
		return change > threshold
	case domain.DirectionBear:
		return change < -threshold
	default:
		return math.Abs(change) < neutralBand
	}
}

// Verify scores a prediction at one horizon. Unknown or completed ids,
// horizons outside the prediction's set, already-recorded horizons and
// unusable prices are no-ops. A late check is still scored.
func (l *Ledger) Verify(id string, horizon int, price float64, now time.Time) VerifyResult {
	p, ok := l.pending[id]
	if !ok || !p.TracksHorizon(horizon) || p.HasVerification(horizon) {
		return VerifyResult{}
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return VerifyResult{}
	}

	change := (price - p.IssuePrice) / p.IssuePrice * 100
	v := domain.Verification{
		Horizon:     horizon,
		PriceChange: change,
		Success:     Succeeded(p.Result.Direction, change, l.cfg.Threshold, l.cfg.NeutralBand),
		At:          now,
	}
	p.Verifications = append(p.Verifications, v)
	res := VerifyResult{Applied: true, Verification: v, Confidence: p.Result.ConfidenceRaw}

	if horizon == p.CompletionHorizon {
		l.complete(p, now)
		res.Completed = p.Clone()
	}
	return res
}

// complete derives the outcome from a horizon-weighted vote; longer
// horizons weigh more. A tie counts as success.
func (l *Ledger) complete(p *domain.Prediction, now time.Time) {
	var wins, weighted, weights, changeSum float64
	for _, v := range p.Verifications {
		w := float64(v.Horizon)
		weights += w
		changeSum += v.PriceChange
		if v.Success {
			wins++
			weighted += w
		}
	}
	n := float64(len(p.Verifications))
	out := &domain.Outcome{CompletedAt: now}
	if n > 0 {
		out.SuccessRate = wins / n
		out.AvgPriceChange = changeSum / n
	}
	if weights > 0 {
		out.WeightedSuccessRate = weighted / weights
	}
	out.Success = n > 0 && out.WeightedSuccessRate >= 0.5
	p.Outcome = out
	p.State = domain.StateCompleted

	delete(l.pending, p.ID)
	l.dropOrder(p.ID)
	l.completed = append(l.completed, p)
	if over := len(l.completed) - l.cfg.HistoryCap; over > 0 {
		for i := 0; i < over; i++ {
			l.completed[i] = nil
		}
		l.completed = l.completed[over:]
	}
}

// Rehydrate re-attaches predictions recovered after a restart. Elapsed
// horizons within the grace window are due now, future ones keep their
// remaining delay, older ones are never verified.
func (l *Ledger) Rehydrate(saved []domain.Prediction, now time.Time) []Task {
	sort.SliceStable(saved, func(i, j int) bool { return saved[i].CreatedAt.Before(saved[j].CreatedAt) })
	var tasks []Task
	for i := range saved {
		p := saved[i].Clone()
		if p.ID == "" || p.State == domain.StateCompleted || p.IssuePrice <= 0 || len(p.Horizons) == 0 {
			continue
		}
		if _, exists := l.pending[p.ID]; exists {
			continue
		}
		p.Horizons = normalizeHorizons(p.Horizons)
		if !p.TracksHorizon(p.CompletionHorizon) {
			p.CompletionHorizon = p.Horizons[len(p.Horizons)-1]
		}
		if p.Verifications == nil {
			p.Verifications = []domain.Verification{}
		}
		p.State = domain.StatePending
		l.pending[p.ID] = p
		l.order = append(l.order, p.ID)

		for _, h := range p.Horizons {
			if p.HasVerification(h) {
				continue
			}
			due := p.CreatedAt.Add(time.Duration(h) * time.Minute)
			switch {
			case due.After(now):
				tasks = append(tasks, Task{ID: p.ID, Horizon: h, Due: due})
			case now.Sub(due) <= l.cfg.Grace:
				tasks = append(tasks, Task{ID: p.ID, Horizon: h, Due: now})
			}
		}
	}
	l.prunePending()
	return tasks
}

// SweepStale drops pending predictions whose completion check is past due
// by more than StaleAfter, such as those left partial by a restart.
func (l *Ledger) SweepStale(now time.Time) []string {
	var swept []string
	for id, p := range l.pending {
		due := p.CreatedAt.Add(time.Duration(p.CompletionHorizon) * time.Minute)
		if now.Sub(due) > l.cfg.StaleAfter {
			delete(l.pending, id)
			l.dropOrder(id)
			swept = append(swept, id)
		}
	}
	sort.Strings(swept)
	return swept
}

// Lookup returns a copy of a pending or completed prediction.
func (l *Ledger) Lookup(id string) (*domain.Prediction, bool) {
	if p, ok := l.pending[id]; ok {
		return p.Clone(), true
	}
	for i := len(l.completed) - 1; i >= 0; i-- {
		if l.completed[i].ID == id {
			return l.completed[i].Clone(), true
		}
	}
	return nil, false
}

// Symbol reports the market of a pending prediction.
func (l *Ledger) Symbol(id string) (string, bool) {
	p, ok := l.pending[id]
	if !ok {
		return "", false
	}
	return p.Symbol, true
}

func (l *Ledger) PendingCount() int   { return len(l.pending) }
func (l *Ledger) CompletedCount() int { return len(l.completed) }

// Pending returns copies of pending predictions oldest first.
func (l *Ledger) Pending() []domain.Prediction {
	out := make([]domain.Prediction, 0, len(l.pending))
	for _, id := range l.order {
		if p, ok := l.pending[id]; ok {
			out = append(out, *p.Clone())
		}
	}
	return out
}

// Recent returns copies of the last n completed predictions, oldest first.
func (l *Ledger) Recent(n int) []domain.Prediction {
	if n <= 0 || n > len(l.completed) {
		n = len(l.completed)
	}
	src := l.completed[len(l.completed)-n:]
	out := make([]domain.Prediction, len(src))
	for i, p := range src {
		out[i] = *p.Clone()
	}
	return out
}
