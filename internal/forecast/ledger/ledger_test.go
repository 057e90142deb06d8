package ledger

import (
	"fmt"
	"testing"
	"time"

	"oraculum/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newLedger(cfg Config) *Ledger {
	l := New(cfg)
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("p%03d", n)
	}
	return l
}

func issue(t *testing.T, l *Ledger, dir domain.Direction, price float64, prio domain.Priority, at time.Time) (*domain.Prediction, []Task) {
	t.Helper()
	p, tasks, _, err := l.Issue(Issue{
		Price:    price,
		Priority: prio,
		Result:   domain.EnsembleResult{Direction: dir, ConfidenceRaw: 0.7},
		At:       at,
	})
	require.NoError(t, err)
	return p, tasks
}

func TestBullAboveThresholdSucceeds(t *testing.T) {
	l := newLedger(DefaultConfig())
	p, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityHigh, t0)

	res := l.Verify(p.ID, 5, 100.2, t0.Add(5*time.Minute))
	require.True(t, res.Applied)
	assert.InDelta(t, 0.2, res.Verification.PriceChange, 1e-9)
	assert.True(t, res.Verification.Success)
	assert.Equal(t, 0.7, res.Confidence)
	assert.Nil(t, res.Completed)
}

func TestSuccessRules(t *testing.T) {
	assert.True(t, Succeeded(domain.DirectionBull, 0.11, 0.1, 0.15))
	assert.False(t, Succeeded(domain.DirectionBull, 0.1, 0.1, 0.15))
	assert.True(t, Succeeded(domain.DirectionBear, -0.3, 0.1, 0.15))
	assert.False(t, Succeeded(domain.DirectionBear, 0.3, 0.1, 0.15))
	assert.True(t, Succeeded(domain.DirectionNeutral, -0.14, 0.1, 0.15))
	assert.False(t, Succeeded(domain.DirectionNeutral, 0.15, 0.1, 0.15))
}

func TestVerifyIsIdempotent(t *testing.T) {
	l := newLedger(DefaultConfig())
	p, _ := issue(t, l, domain.DirectionBear, 100, domain.PriorityHigh, t0)

	first := l.Verify(p.ID, 10, 99, t0.Add(10*time.Minute))
	second := l.Verify(p.ID, 10, 101, t0.Add(11*time.Minute))
	assert.True(t, first.Applied)
	assert.False(t, second.Applied)

	got, ok := l.Lookup(p.ID)
	require.True(t, ok)
	require.Len(t, got.Verifications, 1)
	assert.True(t, got.Verifications[0].Success)
}

func TestVerifyNoOps(t *testing.T) {
	l := newLedger(DefaultConfig())
	p, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0)

	assert.False(t, l.Verify("missing", 5, 101, t0).Applied)
	assert.False(t, l.Verify(p.ID, 2, 101, t0).Applied, "low priority does not track 2m")
	assert.False(t, l.Verify(p.ID, 5, 0, t0).Applied, "zero price")
	assert.True(t, l.Verify(p.ID, 5, 101, t0.Add(5*time.Minute)).Applied)
}

func TestVerifyScoresLateCheck(t *testing.T) {
	l := newLedger(DefaultConfig())
	p, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0)

	res := l.Verify(p.ID, 5, 100.3, t0.Add(20*time.Minute))
	require.True(t, res.Applied, "runtime checks are scored past the grace window")
	assert.True(t, res.Verification.Success)

	sym, ok := l.Symbol(p.ID)
	require.True(t, ok)
	assert.Equal(t, p.Symbol, sym)
	_, ok = l.Symbol("missing")
	assert.False(t, ok)
}

func TestIssueWithoutPriceFails(t *testing.T) {
	l := newLedger(DefaultConfig())
	_, _, _, err := l.Issue(Issue{Price: 0, At: t0})
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.Equal(t, 0, l.PendingCount())
}

func TestIssueSchedulesEveryHorizon(t *testing.T) {
	l := newLedger(DefaultConfig())
	p, tasks := issue(t, l, domain.DirectionBull, 100, domain.PriorityHigh, t0)
	assert.Equal(t, []int{2, 5, 10, 15, 30, 60}, p.Horizons)
	assert.Equal(t, 60, p.CompletionHorizon)
	require.Len(t, tasks, 6)
	assert.Equal(t, t0.Add(2*time.Minute), tasks[0].Due)

	low, lowTasks := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0)
	assert.Equal(t, []int{5, 15, 60}, low.Horizons)
	assert.Len(t, lowTasks, 3)
}

func TestCompletionUsesHorizonWeightedMajority(t *testing.T) {
	l := newLedger(DefaultConfig())
	p, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0)

	// 5m and 15m fail, 60m succeeds: 60/80 of the weight
	l.Verify(p.ID, 5, 99.9, t0.Add(5*time.Minute))
	l.Verify(p.ID, 15, 100.05, t0.Add(15*time.Minute))
	res := l.Verify(p.ID, 60, 100.5, t0.Add(time.Hour))

	require.NotNil(t, res.Completed)
	out := res.Completed.Outcome
	require.NotNil(t, out)
	assert.True(t, out.Success)
	assert.InDelta(t, 1.0/3.0, out.SuccessRate, 1e-9)
	assert.InDelta(t, 0.75, out.WeightedSuccessRate, 1e-9)
	assert.InDelta(t, (-0.1+0.05+0.5)/3, out.AvgPriceChange, 1e-9)
	assert.Equal(t, domain.StateCompleted, res.Completed.State)

	assert.Equal(t, 0, l.PendingCount())
	assert.Equal(t, 1, l.CompletedCount())
	assert.False(t, l.Verify(p.ID, 60, 101, t0.Add(time.Hour)).Applied, "completed predictions are terminal")
}

func TestPendingAndHistoryAreBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPending = 3
	cfg.HistoryCap = 2
	l := newLedger(cfg)

	var ids []string
	for i := 0; i < 5; i++ {
		p, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0.Add(time.Duration(i)*time.Second))
		ids = append(ids, p.ID)
	}
	assert.Equal(t, 3, l.PendingCount())
	_, ok := l.Lookup(ids[0])
	assert.False(t, ok, "oldest pending pruned")
	assert.False(t, l.Verify(ids[1], 5, 101, t0).Applied, "checks for pruned predictions are inert")

	for _, id := range ids[2:] {
		l.Verify(id, 60, 101, t0.Add(time.Hour))
	}
	assert.Equal(t, 2, l.CompletedCount())
	recent := l.Recent(10)
	require.Len(t, recent, 2)
	assert.Equal(t, ids[4], recent[1].ID)
}

func TestRehydrate(t *testing.T) {
	l := newLedger(DefaultConfig())
	now := t0.Add(16 * time.Minute)
	saved := []domain.Prediction{{
		ID:                "restored",
		CreatedAt:         t0,
		IssuePrice:        100,
		Horizons:          []int{2, 5, 10, 15, 30, 60},
		CompletionHorizon: 60,
		Result:            domain.EnsembleResult{Direction: domain.DirectionBull},
		Verifications:     []domain.Verification{{Horizon: 2, Success: true}},
		State:             domain.StatePending,
	}, {
		ID: "done", CreatedAt: t0, IssuePrice: 100, Horizons: []int{5}, State: domain.StateCompleted,
	}}

	tasks := l.Rehydrate(saved, now)
	byHorizon := map[int]time.Time{}
	for _, task := range tasks {
		assert.Equal(t, "restored", task.ID)
		byHorizon[task.Horizon] = task.Due
	}
	assert.NotContains(t, byHorizon, 2, "already verified")
	assert.NotContains(t, byHorizon, 5, "too far in the past")
	assert.NotContains(t, byHorizon, 10, "too far in the past")
	assert.Equal(t, now, byHorizon[15], "elapsed within grace is due now")
	assert.Equal(t, t0.Add(30*time.Minute), byHorizon[30])
	assert.Equal(t, t0.Add(time.Hour), byHorizon[60])
	assert.Equal(t, 1, l.PendingCount())
}

func TestSweepStaleDropsUnfinishable(t *testing.T) {
	l := newLedger(DefaultConfig())
	old, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0)
	fresh, _ := issue(t, l, domain.DirectionBull, 100, domain.PriorityLow, t0.Add(time.Hour))

	swept := l.SweepStale(t0.Add(80 * time.Minute))
	assert.Equal(t, []string{old.ID}, swept)
	_, ok := l.Lookup(fresh.ID)
	assert.True(t, ok)
}
