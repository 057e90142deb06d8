package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/forecast/optimizer"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

type stubRunner struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubRunner) RunDue(context.Context, time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return 1, s.err
}

func (s *stubRunner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestVerifierJobPolls(t *testing.T) {
	runner := &stubRunner{err: nil}
	j := NewVerifierJob(testTracer, nil, runner, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Start(ctx)

	eventually(t, func() bool { return runner.count() >= 3 })
}

func TestVerifierJobSurvivesErrors(t *testing.T) {
	runner := &stubRunner{err: errors.New("redis down")}
	j := NewVerifierJob(testTracer, nil, runner, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Start(ctx)

	eventually(t, func() bool { return runner.count() >= 2 })
}

func TestVerifierJobDefaults(t *testing.T) {
	j := NewVerifierJob(testTracer, nil, nil, 0)
	if j.pollInterval != time.Second {
		t.Fatalf("expected 1s default, got %v", j.pollInterval)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		j.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled job did not stop")
	}
}

type stubOptimizer struct {
	mu   sync.Mutex
	runs int
}

func (s *stubOptimizer) Optimize(context.Context) optimizer.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	return optimizer.Report{LearningRate: 0.05}
}

func (s *stubOptimizer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

func TestOptimizerJobWaitsThenRepeats(t *testing.T) {
	svc := &stubOptimizer{}
	j := NewOptimizerJob(testTracer, nil, svc, 20*time.Millisecond, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go j.Start(ctx)

	time.Sleep(5 * time.Millisecond)
	if svc.count() != 0 {
		t.Fatal("optimizer ran before its initial delay")
	}
	eventually(t, func() bool { return svc.count() >= 2 })
}

func TestOptimizerJobDefaults(t *testing.T) {
	j := NewOptimizerJob(testTracer, nil, nil, 0, 0)
	if j.initialDelay != 5*time.Minute || j.interval != time.Hour {
		t.Fatalf("unexpected defaults: %v %v", j.initialDelay, j.interval)
	}
}

type stubFeed struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *stubFeed) Fetch(_ context.Context, symbol string) (domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return domain.MarketSnapshot{}, f.err
	}
	return domain.MarketSnapshot{Symbol: symbol, Price: 100 + float64(f.calls)}, nil
}

type stubEngine struct {
	mu       sync.Mutex
	last     domain.MarketSnapshot
	has      bool
	observed int
	issued   []domain.Priority
}

func (e *stubEngine) Observe(_ context.Context, snap domain.MarketSnapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.last, e.has = snap, true
	e.observed++
}

func (e *stubEngine) LastSnapshot() (domain.MarketSnapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.has
}

func (e *stubEngine) Issue(_ context.Context, snap domain.MarketSnapshot, priority domain.Priority) (*domain.Prediction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.issued = append(e.issued, priority)
	return &domain.Prediction{ID: "p", IssuePrice: snap.Price}, nil
}

func (e *stubEngine) counts() (int, []domain.Priority) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observed, append([]domain.Priority(nil), e.issued...)
}

func TestSnapshotPollerObservesAndAutoIssues(t *testing.T) {
	feed := &stubFeed{}
	eng := &stubEngine{}
	p := NewSnapshotPoller(testTracer, nil, feed, eng, "BTCUSDT", 1, 1)
	p.pollInterval = 5 * time.Millisecond
	p.issueInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Start(ctx)

	eventually(t, func() bool {
		observed, issued := eng.counts()
		return observed >= 2 && len(issued) >= 1
	})
	_, issued := eng.counts()
	for _, pr := range issued {
		if pr != domain.PriorityLow {
			t.Fatalf("auto issue should be low priority, got %s", pr)
		}
	}
}

func TestSnapshotPollerAutoIssueNeedsSnapshot(t *testing.T) {
	eng := &stubEngine{}
	p := NewSnapshotPoller(testTracer, nil, &stubFeed{}, eng, "BTCUSDT", 1, 0)
	if err := p.autoIssue(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, issued := eng.counts(); len(issued) != 0 {
		t.Fatal("issued without a snapshot")
	}
}

func TestSnapshotPollerFeedError(t *testing.T) {
	eng := &stubEngine{}
	p := NewSnapshotPoller(testTracer, nil, &stubFeed{err: errors.New("timeout")}, eng, "BTCUSDT", 1, 0)
	if err := p.poll(context.Background()); err == nil {
		t.Fatal("expected feed error")
	}
	if observed, _ := eng.counts(); observed != 0 {
		t.Fatal("observed after failed fetch")
	}
}

func TestSnapshotPollerAppliesEnricher(t *testing.T) {
	eng := &stubEngine{}
	p := NewSnapshotPoller(testTracer, nil, &stubFeed{}, eng, "BTCUSDT", 1, 0)
	p.SetEnricher(func(s domain.MarketSnapshot) domain.MarketSnapshot {
		s.PrevPrice = s.Price - 1
		return s
	})
	if err := p.poll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap, _ := eng.LastSnapshot()
	if snap.PrevPrice != 100 {
		t.Fatalf("expected enriched prev price 100, got %v", snap.PrevPrice)
	}
}
