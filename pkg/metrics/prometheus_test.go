package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Verification(5, true)
	r.Verification(5, true)
	r.Verification(5, false)
	r.Degraded(true)

	if got := testutil.ToFloat64(r.verifications.WithLabelValues("5", "success")); got != 2 {
		t.Fatalf("expected 2 successes, got %v", got)
	}
	if got := testutil.ToFloat64(r.degraded); got != 1 {
		t.Fatalf("expected degraded gauge 1, got %v", got)
	}
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.PredictionIssued("BULL", "high")
	r.Save(false)
	r.Sizes(1, 2)
}
