package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes engine metrics to Prometheus. A nil *Recorder is valid
// and records nothing.
type Recorder struct {
	predictionsIssued *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	finalized         *prometheus.CounterVec
	horizonWinRate    *prometheus.GaugeVec
	horizonBrier      *prometheus.GaugeVec
	temperature       *prometheus.GaugeVec
	patterns          prometheus.Gauge
	pending           prometheus.Gauge
	learningRate      prometheus.Gauge
	saves             *prometheus.CounterVec
	degraded          prometheus.Gauge
	sinkPublishes     *prometheus.CounterVec
	latency           *prometheus.HistogramVec
}

// New registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		predictionsIssued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_predictions_issued_total",
			Help: "Predictions issued by direction and priority",
		}, []string{"direction", "priority"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_verifications_total",
			Help: "Horizon verifications by horizon and result",
		}, []string{"horizon", "result"}),
		finalized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_predictions_finalized_total",
			Help: "Finalized predictions by result",
		}, []string{"result"}),
		horizonWinRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oraculum_horizon_win_rate",
			Help: "Rolling win rate per horizon",
		}, []string{"horizon"}),
		horizonBrier: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oraculum_horizon_brier",
			Help: "Mean Brier score per horizon",
		}, []string{"horizon"}),
		temperature: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "oraculum_calibration_temperature",
			Help: "Fitted calibration temperature per horizon",
		}, []string{"horizon"}),
		patterns: f.NewGauge(prometheus.GaugeOpts{
			Name: "oraculum_memory_patterns",
			Help: "Patterns held in memory",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Name: "oraculum_pending_predictions",
			Help: "Predictions awaiting verification",
		}),
		learningRate: f.NewGauge(prometheus.GaugeOpts{
			Name: "oraculum_learning_rate",
			Help: "Global model learning rate",
		}),
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_state_saves_total",
			Help: "State save attempts by result",
		}, []string{"result"}),
		degraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "oraculum_state_degraded",
			Help: "1 while state is only held in the local cache",
		}),
		sinkPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "oraculum_sink_publishes_total",
			Help: "Outcome sink deliveries by sink and result",
		}, []string{"sink", "result"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "oraculum_operation_duration_seconds",
			Help:    "Duration of engine operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func horizonLabel(h int) string { return strconv.Itoa(h) }

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (r *Recorder) PredictionIssued(direction, priority string) {
	if r == nil {
		return
	}
	r.predictionsIssued.WithLabelValues(direction, priority).Inc()
}

func (r *Recorder) Verification(horizon int, success bool) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(horizonLabel(horizon), result(success)).Inc()
}

func (r *Recorder) Finalized(success bool) {
	if r == nil {
		return
	}
	r.finalized.WithLabelValues(result(success)).Inc()
}

func (r *Recorder) HorizonScore(horizon int, winRate, brier float64) {
	if r == nil {
		return
	}
	r.horizonWinRate.WithLabelValues(horizonLabel(horizon)).Set(winRate)
	r.horizonBrier.WithLabelValues(horizonLabel(horizon)).Set(brier)
}

func (r *Recorder) Temperature(horizon int, t float64) {
	if r == nil {
		return
	}
	r.temperature.WithLabelValues(horizonLabel(horizon)).Set(t)
}

func (r *Recorder) Sizes(patterns, pending int) {
	if r == nil {
		return
	}
	r.patterns.Set(float64(patterns))
	r.pending.Set(float64(pending))
}

func (r *Recorder) LearningRate(lr float64) {
	if r == nil {
		return
	}
	r.learningRate.Set(lr)
}

func (r *Recorder) Save(ok bool) {
	if r == nil {
		return
	}
	r.saves.WithLabelValues(result(ok)).Inc()
}

func (r *Recorder) Degraded(on bool) {
	if r == nil {
		return
	}
	if on {
		r.degraded.Set(1)
		return
	}
	r.degraded.Set(0)
}

func (r *Recorder) SinkPublish(sink string, ok bool) {
	if r == nil {
		return
	}
	r.sinkPublishes.WithLabelValues(sink, result(ok)).Inc()
}

func (r *Recorder) Latency(op string, seconds float64) {
	if r == nil {
		return
	}
	r.latency.WithLabelValues(op).Observe(seconds)
}
