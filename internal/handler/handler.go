package handler

import (
	"context"
	"time"

	"oraculum/internal/domain"
	"oraculum/internal/engine"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

// Forecaster is the engine surface served over HTTP.
type Forecaster interface {
	GetPrediction(ctx context.Context, snap domain.MarketSnapshot) (domain.EnsembleResult, error)
	Issue(ctx context.Context, snap domain.MarketSnapshot, priority domain.Priority) (*domain.Prediction, error)
	Observe(ctx context.Context, snap domain.MarketSnapshot)
	LastSnapshot() (domain.MarketSnapshot, bool)
	Lookup(id string) (*domain.Prediction, bool)
	Recent(n int) []domain.Prediction
	GetModelStats() []engine.ModelStats
	GetStats() engine.Stats
	ForceSave(ctx context.Context) error
}

// HistoryReader lists archived predictions.
type HistoryReader interface {
	ListRecent(ctx context.Context, limit int) ([]domain.Prediction, error)
}

// StateStatus reports persistence health.
type StateStatus interface {
	Degraded() bool
	LastSaved() time.Time
}

type Handler struct {
	tracer   trace.Tracer
	engine   Forecaster
	history  HistoryReader
	state    StateStatus
	gatherer prometheus.Gatherer
}

func New(tracer trace.Tracer, engine Forecaster) *Handler {
	return &Handler{tracer: tracer, engine: engine}
}

func (h *Handler) SetHistoryReader(r HistoryReader) { h.history = r }

func (h *Handler) SetStateStatus(s StateStatus) { h.state = s }

// SetGatherer selects the registry served on /metrics.
func (h *Handler) SetGatherer(g prometheus.Gatherer) { h.gatherer = g }

func (h *Handler) RegisterRoutes(r *gin.Engine, apiKey string) {
	r.GET("/health", h.Health)

	gatherer := h.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api/forecast")
	api.POST("/predict", h.Predict)
	api.POST("/predictions", h.IssuePrediction)
	api.GET("/predictions/:id", h.GetPrediction)
	api.GET("/recent", h.RecentPredictions)
	api.GET("/history", h.History)
	api.POST("/snapshots", h.ObserveSnapshot)
	api.GET("/models", h.ModelStats)
	api.GET("/stats", h.Stats)
	api.POST("/save", APIKeyAuth(apiKey), h.ForceSave)
}
