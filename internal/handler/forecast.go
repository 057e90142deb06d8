package handler

import (
	"errors"
	"net/http"
	"strconv"

	"oraculum/internal/domain"
	"oraculum/internal/engine"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// snapshotOrLatest binds a snapshot body, falling back to the latest
// observed snapshot when the body is empty.
func (h *Handler) snapshotOrLatest(c *gin.Context) (domain.MarketSnapshot, bool) {
	var snap domain.MarketSnapshot
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&snap); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot: " + err.Error()})
			return snap, false
		}
		return snap, true
	}
	last, ok := h.engine.LastSnapshot()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no snapshot provided and none observed yet"})
		return snap, false
	}
	return last, true
}

// Predict godoc
// @Summary      Compute a forecast without recording it
// @Description  Runs the ensemble on the posted snapshot, or on the latest observed one when the body is empty
// @Tags         forecast
// @Accept       json
// @Produce      json
// @Param        snapshot  body  domain.MarketSnapshot  false  "Market snapshot"
// @Success      200  {object}  domain.EnsembleResult
// @Failure      400  {object}  map[string]string
// @Router       /api/forecast/predict [post]
func (h *Handler) Predict(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.predict")
	defer span.End()

	snap, ok := h.snapshotOrLatest(c)
	if !ok {
		return
	}
	res, err := h.engine.GetPrediction(ctx, snap)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// IssuePrediction godoc
// @Summary      Issue a tracked prediction
// @Description  Records a high-priority prediction that is verified at every horizon
// @Tags         forecast
// @Accept       json
// @Produce      json
// @Param        snapshot  body  domain.MarketSnapshot  false  "Market snapshot"
// @Success      201  {object}  domain.Prediction
// @Failure      400  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /api/forecast/predictions [post]
func (h *Handler) IssuePrediction(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.issue-prediction")
	defer span.End()

	snap, ok := h.snapshotOrLatest(c)
	if !ok {
		return
	}
	p, err := h.engine.Issue(ctx, snap, domain.PriorityHigh)
	if errors.Is(err, engine.ErrNoPrice) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	span.SetAttributes(attribute.String("prediction_id", p.ID))
	c.JSON(http.StatusCreated, p)
}

// GetPrediction godoc
// @Summary      Get a pending or recently completed prediction
// @Tags         forecast
// @Produce      json
// @Param        id  path  string  true  "Prediction id"
// @Success      200  {object}  domain.Prediction
// @Failure      404  {object}  map[string]string
// @Router       /api/forecast/predictions/{id} [get]
func (h *Handler) GetPrediction(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-prediction")
	defer span.End()

	id := c.Param("id")
	span.SetAttributes(attribute.String("prediction_id", id))
	p, ok := h.engine.Lookup(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction not found: " + id})
		return
	}
	c.JSON(http.StatusOK, p)
}

func limitParam(c *gin.Context, def, max int) int {
	n, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// RecentPredictions godoc
// @Summary      Recently completed predictions held in memory
// @Tags         forecast
// @Produce      json
// @Param        limit  query  int  false  "Max rows (default 20)"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/forecast/recent [get]
func (h *Handler) RecentPredictions(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.recent-predictions")
	defer span.End()

	recent := h.engine.Recent(limitParam(c, 20, 500))
	c.JSON(http.StatusOK, gin.H{"count": len(recent), "predictions": recent})
}

// History godoc
// @Summary      Archived predictions
// @Description  Lists finalized predictions from the archive, newest first
// @Tags         forecast
// @Produce      json
// @Param        limit  query  int  false  "Max rows (default 50)"
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/forecast/history [get]
func (h *Handler) History(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "prediction archive unavailable"})
		return
	}
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.history")
	defer span.End()

	rows, err := h.history.ListRecent(ctx, limitParam(c, 50, 500))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rows), "predictions": rows})
}

// ObserveSnapshot godoc
// @Summary      Feed a market snapshot
// @Description  Stores the snapshot as the latest observation; its price drives verification
// @Tags         forecast
// @Accept       json
// @Produce      json
// @Param        snapshot  body  domain.MarketSnapshot  true  "Market snapshot"
// @Success      202  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Router       /api/forecast/snapshots [post]
func (h *Handler) ObserveSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.observe-snapshot")
	defer span.End()

	var snap domain.MarketSnapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot: " + err.Error()})
		return
	}
	if !snap.HasPrice() {
		c.JSON(http.StatusBadRequest, gin.H{"error": engine.ErrNoPrice.Error()})
		return
	}
	h.engine.Observe(ctx, snap)
	c.JSON(http.StatusAccepted, gin.H{"status": "observed"})
}

// ModelStats godoc
// @Summary      Model weights and accuracy
// @Tags         forecast
// @Produce      json
// @Success      200  {array}  engine.ModelStats
// @Router       /api/forecast/models [get]
func (h *Handler) ModelStats(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.model-stats")
	defer span.End()
	c.JSON(http.StatusOK, h.engine.GetModelStats())
}

// Stats godoc
// @Summary      Engine performance
// @Description  Overall, per-horizon and daily accuracy with store sizes
// @Tags         forecast
// @Produce      json
// @Success      200  {object}  engine.Stats
// @Router       /api/forecast/stats [get]
func (h *Handler) Stats(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.stats")
	defer span.End()
	c.JSON(http.StatusOK, h.engine.GetStats())
}

// ForceSave godoc
// @Summary      Persist engine state now
// @Tags         forecast
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/forecast/save [post]
func (h *Handler) ForceSave(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.force-save")
	defer span.End()

	if err := h.engine.ForceSave(ctx); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "saved"})
}
