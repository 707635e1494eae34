package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/models"
)

const defaultMetricsWindow = 24 * time.Hour

// metricsSummary returns the rolling aggregate, system-wide or scoped to one
// agent via agent_id. The window parameter takes a Go duration ("1h", "7d"
// is not valid Go syntax, use "168h").
func (s *Server) metricsSummary(c *gin.Context) {
	window := defaultMetricsWindow
	if raw := c.Query("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			abortWithError(c, models.NewKindError(models.ErrKindInvalidInput, "window must be a positive duration"))
			return
		}
		window = parsed
	}

	agentID := c.Query("agent_id")
	var summary models.MetricsSummary
	if agentID == "" {
		summary = s.deps.Metrics.SystemSummary(window)
	} else {
		summary = s.deps.Metrics.Summary(agentID, window)
	}

	c.JSON(http.StatusOK, metricsSummaryResponse{
		AgentID: agentID,
		Window:  window.String(),
		Summary: summary,
	})
}

// listInsights returns learning insights filtered by status (default pending).
func (s *Server) listInsights(c *gin.Context) {
	status := models.InsightStatus(c.DefaultQuery("status", string(models.InsightPending)))
	switch status {
	case models.InsightPending, models.InsightApplied, models.InsightDismissed:
	default:
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput, "unknown insight status"))
		return
	}

	limit := queryInt(c, "limit", 20)
	if limit < 1 || limit > maxSessionLimit {
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput, "limit out of range"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"insights": s.deps.Metrics.Insights(status, limit),
	})
}

// setInsightStatus marks an insight applied or dismissed. Applying it fires
// the store's insight hooks, which is how weight adjustments reach the pool.
func (s *Server) setInsightStatus(c *gin.Context) {
	var req insightStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, models.WrapKind(models.ErrKindInvalidInput, err))
		return
	}

	status := models.InsightStatus(req.Status)
	switch status {
	case models.InsightApplied, models.InsightDismissed:
	default:
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput,
			"status must be applied or dismissed"))
		return
	}

	insightID := c.Param("id")
	if !s.deps.Metrics.SetInsightStatus(insightID, status) {
		abortWithError(c, models.NewKindError(models.ErrKindNotFound, "insight not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"insight_id": insightID, "status": status})
}
