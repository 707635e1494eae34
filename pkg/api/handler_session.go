package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/models"
)

const (
	defaultSessionLimit = 20
	maxSessionLimit     = 100
)

// listSessions returns recent session summaries, newest first.
func (s *Server) listSessions(c *gin.Context) {
	limit := queryInt(c, "limit", defaultSessionLimit)
	offset := queryInt(c, "offset", 0)
	if limit < 1 || limit > maxSessionLimit {
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput,
			"limit must be between 1 and "+strconv.Itoa(maxSessionLimit)))
		return
	}
	if offset < 0 {
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput, "offset must not be negative"))
		return
	}

	c.JSON(http.StatusOK, sessionListResponse{
		Sessions: s.deps.Memory.List(limit, offset),
		Limit:    limit,
		Offset:   offset,
	})
}

// activeSessions returns the live state of every session still executing.
func (s *Server) activeSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.deps.Tracker.ActiveSessions()})
}

// sessionState returns the tracker snapshot for one session.
func (s *Server) sessionState(c *gin.Context) {
	state, err := s.deps.Tracker.Snapshot(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// conversation returns the full message history for one session.
func (s *Server) conversation(c *gin.Context) {
	conv, ok := s.deps.Memory.Conversation(c.Param("id"))
	if !ok {
		abortWithError(c, models.NewKindError(models.ErrKindNotFound, "session not found"))
		return
	}
	c.JSON(http.StatusOK, conv)
}

// feedback records a satisfaction rating for a finished session. The rating
// lands in both conversation memory and the metrics rollups.
func (s *Server) feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, models.WrapKind(models.ErrKindInvalidInput, err))
		return
	}

	sessionID := c.Param("id")
	if !s.deps.Memory.SetSatisfaction(sessionID, req.Rating) {
		abortWithError(c, models.NewKindError(models.ErrKindNotFound, "session not found"))
		return
	}
	insightGenerated := s.deps.Metrics.Feedback(sessionID, req.Rating, req.Comment)

	c.JSON(http.StatusOK, gin.H{
		"session_id":                 sessionID,
		"rating":                     req.Rating,
		"learning_insight_generated": insightGenerated,
	})
}

// cancelSession aborts a running execution.
func (s *Server) cancelSession(c *gin.Context) {
	sessionID := c.Param("id")
	if err := s.deps.Coordinator.Cancel(sessionID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "cancelled": true})
}

// queryInt parses an integer query parameter with a default.
func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
