package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/version"
)

// health reports liveness plus per-component detail. Database health is
// checked only when the server runs with Postgres; degraded storage still
// returns 200 because the core keeps serving from memory.
func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"status":          "healthy",
		"version":         version.Full(),
		"active_sessions": len(s.deps.Tracker.ActiveSessions()),
	}

	if s.deps.DatabaseHealth != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		detail, err := s.deps.DatabaseHealth(ctx)
		if err != nil {
			body["status"] = "degraded"
			body["database"] = gin.H{"status": "unhealthy", "error": err.Error()}
		} else {
			body["database"] = gin.H{"status": "healthy", "detail": detail}
		}
	}

	c.JSON(http.StatusOK, body)
}
