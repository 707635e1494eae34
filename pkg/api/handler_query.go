package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/coordinator"
	"github.com/ensembleworks/ensemble/pkg/models"
)

// processQuery runs one query through the coordinator and returns the
// synthesized result. The request blocks until the execution finishes;
// clients that want progress subscribe to /ws with the session id first
// (pass session_id in the request to pre-pick it).
func (s *Server) processQuery(c *gin.Context) {
	var req coordinator.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, models.WrapKind(models.ErrKindInvalidInput, err))
		return
	}

	result, err := s.deps.Coordinator.ProcessQuery(c.Request.Context(), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
