package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/models"
)

const maxKnowledgeLimit = 50

// searchKnowledge runs a direct knowledge retrieval for the q parameter.
// Source failures surface as a warning in the body, not an error status —
// same contract the coordinator gets.
func (s *Server) searchKnowledge(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput, "q parameter is required"))
		return
	}
	limit := queryInt(c, "limit", maxKnowledgeLimit)
	if limit < 1 || limit > maxKnowledgeLimit {
		abortWithError(c, models.NewKindError(models.ErrKindInvalidInput, "limit must be between 1 and 50"))
		return
	}

	k := s.deps.Retriever.Retrieve(c.Request.Context(), query)
	c.JSON(http.StatusOK, toKnowledgeResponse(query, k, limit))
}
