package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// listAgents returns all active agents.
func (s *Server) listAgents(c *gin.Context) {
	active, err := s.deps.Registry.Active(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": active})
}

// createAgent registers a new agent. The registry validates the definition
// and assigns an id when none is given.
func (s *Server) createAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		abortWithError(c, models.WrapKind(models.ErrKindInvalidInput, err))
		return
	}

	created, err := s.deps.Registry.Create(c.Request.Context(), agent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// updateAgent replaces an existing agent's definition. The path id wins over
// any id in the body.
func (s *Server) updateAgent(c *gin.Context) {
	var agent models.Agent
	if err := c.ShouldBindJSON(&agent); err != nil {
		abortWithError(c, models.WrapKind(models.ErrKindInvalidInput, err))
		return
	}
	agent.ID = c.Param("id")

	updated, err := s.deps.Registry.Update(c.Request.Context(), agent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// deactivateAgent soft-deletes an agent. Historical interactions keep
// referencing it; it just stops receiving new work.
func (s *Server) deactivateAgent(c *gin.Context) {
	id := c.Param("id")
	if err := s.deps.Registry.Deactivate(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deactivated": true})
}
