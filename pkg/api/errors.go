package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ensembleworks/ensemble/pkg/models"
)

// statusCanceled mirrors the nginx convention for client-abandoned requests.
const statusCanceled = 499

// httpStatusFor maps an error kind to the HTTP status code.
func httpStatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrKindInvalidInput:
		return http.StatusBadRequest
	case models.ErrKindNotFound:
		return http.StatusNotFound
	case models.ErrKindNoAgentsAvailable, models.ErrKindPoolExhausted:
		return http.StatusServiceUnavailable
	case models.ErrKindRateLimited:
		return http.StatusTooManyRequests
	case models.ErrKindTimeout:
		return http.StatusGatewayTimeout
	case models.ErrKindCancelled:
		return statusCanceled
	case models.ErrKindProviderError, models.ErrKindKnowledgeUnavailable, models.ErrKindPartialFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the standard error envelope for a service error.
func abortWithError(c *gin.Context, err error) {
	kind := models.KindOf(err)
	c.AbortWithStatusJSON(httpStatusFor(kind), gin.H{
		"error": err.Error(),
		"kind":  kind,
	})
}
