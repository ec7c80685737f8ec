package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/middleware"
	"github.com/irfndi/gatekeeper/internal/registry"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// StatusFor maps an error to the HTTP status the API answers with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. data, when non-nil, is
// returned alongside so clients can refresh their state.
func respondError(c *gin.Context, err error, data any) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError || errors.Is(err, apperr.ErrTransport) {
		middleware.RecordError(c, err)
	}

	msg := apperr.MessageOf(err, "")
	switch {
	case msg != "":
	case errors.Is(err, registry.ErrNotFound):
		msg = "not found"
	case status == http.StatusInternalServerError:
		msg = "internal error"
	default:
		msg = err.Error()
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: msg,
		Kind:  string(apperr.KindOf(err)),
		Data:  data,
	})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: message,
		Kind:  string(apperr.KindValidation),
	})
}
