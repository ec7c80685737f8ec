package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/middleware"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/moderation"
	"github.com/irfndi/gatekeeper/internal/ratelimit"
)

// ModerationHandler exposes block/report actions and their daily quotas.
type ModerationHandler struct {
	guard   *moderation.Guard
	limiter *ratelimit.Limiter
}

func NewModerationHandler(guard *moderation.Guard, limiter *ratelimit.Limiter) *ModerationHandler {
	return &ModerationHandler{guard: guard, limiter: limiter}
}

// GetQuota answers the caller's remaining actions of one kind for today.
func (h *ModerationHandler) GetQuota(c *gin.Context) {
	kind := models.ActionKind(c.Param("kind"))
	if !h.limiter.Known(kind) {
		respondError(c, apperr.Validation("quota.get", "unknown action kind"), nil)
		return
	}
	c.JSON(http.StatusOK, h.limiter.Quota(c.Request.Context(), middleware.UserID(c), kind))
}

func (h *ModerationHandler) Block(c *gin.Context) {
	quota, err := h.guard.Block(c.Request.Context(), middleware.UserID(c), c.Param("target"))
	if err != nil {
		respondError(c, err, quotaData(quota))
		return
	}
	c.JSON(http.StatusOK, gin.H{"quota": quota})
}

func (h *ModerationHandler) Unblock(c *gin.Context) {
	if err := h.guard.Unblock(c.Request.Context(), middleware.UserID(c), c.Param("target")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ModerationHandler) Report(c *gin.Context) {
	var payload models.ReportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "targetId, contentType and reason are required")
		return
	}
	quota, err := h.guard.Report(c.Request.Context(), middleware.UserID(c), payload)
	if err != nil {
		respondError(c, err, quotaData(quota))
		return
	}
	c.JSON(http.StatusOK, gin.H{"quota": quota})
}

func quotaData(q models.Quota) any {
	if q.Kind == "" {
		return nil
	}
	return gin.H{"quota": q}
}
