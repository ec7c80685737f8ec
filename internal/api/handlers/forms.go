package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/apperr"
	"github.com/irfndi/gatekeeper/internal/cache"
	"github.com/irfndi/gatekeeper/internal/middleware"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/registry"
	"github.com/irfndi/gatekeeper/internal/uniqueness"
	"go.uber.org/zap"
)

// FormHandler exposes the uniqueness checkers of live sign-up forms.
type FormHandler struct {
	forms   *registry.Registry[*uniqueness.Form]
	newForm func() *uniqueness.Form
	logger  *zap.Logger
}

func NewFormHandler(forms *registry.Registry[*uniqueness.Form], newForm func() *uniqueness.Form, logger *zap.Logger) *FormHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormHandler{forms: forms, newForm: newForm, logger: logger}
}

// FieldInput is the body of the change and check endpoints.
type FieldInput struct {
	Value   string `json:"value"`
	Focused bool   `json:"focused"`
}

// FieldResponse carries the checker's result and the live value it
// compares against. Clients render Result only when Applies is true.
type FieldResponse struct {
	Field   uniqueness.Field   `json:"field"`
	Live    string             `json:"live"`
	Applies bool               `json:"applies"`
	Result  models.CheckResult `json:"result"`
}

// CreateForm opens a form owned by the caller.
func (h *FormHandler) CreateForm(c *gin.Context) {
	id := h.forms.Add(middleware.UserID(c), h.newForm())
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// DeleteForm closes a form and its pending checks.
func (h *FormHandler) DeleteForm(c *gin.Context) {
	if err := h.forms.Remove(middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// ChangeField records a keystroke-level change. The remote check runs after
// the debounce delay; poll GetField for its result.
func (h *FormHandler) ChangeField(c *gin.Context) {
	checker, ok := h.checker(c)
	if !ok {
		return
	}
	var in FieldInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	checker.OnChange(in.Value, in.Focused)
	c.JSON(http.StatusAccepted, fieldResponse(checker))
}

// CheckField checks the value immediately and answers with the outcome.
func (h *FormHandler) CheckField(c *gin.Context) {
	checker, ok := h.checker(c)
	if !ok {
		return
	}
	var in FieldInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	// The check outlives a client that disconnects mid-request so its
	// answer still lands in the form's cache.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 30*time.Second)
	defer cancel()
	checker.Check(ctx, in.Value, in.Focused)
	c.JSON(http.StatusOK, fieldResponse(checker))
}

// GetField returns the latest result of one field.
func (h *FormHandler) GetField(c *gin.Context) {
	checker, ok := h.checker(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, fieldResponse(checker))
}

// LiveForms is used by the health endpoint.
func (h *FormHandler) LiveForms() int {
	return h.forms.Len()
}

// CacheStats sums the availability cache counters of every live form.
func (h *FormHandler) CacheStats() cache.Stats {
	var total cache.Stats
	h.forms.Each(func(f *uniqueness.Form) {
		total = total.Add(f.CacheStats())
	})
	return total
}

func (h *FormHandler) checker(c *gin.Context) (*uniqueness.Checker, bool) {
	form, err := h.forms.Get(middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return nil, false
	}
	checker, ok := form.Field(uniqueness.Field(c.Param("field")))
	if !ok {
		respondError(c, apperr.Validation("forms.field", "unknown field"), nil)
		return nil, false
	}
	return checker, true
}

func fieldResponse(checker *uniqueness.Checker) FieldResponse {
	res := checker.Result()
	live := checker.Live()
	return FieldResponse{
		Field:   checker.Field(),
		Live:    live,
		Applies: res.AppliesTo(live),
		Result:  res,
	}
}
