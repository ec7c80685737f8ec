package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/irfndi/gatekeeper/internal/middleware"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/verification"
)

// VerificationHandler drives phone verification sessions over HTTP.
type VerificationHandler struct {
	sessions *verification.Registry
}

func NewVerificationHandler(sessions *verification.Registry) *VerificationHandler {
	return &VerificationHandler{sessions: sessions}
}

type createVerificationRequest struct {
	Phone string `json:"phone"`
}

type sendRequest struct {
	Method models.Channel `json:"method"`
}

type validateRequest struct {
	Code string `json:"code"`
}

// VerificationResponse pairs a session id with its snapshot.
type VerificationResponse struct {
	ID      string                `json:"id"`
	Session verification.Snapshot `json:"session"`
}

// Create opens a session and checks the phone number. A registered number
// answers 200 with a terminal snapshot, not an error.
func (h *VerificationHandler) Create(c *gin.Context) {
	var req createVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	id, snap, err := h.sessions.Create(c.Request.Context(), middleware.UserID(c), req.Phone)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, VerificationResponse{ID: id, Session: snap})
}

func (h *VerificationHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, VerificationResponse{ID: c.Param("id"), Session: s.Snapshot()})
}

// Restart re-runs the phone check after a recoverable failure.
func (h *VerificationHandler) Restart(c *gin.Context) {
	h.act(c, func(s *verification.Session) error {
		return s.Start(c.Request.Context())
	})
}

func (h *VerificationHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.act(c, func(s *verification.Session) error {
		return s.Send(c.Request.Context(), req.Method)
	})
}

func (h *VerificationHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.act(c, func(s *verification.Session) error {
		return s.Validate(c.Request.Context(), req.Code)
	})
}

func (h *VerificationHandler) SwitchMethod(c *gin.Context) {
	h.act(c, func(s *verification.Session) error {
		return s.SwitchMethod()
	})
}

func (h *VerificationHandler) Delete(c *gin.Context) {
	if err := h.sessions.Remove(middleware.UserID(c), c.Param("id")); err != nil {
		respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// LiveSessions is used by the health endpoint.
func (h *VerificationHandler) LiveSessions() int {
	return h.sessions.Len()
}

// act runs one session action. Remote failures are part of the snapshot,
// so only local rejections produce an error status.
func (h *VerificationHandler) act(c *gin.Context, action func(*verification.Session) error) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	id := c.Param("id")

	err := action(s)
	snap := s.Snapshot()
	h.sessions.Settle(middleware.UserID(c), id, s)
	if err != nil {
		respondError(c, err, VerificationResponse{ID: id, Session: snap})
		return
	}
	c.JSON(http.StatusOK, VerificationResponse{ID: id, Session: snap})
}

func (h *VerificationHandler) session(c *gin.Context) (*verification.Session, bool) {
	s, err := h.sessions.Get(middleware.UserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err, nil)
		return nil, false
	}
	return s, true
}
