package auth

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/pkg/response"
)

// SessionRequest is the body for POST /api/admin/session.
type SessionRequest struct {
	Key string `json:"key" binding:"required"`
}

// SessionResponse carries a freshly issued admin token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Handler handles admin session endpoints.
type Handler struct {
	gate     *Gate
	sessions *SessionService
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(gate *Gate, sessions *SessionService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{gate: gate, sessions: sessions, logger: logger}
}

// CreateSession handles POST /api/admin/session. Only the raw admin key is accepted here,
// so a session cannot be used to mint another one.
func (h *Handler) CreateSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !h.gate.CheckKey(req.Key) {
		h.logger.Warn("admin session denied", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid admin key")
		return
	}
	if h.sessions == nil || !h.sessions.Enabled() {
		response.ServiceUnavailable(c, "admin sessions are not configured")
		return
	}
	token, expires, err := h.sessions.Generate()
	if err != nil {
		h.logger.Error("generate session failed", zap.Error(err))
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, SessionResponse{Token: token, ExpiresAt: expires})
}
