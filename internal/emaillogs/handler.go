package emaillogs

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/models"
	"github.com/psg2/level-30-birthday/pkg/response"
)

// Lister reads recent email logs. *Repository implements it.
type Lister interface {
	ListRecent(ctx context.Context, rsvpID string, limit int) ([]*models.EmailLog, error)
}

// Handler handles email log HTTP endpoints.
type Handler struct {
	repo   Lister
	logger *zap.Logger
}

// NewHandler creates an email logs handler. repo may be nil when no database is configured.
func NewHandler(repo Lister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// List handles GET /api/admin/emails?rsvp_id=&limit=. Call behind RequireAdmin.
func (h *Handler) List(c *gin.Context) {
	if h.repo == nil {
		response.ServiceUnavailable(c, "email log is not configured")
		return
	}
	limit := DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	logs, err := h.repo.ListRecent(c.Request.Context(), c.Query("rsvp_id"), limit)
	if err != nil {
		h.logger.Error("list email logs failed", zap.Error(err))
		response.Internal(c, "failed to load email logs")
		return
	}
	response.OK(c, logs)
}
