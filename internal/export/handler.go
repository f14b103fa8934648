package export

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/middleware"
	"github.com/psg2/level-30-birthday/internal/rsvp"
	"github.com/psg2/level-30-birthday/pkg/response"
)

// Guests returns the admin guest list. rsvp.Service implements it.
type Guests interface {
	List(ctx context.Context, credential string) (*rsvp.GuestList, error)
}

// Handler serves guest list exports.
type Handler struct {
	guests   Guests
	exporter *Exporter
	logger   *zap.Logger
}

// NewHandler creates an export handler. exporter may be nil when no bucket is configured.
func NewHandler(guests Guests, exporter *Exporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{guests: guests, exporter: exporter, logger: logger}
}

// Create handles POST /api/admin/export.
func (h *Handler) Create(c *gin.Context) {
	if h.exporter == nil {
		response.ServiceUnavailable(c, "exports are not configured")
		return
	}
	list, err := h.guests.List(c.Request.Context(), middleware.AdminCredential(c))
	if err != nil {
		if errors.Is(err, rsvp.ErrUnauthorized) {
			response.Unauthorized(c, "unauthorized")
			return
		}
		h.logger.Error("load guests for export failed", zap.Error(err))
		response.Internal(c, "failed to load guests")
		return
	}
	res, err := h.exporter.Export(c.Request.Context(), list.Guests)
	if err != nil {
		h.logger.Error("export failed", zap.Error(err))
		response.Internal(c, "failed to export guests")
		return
	}
	response.Created(c, res)
}
