package rsvp

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/psg2/level-30-birthday/internal/middleware"
	"github.com/psg2/level-30-birthday/pkg/response"
)

// TrophiesRequest is the body for POST /api/rsvp/:id/trophies.
type TrophiesRequest struct {
	Trophies []string `json:"trophies"`
}

// Handler handles RSVP HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an RSVP handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the guest and admin RSVP routes on api.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.POST("/rsvp", h.Create)
	api.GET("/rsvp/:id", h.Get)
	api.PATCH("/rsvp/:id", h.Update)
	api.POST("/rsvp/:id/trophies", h.SyncTrophies)
	api.DELETE("/rsvp/:id", h.Delete)
	api.GET("/guests", h.List)
}

// Create handles POST /api/rsvp.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.Create(c.Request.Context(), middleware.ClientIP(c), req)
	if err != nil {
		h.fail(c, err, "failed to create rsvp")
		return
	}
	if res.Duplicate {
		response.Conflict(c, "email already registered", res)
		return
	}
	response.Created(c, res)
}

// Get handles GET /api/rsvp/:id.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	if !ValidID(id) {
		response.NotFound(c, "rsvp not found")
		return
	}
	rec, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load rsvp")
		return
	}
	if rec == nil {
		response.NotFound(c, "rsvp not found")
		return
	}
	response.OK(c, rec)
}

// Update handles PATCH /api/rsvp/:id.
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	if !ValidID(id) {
		response.NotFound(c, "rsvp not found")
		return
	}
	var req UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.Update(c.Request.Context(), middleware.ClientIP(c), id, req)
	if err != nil {
		h.fail(c, err, "failed to update rsvp")
		return
	}
	response.OK(c, rec)
}

// SyncTrophies handles POST /api/rsvp/:id/trophies.
func (h *Handler) SyncTrophies(c *gin.Context) {
	id := c.Param("id")
	if !ValidID(id) {
		response.NotFound(c, "rsvp not found")
		return
	}
	var req TrophiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	rec, err := h.svc.SyncTrophies(c.Request.Context(), id, req.Trophies)
	if err != nil {
		h.fail(c, err, "failed to sync trophies")
		return
	}
	response.OK(c, rec)
}

// List handles GET /api/guests.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.AdminCredential(c))
	if err != nil {
		h.fail(c, err, "failed to list guests")
		return
	}
	response.OK(c, list)
}

// Delete handles DELETE /api/rsvp/:id.
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")
	err := h.svc.Delete(c.Request.Context(), id, middleware.AdminCredential(c))
	if err != nil {
		h.fail(c, err, "failed to delete rsvp")
		return
	}
	response.OK(c, gin.H{"deleted": id})
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrUnauthorized):
		response.Unauthorized(c, "unauthorized")
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "rsvp not found")
	case errors.Is(err, ErrRateLimited):
		response.TooManyRequests(c, "too many requests, try again later")
	default:
		h.logger.Error(msg, zap.Error(err), zap.String("path", c.FullPath()))
		response.Internal(c, msg)
	}
}
