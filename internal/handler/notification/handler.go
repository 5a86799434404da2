package notification

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/dashboard-notifications/internal/handler"
	"github.com/jwalitptl/dashboard-notifications/internal/model"
	apperrors "github.com/jwalitptl/dashboard-notifications/pkg/errors"
)

const notRunningMessage = "notification polling is not running"

// FeedService is the part of the aggregator exposed over HTTP.
type FeedService interface {
	State() model.FeedState
	Refresh(ctx context.Context) model.FeedState
	MarkRead() model.FeedState
	Active() bool
}

type Handler struct {
	service FeedService
}

func NewHandler(service FeedService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.GetFeed)
		notifications.POST("/refresh", h.Refresh)
		notifications.POST("/read", h.MarkRead)
	}
}

// GetFeed returns the current feed without touching the upstream API.
func (h *Handler) GetFeed(c *gin.Context) {
	if !h.running(c) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.State()))
}

// Refresh runs a refresh cycle and returns the resulting state. A client
// that disconnects abandons the cycle.
func (h *Handler) Refresh(c *gin.Context) {
	if !h.running(c) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.Refresh(c.Request.Context())))
}

func (h *Handler) MarkRead(c *gin.Context) {
	if !h.running(c) {
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.MarkRead()))
}

// running attaches a 503 to c while the service is not polling.
func (h *Handler) running(c *gin.Context) bool {
	if h.service.Active() {
		return true
	}
	c.Error(apperrors.Unavailable(notRunningMessage, nil))
	return false
}
