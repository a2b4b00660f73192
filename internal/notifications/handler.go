package notifications

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"thesis-portal/thesis-portal-backend/internal/auth"
	"thesis-portal/thesis-portal-backend/internal/notifications/websocket"
)

type Handler struct {
	service   *Service
	wsManager *websocket.Manager
}

func NewHandler(service *Service, wsManager *websocket.Manager) *Handler {
	return &Handler{service: service, wsManager: wsManager}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	items := rg.Group("/notifications")
	{
		items.GET("", h.List)
		items.GET("/unread-count", h.UnreadCount)
		items.POST("/:id/read", h.MarkAsRead)
	}
	rg.GET("/ws", h.Connect)
}

func (h *Handler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, err := h.service.ListForUser(c.Request.Context(), auth.UserID(c), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	count, err := h.service.UnreadCount(c.Request.Context(), auth.UserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": count})
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.MarkAsRead(c.Request.Context(), auth.UserID(c), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// Connect upgrades the request to a WebSocket push channel for the
// authenticated user.
func (h *Handler) Connect(c *gin.Context) {
	userID := auth.UserID(c)
	if userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	if _, err := h.wsManager.HandleConnection(c.Writer, c.Request, userID.String()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
}
