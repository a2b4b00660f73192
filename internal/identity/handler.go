package identity

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"thesis-portal/thesis-portal-backend/internal/auth"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/users/:id", h.GetUser)

	registrations := rg.Group("/registrations")
	{
		registrations.GET("", h.GetRegistration)
		registrations.POST("", h.SubmitRegistration)
		registrations.POST("/review", h.ReviewRegistration)
	}

	groups := rg.Group("/groups")
	{
		groups.POST("", h.CreateGroup)
		groups.GET("/:id", h.GetGroup)
		groups.DELETE("/:id", h.DisbandGroup)
	}

	rg.POST("/marks", h.AssignMark)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrNoSupervisor):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) GetUser(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	user, err := h.service.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) GetRegistration(c *gin.Context) {
	view, err := h.service.GetRegistration(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) SubmitRegistration(c *gin.Context) {
	var req struct {
		Title       string `json:"title" binding:"required"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SubmitRegistration(c.Request.Context(), auth.UserID(c), req.Title, req.Description); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (h *Handler) ReviewRegistration(c *gin.Context) {
	var req struct {
		OwnerType OwnerType `json:"owner_type" binding:"required"`
		OwnerID   uuid.UUID `json:"owner_id" binding:"required"`
		Approved  *bool     `json:"approved" binding:"required"`
		Comments  string    `json:"comments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OwnerType != OwnerStudent && req.OwnerType != OwnerGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_type"})
		return
	}

	owner := OwnerRef{Type: req.OwnerType, ID: req.OwnerID}
	if err := h.service.ReviewRegistration(c.Request.Context(), auth.UserID(c), owner, *req.Approved, req.Comments); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) CreateGroup(c *gin.Context) {
	var req struct {
		Name    string      `json:"name" binding:"required"`
		Members []uuid.UUID `json:"members" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.service.CreateGroup(c.Request.Context(), auth.UserID(c), req.Name, req.Members)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *Handler) GetGroup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	group, members, err := h.service.GetGroup(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group, "members": members})
}

func (h *Handler) DisbandGroup(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.service.DisbandGroup(c.Request.Context(), auth.UserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AssignMark(c *gin.Context) {
	var req struct {
		StudentID uuid.UUID `json:"student_id" binding:"required"`
		Phase     string    `json:"phase" binding:"required"`
		Mark      *float64  `json:"mark" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	phase, err := ParsePhase(req.Phase)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.AssignMark(c.Request.Context(), auth.UserID(c), req.StudentID, phase, *req.Mark); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
