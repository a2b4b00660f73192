package supervision

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"thesis-portal/thesis-portal-backend/internal/auth"
	"thesis-portal/thesis-portal-backend/internal/identity"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	sup := rg.Group("/supervision")
	{
		sup.POST("/requests", h.RequestSupervisor)
		sup.GET("/requests", h.ListRequests)
		sup.POST("/requests/respond", h.Respond)
		sup.GET("/supervisees", h.ListSupervisees)
		sup.DELETE("/supervisees", h.Release)
		sup.GET("/seats", h.SeatInfo)
		sup.POST("/seats/increase", h.RequestSeatIncrease)
		sup.GET("/seats/increase", h.ListSeatIncreases)
		sup.POST("/seats/increase/:id/review", h.ReviewSeatIncrease)
	}
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, identity.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, identity.ErrInvalidState), errors.Is(err, ErrCapacityExceeded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) RequestSupervisor(c *gin.Context) {
	var req struct {
		FacultyID uuid.UUID `json:"faculty_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.RequestSupervisor(c.Request.Context(), auth.UserID(c), req.FacultyID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListRequests(c *gin.Context) {
	reqs, err := h.service.ListRequests(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *Handler) Respond(c *gin.Context) {
	var req struct {
		RequestID uuid.UUID `json:"request_id" binding:"required"`
		Accept    *bool     `json:"accept" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Respond(c.Request.Context(), auth.UserID(c), req.RequestID, *req.Accept); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) ListSupervisees(c *gin.Context) {
	items, err := h.service.ListSupervisees(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) Release(c *gin.Context) {
	var req struct {
		OwnerType identity.OwnerType `json:"owner_type" binding:"required"`
		OwnerID   uuid.UUID          `json:"owner_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OwnerType != identity.OwnerStudent && req.OwnerType != identity.OwnerGroup {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner_type"})
		return
	}

	owner := identity.OwnerRef{Type: req.OwnerType, ID: req.OwnerID}
	if err := h.service.Release(c.Request.Context(), auth.UserID(c), owner); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) SeatInfo(c *gin.Context) {
	info, err := h.service.SeatInfo(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) RequestSeatIncrease(c *gin.Context) {
	var req struct {
		Seats  int    `json:"seats" binding:"required"`
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.service.RequestSeatIncrease(c.Request.Context(), auth.UserID(c), req.Seats, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListSeatIncreases(c *gin.Context) {
	reqs, err := h.service.ListSeatIncreases(c.Request.Context(), auth.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

func (h *Handler) ReviewSeatIncrease(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.ReviewSeatIncrease(c.Request.Context(), auth.UserID(c), id, *req.Approve); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
