package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/service"
)

// FeedbackHandler handles feedback endpoints
type FeedbackHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewFeedbackHandler creates a new FeedbackHandler
func NewFeedbackHandler(services *service.Services, log zerolog.Logger) *FeedbackHandler {
	return &FeedbackHandler{
		services: services,
		log:      log.With().Str("handler", "feedback").Logger(),
	}
}

// CreateFeedback handles POST /api/feedback
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	var req models.CreateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	identity, _ := auth.IdentityFrom(c)
	fb, err := h.services.Feedback.Create(c.Request.Context(), identity.UserID, &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, fb)
}

// ListFeedback handles GET /api/feedback
func (h *FeedbackHandler) ListFeedback(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}

	items, err := h.services.Feedback.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": items, "count": len(items)})
}

// GetFeedback handles GET /api/feedback/:id
func (h *FeedbackHandler) GetFeedback(c *gin.Context) {
	fb, err := h.services.Feedback.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

// UpdateFeedback handles PUT /api/feedback/:id
func (h *FeedbackHandler) UpdateFeedback(c *gin.Context) {
	var req models.UpdateFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	fb, err := h.services.Feedback.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

// DeleteFeedback handles DELETE /api/feedback/:id
func (h *FeedbackHandler) DeleteFeedback(c *gin.Context) {
	if err := h.services.Feedback.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
