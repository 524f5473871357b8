package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/service"
)

// CatalogHandler handles pesticide and pest reference endpoints
type CatalogHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewCatalogHandler creates a new CatalogHandler
func NewCatalogHandler(services *service.Services, log zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		services: services,
		log:      log.With().Str("handler", "catalog").Logger(),
	}
}

func (h *CatalogHandler) ListPesticides(c *gin.Context) {
	items, err := h.services.Catalog.ListPesticides(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pesticides": items, "count": len(items)})
}

func (h *CatalogHandler) GetPesticide(c *gin.Context) {
	p, err := h.services.Catalog.GetPesticide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) CreatePesticide(c *gin.Context) {
	var in models.PesticideInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.services.Catalog.CreatePesticide(c.Request.Context(), &in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *CatalogHandler) UpdatePesticide(c *gin.Context) {
	var in models.PesticideInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.services.Catalog.UpdatePesticide(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) DeletePesticide(c *gin.Context) {
	if err := h.services.Catalog.DeletePesticide(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *CatalogHandler) ListPests(c *gin.Context) {
	items, err := h.services.Catalog.ListPests(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pests": items, "count": len(items)})
}

func (h *CatalogHandler) GetPest(c *gin.Context) {
	p, err := h.services.Catalog.GetPest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) CreatePest(c *gin.Context) {
	var in models.PestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.services.Catalog.CreatePest(c.Request.Context(), &in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *CatalogHandler) UpdatePest(c *gin.Context) {
	var in models.PestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	p, err := h.services.Catalog.UpdatePest(c.Request.Context(), c.Param("id"), &in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *CatalogHandler) DeletePest(c *gin.Context) {
	if err := h.services.Catalog.DeletePest(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
