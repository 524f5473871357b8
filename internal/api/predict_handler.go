package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/config"
	"github.com/smartpest-api/internal/service"
)

// imageField is the multipart field carrying the photo
const imageField = "image"

// PredictHandler handles classification and pest information endpoints
type PredictHandler struct {
	services *service.Services
	cfg      *config.Config
	log      zerolog.Logger
}

// NewPredictHandler creates a new PredictHandler
func NewPredictHandler(services *service.Services, cfg *config.Config, log zerolog.Logger) *PredictHandler {
	return &PredictHandler{
		services: services,
		cfg:      cfg,
		log:      log.With().Str("handler", "predict").Logger(),
	}
}

// Predict handles POST /api/predict
// Accepts a multipart image and returns {class, confidence}
func (h *PredictHandler) Predict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Upload.MaxUploadSize)

	file, header, err := c.Request.FormFile(imageField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, "file too large, max size is "+formatSize(h.cfg.Upload.MaxUploadSize))
			return
		}
		badRequest(c, "No image uploaded.")
		return
	}
	defer file.Close()

	prediction, err := h.services.Prediction.PredictUpload(c.Request.Context(), header.Filename, file)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	if prediction.Mock {
		c.Header("X-Classifier-Mode", "degraded")
	}
	c.JSON(http.StatusOK, prediction)
}

// PestInfo handles GET /api/pest-info/:name
func (h *PredictHandler) PestInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Prediction.PestInfo(c.Param("name")))
}

// formatSize renders a byte limit in the largest unit that divides it evenly
func formatSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%d KB", n>>10)
	default:
		return fmt.Sprintf("%d bytes", n)
	}
}
