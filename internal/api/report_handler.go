package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/smartpest-api/internal/auth"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/service"
)

// ReportHandler handles detection report endpoints
type ReportHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(services *service.Services, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		services: services,
		log:      log.With().Str("handler", "report").Logger(),
	}
}

// SaveReport handles POST /api/save-report
// A repeated Idempotency-Key returns the original report with 200
func (h *ReportHandler) SaveReport(c *gin.Context) {
	var req models.SaveReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	userID := ""
	if id, ok := auth.IdentityFrom(c); ok {
		userID = id.UserID
	}

	report, replayed, err := h.services.Report.Save(c.Request.Context(), &req, userID, c.GetHeader("Idempotency-Key"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"message":   "Report saved successfully",
		"report_id": report.ID,
		"report":    report,
	})
}

// ListReports handles GET /api/reports?limit=&offset=
func (h *ReportHandler) ListReports(c *gin.Context) {
	limit, offset, ok := pageParams(c)
	if !ok {
		return
	}

	page, err := h.services.Report.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetReport handles GET /api/reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	report, err := h.services.Report.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ExportReports handles GET /api/reports/export?format=ndjson|json|csv
// Streams the export directly to the response
func (h *ReportHandler) ExportReports(c *gin.Context) {
	format := c.DefaultQuery("format", "ndjson")

	if err := h.services.Report.Export(c.Request.Context(), c.Writer, format); err != nil {
		if c.Writer.Written() {
			// Can't return error JSON after streaming has started
			h.log.Error().Err(err).Str("format", format).Msg("Export failed")
			return
		}
		// Drop the attachment headers set for the stream
		c.Writer.Header().Del("Content-Type")
		c.Writer.Header().Del("Content-Disposition")
		respondError(c, h.log, err)
	}
}
