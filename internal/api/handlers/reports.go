package handlers

import (
	"net/http"

	"github.com/cukesight/backend/internal/models"
	"github.com/cukesight/backend/internal/services"
	"github.com/cukesight/backend/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type ReportHandler struct {
	ingestService *services.IngestService
	logger        *logrus.Logger
}

func NewReportHandler(ingestService *services.IngestService, logger *logrus.Logger) *ReportHandler {
	return &ReportHandler{
		ingestService: ingestService,
		logger:        logger,
	}
}

// HandleIngest stores a batch of Cucumber JSON reports as one test run.
func (h *ReportHandler) HandleIngest(c *gin.Context) {
	var req models.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid ingest request")
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	payloads := make([][]byte, len(req.Reports))
	size := 0
	for i, r := range req.Reports {
		payloads[i] = r
		size += len(r)
	}

	h.logger.WithFields(logrus.Fields{
		"reports":     len(payloads),
		"bytes":       size,
		"project":     req.Project,
		"environment": req.Environment,
		"request_id":  c.GetString("request_id"),
	}).Debug("Processing ingest request")

	resp, err := h.ingestService.Ingest(c.Request.Context(), payloads, services.IngestMetadata{
		Project:     req.Project,
		Environment: req.Environment,
		BuildID:     req.BuildID,
		Timestamp:   req.Timestamp,
		Tags:        req.Tags,
		Metadata:    req.Metadata,
	})
	if err != nil {
		utils.FailWith(c, "Ingestion failed", err)
		return
	}

	if !resp.Success {
		c.JSON(http.StatusUnprocessableEntity, utils.APIResponse{
			Success: false,
			Message: resp.Message,
			Data:    resp,
		})
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, resp.Message, resp)
}

// HandleBuildInfo stores build metadata.
func (h *ReportHandler) HandleBuildInfo(c *gin.Context) {
	var req models.BuildInfoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	info, err := services.ParseBuildInfo(req.BuildID, req.BuildNumber, req.Branch, req.CommitHash, req.BuildDate, req.BuildURL)
	if err != nil {
		utils.FailWith(c, "Invalid build info", err)
		return
	}

	resp, err := h.ingestService.IngestBuildInfo(c.Request.Context(), info, req.Metadata)
	if err != nil {
		utils.FailWith(c, "Failed to store build info", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, resp.Message, resp)
}
