package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voxmeter/internal/api/errors"
	"voxmeter/internal/api/middleware"
	"voxmeter/internal/api/v1/dto"
	"voxmeter/internal/api/v1/services"
	"voxmeter/internal/app/pipeline"
)

// OperationHandler exposes the pipeline entry points.
type OperationHandler struct {
	operations services.OperationService
	jobs       services.JobService
}

// NewOperationHandler creates an operation handler. jobs may be nil, in
// which case ?async=true is refused.
func NewOperationHandler(operations services.OperationService, jobs services.JobService) *OperationHandler {
	return &OperationHandler{operations: operations, jobs: jobs}
}

// Transcribe handles POST /api/v1/transcribe
//
// @Summary Transcribe audio
// @Description Converts the source, optionally segments it, and transcribes it with the primary provider (and the secondary one with doubleModel)
// @Tags operations
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "Source, tenant and transcription options"
// @Param async query bool false "Queue the operation instead of running it inline"
// @Success 200 {object} pipeline.Response "Transcription result with billed cost"
// @Success 202 {object} dto.JobAcceptedResponse "Operation queued"
// @Failure 400 {object} errors.APIError "Validation error"
// @Failure 402 {object} errors.APIError "No active pricing"
// @Failure 422 {object} errors.APIError "Source is not usable audio"
// @Failure 502 {object} errors.APIError "Download or provider failure"
// @Router /transcribe [post]
func (h *OperationHandler) Transcribe(c *gin.Context) { h.handle(c, pipeline.OpTranscribe) }

// Translate handles POST /api/v1/translate
//
// @Summary Translate a text artifact
// @Description Translates a stored text artifact into targetLanguage
// @Tags operations
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "Source, tenant and target language"
// @Param async query bool false "Queue the operation instead of running it inline"
// @Success 200 {object} pipeline.Response "Translation result with billed cost"
// @Success 202 {object} dto.JobAcceptedResponse "Operation queued"
// @Failure 400 {object} errors.APIError "Validation error"
// @Failure 402 {object} errors.APIError "No active pricing"
// @Failure 502 {object} errors.APIError "Download or provider failure"
// @Router /translate [post]
func (h *OperationHandler) Translate(c *gin.Context) { h.handle(c, pipeline.OpTranslate) }

// DetectLanguage handles POST /api/v1/detect-language
//
// @Summary Detect the spoken language
// @Description Sends a short snippet of the source to the language detector
// @Tags operations
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "Source and tenant"
// @Param async query bool false "Queue the operation instead of running it inline"
// @Success 200 {object} pipeline.Response "Detected language with billed cost"
// @Success 202 {object} dto.JobAcceptedResponse "Operation queued"
// @Failure 400 {object} errors.APIError "Validation error"
// @Failure 422 {object} errors.APIError "Source is not usable audio"
// @Failure 502 {object} errors.APIError "Download or provider failure"
// @Router /detect-language [post]
func (h *OperationHandler) DetectLanguage(c *gin.Context) { h.handle(c, pipeline.OpDetectLanguage) }

// Split handles POST /api/v1/split
//
// @Summary Split audio into segments
// @Description Converts the source, cuts it into segmentSeconds windows and stores them as one zip archive
// @Tags operations
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "Source, tenant and window size"
// @Param async query bool false "Queue the operation instead of running it inline"
// @Success 200 {object} pipeline.Response "Archive URL and segment count"
// @Success 202 {object} dto.JobAcceptedResponse "Operation queued"
// @Failure 400 {object} errors.APIError "Validation error"
// @Failure 422 {object} errors.APIError "Conversion or segmentation failure"
// @Router /split [post]
func (h *OperationHandler) Split(c *gin.Context) { h.handle(c, pipeline.OpSplit) }

// Convert handles POST /api/v1/convert
//
// @Summary Convert audio to canonical WAV
// @Tags operations
// @Accept json
// @Produce json
// @Param request body pipeline.Request true "Source and tenant"
// @Param async query bool false "Queue the operation instead of running it inline"
// @Success 200 {object} pipeline.Response "Converted artifact URL"
// @Success 202 {object} dto.JobAcceptedResponse "Operation queued"
// @Failure 400 {object} errors.APIError "Validation error"
// @Failure 422 {object} errors.APIError "Conversion failure"
// @Router /convert [post]
func (h *OperationHandler) Convert(c *gin.Context) { h.handle(c, pipeline.OpConvert) }

// handle runs op inline, or queues it when ?async=true.
func (h *OperationHandler) handle(c *gin.Context, op pipeline.Operation) {
	var req pipeline.Request
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}
	// operation ids and attempts are assigned server-side; a client
	// supplied id could match ledger keys of earlier work
	req.OperationID, req.Attempt = "", 0
	if err := pipeline.Validate(&req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	async, _ := strconv.ParseBool(c.Query("async"))
	if async {
		h.enqueue(c, op, &req)
		return
	}

	resp, err := h.operations.Run(c.Request.Context(), op, &req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *OperationHandler) enqueue(c *gin.Context, op pipeline.Operation, req *pipeline.Request) {
	if h.jobs == nil {
		middleware.HandleError(c, errors.NewServiceUnavailableError("job queue is not configured"))
		return
	}
	job, err := h.jobs.Enqueue(c.Request.Context(), op, req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.JobAcceptedResponse{
		JobID:       job.ID,
		OperationID: job.Request.OperationID,
		Operation:   job.Operation,
		Status:      "queued",
		QueuedAt:    job.CreatedAt,
	})
}
