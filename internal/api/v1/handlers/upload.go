package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voxmeter/internal/api/middleware"
	"voxmeter/internal/api/v1/dto"
	"voxmeter/internal/api/v1/services"
)

// UploadHandler issues presigned upload URLs.
type UploadHandler struct {
	service services.UploadService
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(service services.UploadService) *UploadHandler {
	return &UploadHandler{service: service}
}

// Presign handles POST /api/v1/uploads/presign
//
// @Summary Presign a direct upload
// @Description Registers a pending file and returns a time-limited URL to PUT the source to
// @Tags files
// @Accept json
// @Produce json
// @Param request body dto.PresignUploadRequest true "Tenant and filename"
// @Success 201 {object} dto.PresignUploadResponse
// @Failure 400 {object} errors.APIError "Validation error"
// @Failure 500 {object} errors.APIError "Presign or registration failed"
// @Router /uploads/presign [post]
func (h *UploadHandler) Presign(c *gin.Context) {
	var req dto.PresignUploadRequest
	if err := middleware.ValidateRequest(c, &req); err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp, err := h.service.PresignUpload(c.Request.Context(), &req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}
