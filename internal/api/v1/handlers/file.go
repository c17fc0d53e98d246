package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"voxmeter/internal/api/middleware"
	"voxmeter/internal/api/v1/dto"
	"voxmeter/internal/api/v1/services"
)

// FileHandler exposes registered sources.
type FileHandler struct {
	service services.FileService
}

// NewFileHandler creates a file handler.
func NewFileHandler(service services.FileService) *FileHandler {
	return &FileHandler{service: service}
}

// List handles GET /api/v1/files
//
// @Summary List files
// @Description Lists the registered files of an organization, newest first
// @Tags files
// @Produce json
// @Param organizationId query string true "Organization"
// @Success 200 {object} dto.FileListResponse
// @Failure 400 {object} errors.APIError "Validation error"
// @Router /files [get]
func (h *FileHandler) List(c *gin.Context) {
	var q dto.FileQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.HandleError(c, err)
		return
	}
	files, err := h.service.List(c.Request.Context(), q.OrganizationID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FileListResponse{Files: files, Count: len(files)})
}

// Get handles GET /api/v1/files/:id
//
// @Summary Get a file
// @Tags files
// @Produce json
// @Param id path string true "File ID"
// @Param organizationId query string true "Organization"
// @Success 200 {object} model.File
// @Failure 404 {object} errors.APIError "File not found"
// @Router /files/{id} [get]
func (h *FileHandler) Get(c *gin.Context) {
	var q dto.FileQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.HandleError(c, err)
		return
	}
	file, err := h.service.Get(c.Request.Context(), q.OrganizationID, c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Complete handles POST /api/v1/files/:id/complete
//
// @Summary Confirm an upload
// @Description Marks the file available once its presigned upload has landed in the bucket
// @Tags files
// @Produce json
// @Param id path string true "File ID"
// @Param organizationId query string true "Organization"
// @Success 200 {object} model.File
// @Failure 400 {object} errors.APIError "Upload not found"
// @Failure 404 {object} errors.APIError "File not found"
// @Router /files/{id}/complete [post]
func (h *FileHandler) Complete(c *gin.Context) {
	var q dto.FileQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.HandleError(c, err)
		return
	}
	file, err := h.service.Confirm(c.Request.Context(), q.OrganizationID, c.Param("id"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, file)
}

// Delete handles DELETE /api/v1/files/:id
//
// @Summary Delete a file
// @Description Removes the source blob, its converted, split, transcript and translation artifacts, then the file row. Usage rows are kept.
// @Tags files
// @Param id path string true "File ID"
// @Param organizationId query string true "Organization"
// @Success 204
// @Failure 404 {object} errors.APIError "File not found"
// @Failure 500 {object} errors.APIError "Blob or row delete failed; the file is kept"
// @Router /files/{id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	var q dto.FileQuery
	if err := middleware.ValidateQuery(c, &q); err != nil {
		middleware.HandleError(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), q.OrganizationID, c.Param("id")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
