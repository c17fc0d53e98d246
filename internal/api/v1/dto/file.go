package dto

import "voxmeter/internal/app/model"

// FileQuery scopes a file request to one organization.
type FileQuery struct {
	OrganizationID string `form:"organizationId" binding:"required,max=64"`
}

// FileListResponse lists the files of an organization.
type FileListResponse struct {
	Files []model.File `json:"files"`
	Count int          `json:"count"`
}
