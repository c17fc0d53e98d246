package dto

import "time"

// PresignUploadRequest asks for a direct-to-bucket upload URL.
type PresignUploadRequest struct {
	OrganizationID string `json:"organizationId" binding:"required,max=64"`
	UserID         string `json:"userId" binding:"required,max=64"`
	Filename       string `json:"filename" binding:"required,max=255"`
	ContentType    string `json:"contentType" binding:"omitempty,max=128"`
}

// PresignUploadResponse carries the upload URL, the pending file and the
// blob key to pass to later operations.
type PresignUploadResponse struct {
	FileID    string    `json:"fileId"`
	UploadURL string    `json:"uploadUrl"`
	Bucket    string    `json:"bucket"`
	BlobKey   string    `json:"blobKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}
