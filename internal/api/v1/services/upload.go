package services

import (
	"context"
	"time"

	"voxmeter/internal/api/v1/dto"
	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/files"
	"voxmeter/internal/app/storage/objectstore"
)

type uploadService struct {
	store  objectstore.Store
	files  FileService
	bucket string
	expiry time.Duration
	now    func() time.Time
}

// NewUploadService presigns uploads into bucket under uploads/<org>/ and
// registers a pending file for each one.
func NewUploadService(store objectstore.Store, files FileService, bucket string, expiry time.Duration) UploadService {
	return &uploadService{store: store, files: files, bucket: bucket, expiry: expiry, now: time.Now}
}

func (s *uploadService) PresignUpload(ctx context.Context, req *dto.PresignUploadRequest) (*dto.PresignUploadResponse, error) {
	now := s.now()
	key := objectstore.UploadKey(req.OrganizationID, req.Filename, now)
	url, err := s.store.PresignPut(ctx, s.bucket, key, req.ContentType, s.expiry)
	if err != nil {
		return nil, errors.WrapKind(errors.KindUploadFailure, err, "failed to presign upload")
	}
	file, err := s.files.Register(ctx, files.Registration{
		OrganizationID: req.OrganizationID,
		UserID:         req.UserID,
		Name:           req.Filename,
		StorageKey:     key,
	})
	if err != nil {
		return nil, err
	}
	return &dto.PresignUploadResponse{
		FileID:    file.ID,
		UploadURL: url,
		Bucket:    s.bucket,
		BlobKey:   key,
		ExpiresAt: now.Add(s.expiry).UTC(),
	}, nil
}
