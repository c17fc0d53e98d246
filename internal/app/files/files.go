// Package files manages the lifecycle of uploaded sources: registration,
// upload confirmation, listing and deletion of the file and every blob
// derived from it.
package files

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/repository"
	"voxmeter/internal/app/storage/objectstore"
)

// Registration describes a source about to be uploaded.
type Registration struct {
	OrganizationID string
	UserID         string
	Name           string
	StorageKey     string
}

// Service owns file rows and their blobs.
type Service struct {
	repo      repository.FileRepository
	store     objectstore.Store
	bucket    string
	providers []string
	logger    *zap.Logger
	newID     func() string
}

// New creates a Service. providers names every provider whose artifacts
// may exist for a file, so Delete can find them.
func New(repo repository.FileRepository, store objectstore.Store, bucket string, providers []string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		store:     store,
		bucket:    bucket,
		providers: providers,
		logger:    logger.Named("files"),
		newID:     uuid.NewString,
	}
}

// Register creates a pending file row for reg.
func (s *Service) Register(ctx context.Context, reg Registration) (*model.File, error) {
	for _, field := range [][2]string{
		{"organizationId", reg.OrganizationID},
		{"userId", reg.UserID},
		{"storageKey", reg.StorageKey},
	} {
		if strings.TrimSpace(field[1]) == "" {
			return nil, errors.RequiredField(field[0])
		}
	}
	name := reg.Name
	if name == "" {
		name = objectstore.BaseName(reg.StorageKey)
	}

	f := &model.File{
		ID:                s.newID(),
		Name:              name,
		StorageKey:        reg.StorageKey,
		OrganizationID:    reg.OrganizationID,
		UserID:            reg.UserID,
		Status:            model.StatusPending,
		TranscriptStatus:  model.StatusPending,
		TranslationStatus: model.StatusPending,
	}
	if err := s.repo.CreateFile(ctx, f); err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "failed to register file")
	}
	s.logger.Info("file registered",
		zap.String("file_id", f.ID),
		zap.String("organization_id", f.OrganizationID),
		zap.String("storage_key", f.StorageKey))
	return f, nil
}

// Confirm marks a file available once its source blob exists.
func (s *Service) Confirm(ctx context.Context, orgID, id string) (*model.File, error) {
	f, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if f.Status == model.StatusAvailable {
		return f, nil
	}

	body, err := s.store.Get(ctx, s.bucket, f.StorageKey)
	if err != nil {
		return nil, errors.WrapKind(errors.KindInvalidRequest, err, "upload not found for file "+id)
	}
	body.Close()

	if err := s.repo.UpdateStatus(ctx, id, model.FieldFile, model.StatusAvailable); err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "failed to confirm file")
	}
	f.Status = model.StatusAvailable
	return f, nil
}

// Get returns the file id of orgID. Files of other organizations are
// reported as missing.
func (s *Service) Get(ctx context.Context, orgID, id string) (*model.File, error) {
	f, err := s.repo.GetFile(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errors.Wrapf(errors.ErrFileNotFound, "file %s", id)
	}
	if err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "failed to load file")
	}
	if f.OrganizationID != orgID {
		return nil, errors.Wrapf(errors.ErrFileNotFound, "file %s", id)
	}
	return f, nil
}

// List returns the files of orgID, newest first.
func (s *Service) List(ctx context.Context, orgID string) ([]model.File, error) {
	if orgID == "" {
		return nil, errors.RequiredField("organizationId")
	}
	files, err := s.repo.ListFiles(ctx, orgID)
	if err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "failed to list files")
	}
	return files, nil
}

// Delete removes the source blob, every derived artifact and then the row.
// The row is kept when a blob cannot be removed so the delete can be
// retried.
func (s *Service) Delete(ctx context.Context, orgID, id string) error {
	f, err := s.Get(ctx, orgID, id)
	if err != nil {
		return err
	}

	keys := s.blobKeys(f)
	for _, key := range keys {
		if err := s.store.Delete(ctx, s.bucket, key); err != nil {
			s.logger.Error("blob delete failed",
				zap.String("file_id", id),
				zap.String("key", key),
				zap.Error(err))
			return errors.WrapKind(errors.KindUploadFailure, err, "failed to delete "+key)
		}
	}

	err = s.repo.DeleteFile(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return errors.Wrapf(errors.ErrFileNotFound, "file %s", id)
	}
	if err != nil {
		return errors.WrapKind(errors.KindPersistenceFailure, err, "failed to delete file")
	}
	s.logger.Info("file deleted",
		zap.String("file_id", id),
		zap.String("organization_id", orgID),
		zap.Int("blobs", len(keys)))
	return nil
}

func (s *Service) blobKeys(f *model.File) []string {
	keys := []string{f.StorageKey, f.TranscriptionArtifactKey, f.TranslationArtifactKey}
	keys = append(keys, objectstore.DerivedKeys(f.OrganizationID, f.StorageKey, s.providers)...)
	return lo.Uniq(lo.Compact(keys))
}
