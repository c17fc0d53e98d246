// Package status records the lifecycle of a file's artifacts.
package status

import (
	"context"

	"go.uber.org/zap"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/repository"
)

// Tracker updates the independent status fields of a File. Requests that
// carry no file id are not tracked; every method is then a no-op.
type Tracker struct {
	repo   repository.FileRepository
	logger *zap.Logger
}

// New creates a Tracker.
func New(repo repository.FileRepository, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{repo: repo, logger: logger.Named("status")}
}

// MarkStatus sets field of fileID to s.
func (t *Tracker) MarkStatus(ctx context.Context, fileID string, field model.StatusField, s model.Status) error {
	if fileID == "" {
		return nil
	}
	if !field.Valid() || !s.Valid() {
		return errors.InvalidField("status", string(field)+"="+string(s))
	}
	if err := t.repo.UpdateStatus(ctx, fileID, field, s); err != nil {
		return errors.WrapKind(errors.KindPersistenceFailure, err, "status update failed")
	}
	t.logger.Debug("status updated",
		zap.String("file_id", fileID),
		zap.String("field", string(field)),
		zap.String("status", string(s)))
	return nil
}

// MarkResult records artifactKey as field's result and marks it available.
func (t *Tracker) MarkResult(ctx context.Context, fileID string, field model.StatusField, artifactKey string) error {
	if fileID == "" {
		return nil
	}
	if _, err := model.ArtifactColumn(field); err != nil {
		return errors.WrapKind(errors.KindInvalidRequest, err, "invalid result field")
	}
	if err := t.repo.UpdateArtifact(ctx, fileID, field, artifactKey); err != nil {
		return errors.WrapKind(errors.KindPersistenceFailure, err, "result update failed")
	}
	t.logger.Debug("result recorded",
		zap.String("file_id", fileID),
		zap.String("field", string(field)),
		zap.String("artifact_key", artifactKey))
	return nil
}

// Fail marks field failed. It logs instead of returning an error so the
// caller can still report the original failure.
func (t *Tracker) Fail(ctx context.Context, fileID string, field model.StatusField) {
	if err := t.MarkStatus(ctx, fileID, field, model.StatusFailed); err != nil {
		t.logger.Error("failed to mark status failed",
			zap.String("file_id", fileID),
			zap.String("field", string(field)),
			zap.Error(err))
	}
}
