// Package services holds the capabilities the v1 handlers depend on.
package services

import (
	"context"
	"time"

	"voxmeter/internal/api/v1/dto"
	"voxmeter/internal/app/files"
	"voxmeter/internal/app/ledger"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/pipeline"
	"voxmeter/internal/app/queue"
)

// OperationService runs pipeline operations inline.
type OperationService interface {
	Run(ctx context.Context, op pipeline.Operation, req *pipeline.Request) (*pipeline.Response, error)
}

// JobService queues pipeline operations for a worker.
type JobService interface {
	Enqueue(ctx context.Context, op pipeline.Operation, req *pipeline.Request) (*queue.Job, error)
}

// UsageService sums the usage ledger.
type UsageService interface {
	Totals(ctx context.Context, orgID string, from, to time.Time) (*ledger.Summary, error)
}

// UploadService hands out direct upload URLs.
type UploadService interface {
	PresignUpload(ctx context.Context, req *dto.PresignUploadRequest) (*dto.PresignUploadResponse, error)
}

// FileService manages registered sources and their artifacts.
type FileService interface {
	Register(ctx context.Context, reg files.Registration) (*model.File, error)
	Confirm(ctx context.Context, orgID, id string) (*model.File, error)
	Get(ctx context.Context, orgID, id string) (*model.File, error)
	List(ctx context.Context, orgID string) ([]model.File, error)
	Delete(ctx context.Context, orgID, id string) error
}
