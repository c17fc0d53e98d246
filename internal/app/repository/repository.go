package repository

import (
	"context"
	"errors"
	"time"

	"voxmeter/internal/app/model"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("record not found")

// FileRepository persists artifact rows.
type FileRepository interface {
	CreateFile(ctx context.Context, file *model.File) error
	GetFile(ctx context.Context, id string) (*model.File, error)
	UpdateStatus(ctx context.Context, id string, field model.StatusField, status model.Status) error
	UpdateArtifact(ctx context.Context, id string, field model.StatusField, artifactKey string) error
	// ListFiles returns the files of orgID, newest first.
	ListFiles(ctx context.Context, orgID string) ([]model.File, error)
	DeleteFile(ctx context.Context, id string) error
}

// PricingRepository reads pricing rows.
type PricingRepository interface {
	// ActivePricing returns every active row for service that applies to
	// orgID: rows of that organization and global rows.
	ActivePricing(ctx context.Context, orgID, service string) ([]model.ServicePricing, error)
	CreatePricing(ctx context.Context, pricing *model.ServicePricing) error
}

// UsageRepository appends and reads ledger rows. Rows are never updated.
type UsageRepository interface {
	// InsertUsage writes usage unless its idempotency key already exists;
	// inserted reports which happened.
	InsertUsage(ctx context.Context, usage *model.ServiceUsage) (inserted bool, err error)
	GetUsageByKey(ctx context.Context, idempotencyKey string) (*model.ServiceUsage, error)
	ListUsage(ctx context.Context, orgID string, from, to time.Time) ([]model.ServiceUsage, error)
}

// Store is the full relational boundary.
type Store interface {
	FileRepository
	PricingRepository
	UsageRepository
	Close() error
}
