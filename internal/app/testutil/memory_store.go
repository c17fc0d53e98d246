package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"voxmeter/internal/app/model"
	"voxmeter/internal/app/repository"
)

// MemoryStore is a repository.Store kept in maps.
type MemoryStore struct {
	mu      sync.Mutex
	files   map[string]model.File
	pricing []model.ServicePricing
	usage   []model.ServiceUsage
	nextID  int64

	// FailInsert, when set, is returned by InsertUsage.
	FailInsert error
	// FailStatus, when set, is returned by UpdateStatus and UpdateArtifact.
	FailStatus error
	// FailDelete, when set, is returned by DeleteFile.
	FailDelete error
}

var _ repository.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{files: make(map[string]model.File)}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// SeedPricing appends pricing rows.
func (s *MemoryStore) SeedPricing(rows ...model.ServicePricing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range rows {
		row.ID = s.id()
		s.pricing = append(s.pricing, row)
	}
}

// CreateFile stores f.
func (s *MemoryStore) CreateFile(_ context.Context, f *model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.files[f.ID]; exists {
		return fmt.Errorf("file %s already exists", f.ID)
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	s.files[f.ID] = *f
	return nil
}

// GetFile returns a copy of the stored file.
func (s *MemoryStore) GetFile(_ context.Context, id string) (*model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

// UpdateStatus sets one status field.
func (s *MemoryStore) UpdateStatus(_ context.Context, id string, field model.StatusField, status model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStatus != nil {
		return s.FailStatus
	}
	f, ok := s.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	switch field {
	case model.FieldFile:
		f.Status = status
	case model.FieldTranscript:
		f.TranscriptStatus = status
	case model.FieldTranslation:
		f.TranslationStatus = status
	default:
		return fmt.Errorf("unknown status field %q", field)
	}
	f.UpdatedAt = time.Now().UTC()
	s.files[id] = f
	return nil
}

// UpdateArtifact sets the artifact key of field and marks it available.
func (s *MemoryStore) UpdateArtifact(_ context.Context, id string, field model.StatusField, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailStatus != nil {
		return s.FailStatus
	}
	f, ok := s.files[id]
	if !ok {
		return repository.ErrNotFound
	}
	switch field {
	case model.FieldTranscript:
		f.TranscriptionArtifactKey = key
		f.TranscriptStatus = model.StatusAvailable
	case model.FieldTranslation:
		f.TranslationArtifactKey = key
		f.TranslationStatus = model.StatusAvailable
	default:
		return fmt.Errorf("status field %q has no artifact", field)
	}
	f.UpdatedAt = time.Now().UTC()
	s.files[id] = f
	return nil
}

// ListFiles returns orgID's files, newest first.
func (s *MemoryStore) ListFiles(_ context.Context, orgID string) ([]model.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.File
	for _, f := range s.files {
		if f.OrganizationID == orgID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteFile removes a file.
func (s *MemoryStore) DeleteFile(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return s.FailDelete
	}
	if _, ok := s.files[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.files, id)
	return nil
}

// ActivePricing returns active rows of orgID and global rows for service.
func (s *MemoryStore) ActivePricing(_ context.Context, orgID, service string) ([]model.ServicePricing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ServicePricing
	for _, p := range s.pricing {
		if p.IsActive && p.Service == service && (p.OrganizationID == orgID || p.OrganizationID == "") {
			out = append(out, p)
		}
	}
	return out, nil
}

// CreatePricing appends p.
func (s *MemoryStore) CreatePricing(_ context.Context, p *model.ServicePricing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	p.CreatedAt = time.Now().UTC()
	s.pricing = append(s.pricing, *p)
	return nil
}

// InsertUsage appends u unless its idempotency key exists.
func (s *MemoryStore) InsertUsage(_ context.Context, u *model.ServiceUsage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailInsert != nil {
		return false, s.FailInsert
	}
	for _, row := range s.usage {
		if row.IdempotencyKey == u.IdempotencyKey {
			return false, nil
		}
	}
	u.ID = s.id()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.usage = append(s.usage, *u)
	return true, nil
}

// GetUsageByKey returns the row written under key.
func (s *MemoryStore) GetUsageByKey(_ context.Context, key string) (*model.ServiceUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.usage {
		if row.IdempotencyKey == key {
			r := row
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

// ListUsage returns orgID's rows created in [from, to), oldest first.
func (s *MemoryStore) ListUsage(_ context.Context, orgID string, from, to time.Time) ([]model.ServiceUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ServiceUsage
	for _, row := range s.usage {
		if row.OrganizationID != orgID {
			continue
		}
		if row.CreatedAt.Before(from) || !row.CreatedAt.Before(to) {
			continue
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Usage returns a snapshot of every ledger row.
func (s *MemoryStore) Usage() []model.ServiceUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ServiceUsage(nil), s.usage...)
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
