package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"voxmeter/internal/app/model"
)

// PlaceholderFunc generates parameter placeholders for different SQL dialects
type PlaceholderFunc func(n int) string

// SQLStore implements Store over database/sql for postgres and sqlite3.
type SQLStore struct {
	db           *sql.DB
	driverName   string
	placeholders PlaceholderFunc
	now          func() time.Time
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, driverName string) *SQLStore {
	var placeholders PlaceholderFunc

	switch driverName {
	case "postgres":
		placeholders = func(n int) string { return fmt.Sprintf("$%d", n) }
	default:
		placeholders = func(n int) string { return "?" }
	}

	return &SQLStore{
		db:           db,
		driverName:   driverName,
		placeholders: placeholders,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// DB returns the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// DriverName returns the database/sql driver in use.
func (s *SQLStore) DriverName() string {
	return s.driverName
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// bind rewrites ? placeholders in query for the store dialect.
func (s *SQLStore) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.placeholders(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const fileColumns = `id, name, storage_key, organization_id, user_id, status,
	transcript_status, transcription_artifact_key, translation_status, translation_artifact_key,
	created_at, updated_at`

// CreateFile inserts a new artifact row.
func (s *SQLStore) CreateFile(ctx context.Context, f *model.File) error {
	now := s.now()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	query := s.bind(`INSERT INTO files (` + fileColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		f.ID, f.Name, f.StorageKey, f.OrganizationID, f.UserID, string(f.Status),
		string(f.TranscriptStatus), f.TranscriptionArtifactKey, string(f.TranslationStatus), f.TranslationArtifactKey,
		f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file failed: %w", err)
	}
	return nil
}

// GetFile loads one artifact row.
func (s *SQLStore) GetFile(ctx context.Context, id string) (*model.File, error) {
	query := s.bind(`SELECT ` + fileColumns + ` FROM files WHERE id = ?`)

	f, err := scanFile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query file failed: %w", err)
	}
	return f, nil
}

// ListFiles implements FileRepository.
func (s *SQLStore) ListFiles(ctx context.Context, orgID string) ([]model.File, error) {
	query := s.bind(`SELECT ` + fileColumns + ` FROM files WHERE organization_id = ? ORDER BY created_at DESC, id`)
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("query files failed: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("db scan failed: %w", err)
		}
		files = append(files, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return files, nil
}

// DeleteFile removes a file row. Usage rows are kept.
func (s *SQLStore) DeleteFile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.bind(`DELETE FROM files WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete file failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete file failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.File, error) {
	var f model.File
	var status, transcriptStatus, translationStatus string
	var transcriptKey, translationKey sql.NullString
	if err := row.Scan(
		&f.ID, &f.Name, &f.StorageKey, &f.OrganizationID, &f.UserID, &status,
		&transcriptStatus, &transcriptKey, &translationStatus, &translationKey,
		&f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	f.Status = model.Status(status)
	f.TranscriptStatus = model.Status(transcriptStatus)
	f.TranslationStatus = model.Status(translationStatus)
	f.TranscriptionArtifactKey = transcriptKey.String
	f.TranslationArtifactKey = translationKey.String
	return &f, nil
}

// UpdateStatus sets one status column of a file.
func (s *SQLStore) UpdateStatus(ctx context.Context, id string, field model.StatusField, status model.Status) error {
	column, err := model.StatusColumn(field)
	if err != nil {
		return err
	}
	query := s.bind(fmt.Sprintf(`UPDATE files SET %s = ?, updated_at = ? WHERE id = ?`, column))
	return s.execOne(ctx, id, query, string(status), s.now(), id)
}

// UpdateArtifact records the artifact key of field and marks it available.
func (s *SQLStore) UpdateArtifact(ctx context.Context, id string, field model.StatusField, artifactKey string) error {
	statusColumn, err := model.StatusColumn(field)
	if err != nil {
		return err
	}
	artifactColumn, err := model.ArtifactColumn(field)
	if err != nil {
		return err
	}
	query := s.bind(fmt.Sprintf(`UPDATE files SET %s = ?, %s = ?, updated_at = ? WHERE id = ?`, artifactColumn, statusColumn))
	return s.execOne(ctx, id, query, artifactKey, string(model.StatusAvailable), s.now(), id)
}

func (s *SQLStore) execOne(ctx context.Context, id, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update file failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update file failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", id, ErrNotFound)
	}
	return nil
}

// ActivePricing implements PricingRepository.
func (s *SQLStore) ActivePricing(ctx context.Context, orgID, service string) ([]model.ServicePricing, error) {
	query := s.bind(`SELECT id, COALESCE(organization_id, ''), service, COALESCE(provider, ''),
		price_per_token, price_per_minute, unit, currency, is_active, created_at
		FROM service_pricing
		WHERE service = ? AND is_active = ?
		  AND (organization_id = ? OR organization_id IS NULL OR organization_id = '')
		ORDER BY id`)

	rows, err := s.db.QueryContext(ctx, query, service, true, orgID)
	if err != nil {
		return nil, fmt.Errorf("query pricing failed: %w", err)
	}
	defer rows.Close()

	var pricing []model.ServicePricing
	for rows.Next() {
		var p model.ServicePricing
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Service, &p.Provider,
			&p.PricePerToken, &p.PricePerMinute, &p.Unit, &p.Currency, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("db scan failed: %w", err)
		}
		pricing = append(pricing, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return pricing, nil
}

// CreatePricing inserts a pricing row.
func (s *SQLStore) CreatePricing(ctx context.Context, p *model.ServicePricing) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	query := s.bind(`INSERT INTO service_pricing
		(organization_id, service, provider, price_per_token, price_per_minute, unit, currency, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		nullable(p.OrganizationID), p.Service, nullable(p.Provider),
		p.PricePerToken, p.PricePerMinute, p.Unit, p.Currency, p.IsActive, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pricing failed: %w", err)
	}
	return nil
}

const usageColumns = `idempotency_key, organization_id, user_id, service, provider, tokens_used,
	audio_duration_minutes, bytes, cost, currency, status, request_metadata, created_at`

// InsertUsage implements UsageRepository. On insert u.ID is set.
func (s *SQLStore) InsertUsage(ctx context.Context, u *model.ServiceUsage) (bool, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	query := s.bind(`INSERT INTO service_usage (` + usageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`)

	err := s.db.QueryRowContext(ctx, query,
		u.IdempotencyKey, u.OrganizationID, u.UserID, u.Service, nullable(u.Provider), u.TokensUsed,
		u.AudioDurationMinutes, u.Bytes, u.Cost, u.Currency, u.Status, u.RequestMetadata, u.CreatedAt).
		Scan(&u.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert usage failed: %w", err)
	}
	return true, nil
}

// GetUsageByKey implements UsageRepository.
func (s *SQLStore) GetUsageByKey(ctx context.Context, key string) (*model.ServiceUsage, error) {
	query := s.bind(`SELECT id, ` + usageColumns + ` FROM service_usage WHERE idempotency_key = ?`)
	rows, err := s.db.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("query usage failed: %w", err)
	}
	defer rows.Close()

	usage, err := scanUsage(rows)
	if err != nil {
		return nil, err
	}
	if len(usage) == 0 {
		return nil, fmt.Errorf("usage %s: %w", key, ErrNotFound)
	}
	return &usage[0], nil
}

// ListUsage implements UsageRepository. The window is [from, to).
func (s *SQLStore) ListUsage(ctx context.Context, orgID string, from, to time.Time) ([]model.ServiceUsage, error) {
	query := s.bind(`SELECT id, ` + usageColumns + ` FROM service_usage
		WHERE organization_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at, id`)
	rows, err := s.db.QueryContext(ctx, query, orgID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query usage failed: %w", err)
	}
	defer rows.Close()
	return scanUsage(rows)
}

func scanUsage(rows *sql.Rows) ([]model.ServiceUsage, error) {
	var usage []model.ServiceUsage
	for rows.Next() {
		var u model.ServiceUsage
		var provider, metadata sql.NullString
		if err := rows.Scan(&u.ID, &u.IdempotencyKey, &u.OrganizationID, &u.UserID, &u.Service, &provider,
			&u.TokensUsed, &u.AudioDurationMinutes, &u.Bytes, &u.Cost, &u.Currency, &u.Status,
			&metadata, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("db scan failed: %w", err)
		}
		u.Provider = provider.String
		u.RequestMetadata = metadata.String
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return usage, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
