// Package ledger prices provider work and appends it to the usage ledger.
package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/metrics"
	"voxmeter/internal/app/model"
	"voxmeter/internal/app/repository"
)

// Entry describes one billable invocation.
type Entry struct {
	// IdempotencyKey identifies the attempt; see Key.
	IdempotencyKey string
	OrganizationID string
	UserID         string
	Service        string
	Provider       string
	Tokens         int
	AudioSeconds   float64
	Bytes          int64
	Status         string
	Metadata       map[string]any
}

// Charge is the priced result of an Entry.
type Charge struct {
	UsageID   int64   `json:"usageId"`
	Cost      float64 `json:"cost"`
	Currency  string  `json:"currency"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

// Repository is the persistence the ledger needs.
type Repository interface {
	repository.PricingRepository
	repository.UsageRepository
}

// Ledger resolves pricing and appends usage rows. It never updates a row,
// so concurrent callers need no coordination.
type Ledger struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a Ledger.
func New(repo Repository, m *metrics.Metrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{repo: repo, metrics: m, logger: logger.Named("ledger")}
}

// Scope namespaces the keys of one operation attempt by tenant, request
// fingerprint and attempt number. A retried attempt bills its calls again.
func Scope(orgID, operationID, fingerprint string, attempt int) string {
	return fmt.Sprintf("%s/%s/%s/a%d", orgID, operationID, fingerprint, attempt)
}

// Key builds the idempotency key of one provider call within scope.
func Key(scope, step, providerName string, index int) string {
	return fmt.Sprintf("%s/%s/%s/%d", scope, step, providerName, index)
}

// Quote resolves the single active pricing row for the lookup. Callers use
// it before an expensive provider call so that missing pricing aborts the
// operation before money is spent.
func (l *Ledger) Quote(ctx context.Context, orgID, service, providerName string) (*model.ServicePricing, error) {
	rows, err := l.repo.ActivePricing(ctx, orgID, service)
	if err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "pricing lookup failed")
	}
	return resolve(rows, orgID, service, providerName)
}

// resolve picks the most specific match: organization before global, then
// provider-specific before provider-agnostic. More than one row at the
// winning level is ambiguous.
func resolve(rows []model.ServicePricing, orgID, service, providerName string) (*model.ServicePricing, error) {
	type level struct{ org, provider string }
	levels := []level{{orgID, providerName}, {orgID, ""}, {"", providerName}, {"", ""}}
	if providerName == "" {
		levels = []level{{orgID, ""}, {"", ""}}
	}

	for _, lv := range levels {
		var matches []model.ServicePricing
		for _, row := range rows {
			if row.IsActive && row.OrganizationID == lv.org && strings.EqualFold(row.Provider, lv.provider) {
				matches = append(matches, row)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return &matches[0], nil
		default:
			return nil, errors.Wrapf(errors.ErrPricingAmbiguous,
				"org=%s service=%s provider=%s", orgID, service, providerName)
		}
	}
	return nil, errors.Wrapf(errors.ErrPricingNotFound,
		"org=%s service=%s provider=%s", orgID, service, providerName)
}

// Cost evaluates tokens*pricePerToken + minutes*pricePerMinute and rounds
// the sum once to two decimals.
func Cost(p model.ServicePricing, tokens int, audioSeconds float64) float64 {
	raw := float64(tokens)*p.PricePerToken + (audioSeconds/60)*p.PricePerMinute
	return Round2(raw)
}

// Round2 rounds half away from zero to two decimals.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// PriceAndLog prices e and appends one usage row. A key that was already
// written returns the stored charge without inserting again. Missing
// pricing fails with PricingNotFound and writes nothing.
func (l *Ledger) PriceAndLog(ctx context.Context, e Entry) (*Charge, error) {
	if e.IdempotencyKey == "" {
		return nil, errors.RequiredField("idempotency key")
	}

	existing, err := l.repo.GetUsageByKey(ctx, e.IdempotencyKey)
	if err == nil {
		if err := sameOwner(existing, e); err != nil {
			return nil, err
		}
		l.logger.Info("usage already recorded", zap.String("idempotency_key", e.IdempotencyKey))
		l.metrics.AddBilledCost(existing.Service, existing.Provider, existing.Currency, existing.Cost, true)
		return chargeOf(existing, true), nil
	}
	if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "usage lookup failed")
	}

	pricing, err := l.Quote(ctx, e.OrganizationID, e.Service, e.Provider)
	if err != nil {
		return nil, err
	}

	status := e.Status
	if status == "" {
		status = model.UsageStatusSuccess
	}
	metadata := ""
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "invalid request metadata")
		}
		metadata = string(raw)
	}

	usage := &model.ServiceUsage{
		IdempotencyKey:       e.IdempotencyKey,
		OrganizationID:       e.OrganizationID,
		UserID:               e.UserID,
		Service:              e.Service,
		Provider:             e.Provider,
		TokensUsed:           e.Tokens,
		AudioDurationMinutes: e.AudioSeconds / 60,
		Bytes:                e.Bytes,
		Cost:                 Cost(*pricing, e.Tokens, e.AudioSeconds),
		Currency:             pricing.Currency,
		Status:               status,
		RequestMetadata:      metadata,
	}

	inserted, err := l.repo.InsertUsage(ctx, usage)
	if err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "usage write failed")
	}
	if !inserted {
		// lost a race with a concurrent retry of the same attempt
		stored, err := l.repo.GetUsageByKey(ctx, e.IdempotencyKey)
		if err != nil {
			return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "usage lookup failed")
		}
		if err := sameOwner(stored, e); err != nil {
			return nil, err
		}
		l.metrics.AddBilledCost(stored.Service, stored.Provider, stored.Currency, stored.Cost, true)
		return chargeOf(stored, true), nil
	}

	l.logger.Debug("usage recorded",
		zap.String("idempotency_key", usage.IdempotencyKey),
		zap.String("service", usage.Service),
		zap.String("provider", usage.Provider),
		zap.Float64("cost", usage.Cost),
		zap.String("currency", usage.Currency))
	l.metrics.AddBilledCost(usage.Service, usage.Provider, usage.Currency, usage.Cost, false)
	return chargeOf(usage, false), nil
}

// sameOwner rejects a stored row that was written for a different tenant,
// user or billed call than e.
func sameOwner(u *model.ServiceUsage, e Entry) error {
	if u.OrganizationID == e.OrganizationID && u.UserID == e.UserID &&
		u.Service == e.Service && strings.EqualFold(u.Provider, e.Provider) {
		return nil
	}
	return errors.Wrapf(errors.ErrKeyConflict, "key=%s", e.IdempotencyKey)
}

func chargeOf(u *model.ServiceUsage, duplicate bool) *Charge {
	return &Charge{UsageID: u.ID, Cost: u.Cost, Currency: u.Currency, Duplicate: duplicate}
}
