package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/samber/lo"

	"voxmeter/internal/app/errors"
	"voxmeter/internal/app/model"
)

// Line aggregates the ledger rows of one (service, provider, currency).
type Line struct {
	Service  string  `json:"service"`
	Provider string  `json:"provider"`
	Currency string  `json:"currency"`
	Calls    int     `json:"calls"`
	Tokens   int     `json:"tokens"`
	Minutes  float64 `json:"minutes"`
	Bytes    int64   `json:"bytes"`
	Cost     float64 `json:"cost"`
}

// Summary is the usage of one organization over [From, To).
type Summary struct {
	OrganizationID string               `json:"organizationId"`
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
	Lines          []Line               `json:"lines"`
	TotalCost      map[string]float64   `json:"totalCost"` // per currency
	Rows           []model.ServiceUsage `json:"-"`
}

// Totals sums ledger rows; there is no running counter to drift.
func (l *Ledger) Totals(ctx context.Context, orgID string, from, to time.Time) (*Summary, error) {
	rows, err := l.repo.ListUsage(ctx, orgID, from, to)
	if err != nil {
		return nil, errors.WrapKind(errors.KindPersistenceFailure, err, "usage query failed")
	}
	return Summarize(orgID, from, to, rows), nil
}

// Summarize groups rows by service, provider and currency.
func Summarize(orgID string, from, to time.Time, rows []model.ServiceUsage) *Summary {
	groups := lo.GroupBy(rows, func(u model.ServiceUsage) Line {
		return Line{Service: u.Service, Provider: u.Provider, Currency: u.Currency}
	})

	lines := make([]Line, 0, len(groups))
	for key, group := range groups {
		line := key
		line.Calls = len(group)
		line.Tokens = lo.SumBy(group, func(u model.ServiceUsage) int { return u.TokensUsed })
		line.Minutes = lo.SumBy(group, func(u model.ServiceUsage) float64 { return u.AudioDurationMinutes })
		line.Bytes = lo.SumBy(group, func(u model.ServiceUsage) int64 { return u.Bytes })
		line.Cost = Round2(lo.SumBy(group, func(u model.ServiceUsage) float64 { return u.Cost }))
		lines = append(lines, line)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Service != lines[j].Service {
			return lines[i].Service < lines[j].Service
		}
		if lines[i].Provider != lines[j].Provider {
			return lines[i].Provider < lines[j].Provider
		}
		return lines[i].Currency < lines[j].Currency
	})

	total := make(map[string]float64)
	for _, line := range lines {
		total[line.Currency] = Round2(total[line.Currency] + line.Cost)
	}

	return &Summary{
		OrganizationID: orgID,
		From:           from,
		To:             to,
		Lines:          lines,
		TotalCost:      total,
		Rows:           rows,
	}
}
