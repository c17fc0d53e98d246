package dto

import (
	"time"

	"voxmeter/internal/api/errors"
)

// Usage export formats.
const (
	FormatJSON = "json"
	FormatXLSX = "xlsx"
)

// UsageQuery selects the ledger window of one organization. From and To
// accept RFC 3339 timestamps or plain dates; To defaults to now and From to
// the start of To's month.
type UsageQuery struct {
	OrganizationID string `form:"organizationId" binding:"required,max=64"`
	From           string `form:"from"`
	To             string `form:"to"`
	Format         string `form:"format" binding:"omitempty,oneof=json xlsx"`

	from, to time.Time
}

// Validate implements middleware.Validator.
func (q *UsageQuery) Validate() error {
	details := make(map[string]string)
	q.to = time.Now().UTC()
	if q.To != "" {
		t, err := parseTime(q.To)
		if err != nil {
			details["to"] = "must be RFC 3339 or YYYY-MM-DD"
		}
		q.to = t
	}
	q.from = time.Date(q.to.Year(), q.to.Month(), 1, 0, 0, 0, 0, time.UTC)
	if q.From != "" {
		t, err := parseTime(q.From)
		if err != nil {
			details["from"] = "must be RFC 3339 or YYYY-MM-DD"
		}
		q.from = t
	}
	if len(details) == 0 && !q.from.Before(q.to) {
		details["from"] = "must be before to"
	}
	if len(details) > 0 {
		return errors.NewValidationError("Invalid usage window", details)
	}
	if q.Format == "" {
		q.Format = FormatJSON
	}
	return nil
}

// Window returns the parsed [from, to) range. Validate must run first.
func (q *UsageQuery) Window() (time.Time, time.Time) {
	return q.from, q.to
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
