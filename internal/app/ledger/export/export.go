// Package export writes ledger summaries as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/tealeg/xlsx"

	"voxmeter/internal/app/ledger"
)

// Sheet names.
const (
	SummarySheet = "Summary"
	UsageSheet   = "Usage"
)

var (
	summaryHeader = []string{"Service", "Provider", "Currency", "Calls", "Tokens", "Minutes", "Bytes", "Cost"}
	usageHeader   = []string{"ID", "Created At", "Service", "Provider", "User", "Tokens", "Minutes", "Bytes",
		"Cost", "Currency", "Status", "Idempotency Key"}
)

// Workbook builds a workbook with one line per (service, provider,
// currency) and one row per ledger entry.
func Workbook(s *ledger.Summary) (*xlsx.File, error) {
	file := xlsx.NewFile()

	summary, err := file.AddSheet(SummarySheet)
	if err != nil {
		return nil, fmt.Errorf("failed to add summary sheet: %w", err)
	}
	addHeader(summary, summaryHeader)
	for _, line := range s.Lines {
		row := summary.AddRow()
		row.AddCell().Value = line.Service
		row.AddCell().Value = line.Provider
		row.AddCell().Value = line.Currency
		row.AddCell().SetInt(line.Calls)
		row.AddCell().SetInt(line.Tokens)
		row.AddCell().SetFloat(line.Minutes)
		row.AddCell().SetInt(int(line.Bytes))
		row.AddCell().SetFloat(line.Cost)
	}
	currencies := lo.Keys(s.TotalCost)
	sort.Strings(currencies)
	for _, currency := range currencies {
		row := summary.AddRow()
		row.AddCell().Value = "Total"
		row.AddCell()
		row.AddCell().Value = currency
		row.AddCell()
		row.AddCell()
		row.AddCell()
		row.AddCell()
		row.AddCell().SetFloat(s.TotalCost[currency])
	}

	usage, err := file.AddSheet(UsageSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to add usage sheet: %w", err)
	}
	addHeader(usage, usageHeader)
	for _, u := range s.Rows {
		row := usage.AddRow()
		row.AddCell().SetInt(int(u.ID))
		row.AddCell().Value = u.CreatedAt.Format(time.RFC3339)
		row.AddCell().Value = u.Service
		row.AddCell().Value = u.Provider
		row.AddCell().Value = u.UserID
		row.AddCell().SetInt(u.TokensUsed)
		row.AddCell().Value = fmt.Sprintf("%.4f", u.AudioDurationMinutes)
		row.AddCell().SetInt(int(u.Bytes))
		row.AddCell().Value = fmt.Sprintf("%.2f", u.Cost)
		row.AddCell().Value = u.Currency
		row.AddCell().Value = u.Status
		row.AddCell().Value = u.IdempotencyKey
	}
	return file, nil
}

func addHeader(sheet *xlsx.Sheet, names []string) {
	row := sheet.AddRow()
	for _, name := range names {
		row.AddCell().Value = name
	}
}

// Write streams the workbook of s to w.
func Write(w io.Writer, s *ledger.Summary) error {
	file, err := Workbook(s)
	if err != nil {
		return err
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// ToFile saves the workbook of s at path.
func ToFile(path string, s *ledger.Summary) error {
	file, err := Workbook(s)
	if err != nil {
		return err
	}
	if err := file.Save(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
