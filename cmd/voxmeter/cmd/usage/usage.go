// Package usage reports the usage ledger.
package usage

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxmeter/cmd/voxmeter/cmd/bootstrap"
	"voxmeter/internal/app/ledger/export"
)

var (
	orgID          string
	from, to       string
	outputFilePath string
)

func init() {
	exportCmd.Flags().StringVar(&orgID, "org", "", "organization to report")
	exportCmd.Flags().StringVar(&from, "from", "", "start of the window, RFC 3339 or YYYY-MM-DD (default: start of the month)")
	exportCmd.Flags().StringVar(&to, "to", "", "end of the window, exclusive (default: now)")
	exportCmd.Flags().StringVarP(&outputFilePath, "outputFilePath", "o", "", "xlsx file to write")

	_ = exportCmd.MarkFlagRequired("org")
	_ = exportCmd.MarkFlagRequired("outputFilePath")

	Cmd.AddCommand(exportCmd)
}

// Cmd groups the usage subcommands.
var Cmd = &cobra.Command{
	Use:   "usage",
	Short: "Inspect the usage ledger",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an organization's usage to excel",
	Long: `Export an organization's usage to excel

- The Summary sheet groups calls by service, provider and currency
- The Usage sheet lists every ledger row of the window`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := Window(from, to, time.Now())
		if err != nil {
			return err
		}

		application, cleanup, err := bootstrap.Setup(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		summary, err := application.Ledger.Totals(cmd.Context(), orgID, start, end)
		if err != nil {
			return err
		}
		if err := export.ToFile(outputFilePath, summary); err != nil {
			return err
		}
		application.Logger.Info("usage exported",
			zap.String("org_id", orgID),
			zap.Int("rows", len(summary.Rows)),
			zap.String("path", outputFilePath))
		fmt.Fprintf(cmd.OutOrStdout(), "export finished, exported file path: %v\n", outputFilePath)
		return nil
	},
}

// Window parses the export range. An empty end means now and an empty start
// means the first day of end's month.
func Window(fromArg, toArg string, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC()
	if toArg != "" {
		t, err := parseTime(toArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to: %w", err)
		}
		end = t
	}
	start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	if fromArg != "" {
		t, err := parseTime(fromArg)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from: %w", err)
		}
		start = t
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must be before --to")
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, s)
}
