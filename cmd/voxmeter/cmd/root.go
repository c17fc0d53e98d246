package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"voxmeter/cmd/voxmeter/cmd/bootstrap"
	"voxmeter/cmd/voxmeter/cmd/files"
	"voxmeter/cmd/voxmeter/cmd/operation"
	"voxmeter/cmd/voxmeter/cmd/serve"
	"voxmeter/cmd/voxmeter/cmd/usage"
	"voxmeter/cmd/voxmeter/cmd/version"
	"voxmeter/cmd/voxmeter/cmd/worker"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "voxmeter",
	Short: "Convert, split, transcribe, translate and language-detect stored media, with per-call billing",
	Long: `Convert, split, transcribe, translate and language-detect stored media.

- Every provider call is priced and written to the usage ledger
- Operations run inline from the CLI, behind the HTTP API (serve) or from the Redis queue (worker)
- Artifacts are written back to the configured object store`,
	SilenceUsage:     true,
	TraverseChildren: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	for _, c := range operation.Commands() {
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(worker.Cmd)
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(usage.Cmd)
	rootCmd.AddCommand(files.Cmd)
	rootCmd.AddCommand(version.Cmd)

	bootstrap.AddFlags(rootCmd)
}
