// Package operation holds the commands that run one pipeline operation.
package operation

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxmeter/cmd/voxmeter/cmd/bootstrap"
	"voxmeter/internal/app/pipeline"
)

type options struct {
	req      pipeline.Request
	async    bool
	progress bool
}

type definition struct {
	op    pipeline.Operation
	use   string
	short string
	long  string
}

var definitions = []definition{
	{
		op:    pipeline.OpTranscribe,
		use:   "transcribe",
		short: "Transcribe a stored audio or video file",
		long: `Transcribe a stored audio or video file

- The source is converted to 16 kHz mono WAV
- With --segment-seconds it is cut into windows transcribed concurrently
- With --double-model the secondary transcriber runs on the same segments`,
	},
	{
		op:    pipeline.OpTranslate,
		use:   "translate",
		short: "Translate a stored transcript into --target-language",
	},
	{
		op:    pipeline.OpDetectLanguage,
		use:   "detect",
		short: "Detect the spoken language from the first seconds of a file",
	},
	{
		op:    pipeline.OpSplit,
		use:   "split",
		short: "Split a file into --segment-seconds windows and store them as a zip",
	},
	{
		op:    pipeline.OpConvert,
		use:   "convert",
		short: "Convert a file to canonical WAV and store it",
	},
}

// Commands returns one command per pipeline operation.
func Commands() []*cobra.Command {
	cmds := make([]*cobra.Command, 0, len(definitions))
	for _, s := range definitions {
		cmds = append(cmds, newCommand(s))
	}
	return cmds
}

func newCommand(s definition) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   s.use,
		Short: s.short,
		Long:  s.long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, s.op, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.req.FileURL, "file-url", "", "source object URL (s3://bucket/key or http(s))")
	f.StringVar(&opts.req.BlobKey, "blob-key", "", "source key in the configured bucket")
	f.StringVar(&opts.req.FileID, "file-id", "", "file row whose status is tracked")
	f.StringVar(&opts.req.OrganizationID, "org", "", "organization billed for the work")
	f.StringVar(&opts.req.UserID, "user", "", "user recorded on ledger rows")
	f.StringVar(&opts.req.OperationID, "operation-id", "", "reuse the id of a failed run to avoid double billing")
	f.BoolVar(&opts.async, "async", false, "enqueue the operation for a worker instead of running it")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("user")
	cmd.MarkFlagsOneRequired("file-url", "blob-key")
	cmd.MarkFlagsMutuallyExclusive("file-url", "blob-key")

	switch s.op {
	case pipeline.OpTranscribe:
		f.StringVarP(&opts.req.Language, "language", "l", "", "source language hint")
		f.BoolVar(&opts.req.DoubleModel, "double-model", false, "also run the secondary transcriber")
		f.IntVar(&opts.req.SegmentSeconds, "segment-seconds", 0, "segment window in seconds, 0 sends the file whole")
		f.BoolVar(&opts.progress, "progress", true, "show per-provider progress bars on stderr")
	case pipeline.OpTranslate:
		f.StringVarP(&opts.req.Language, "language", "l", "", "source language")
		f.StringVarP(&opts.req.TargetLanguage, "target-language", "t", "", "language to translate into")
		f.BoolVar(&opts.req.DoubleModel, "double-model", false, "also run the secondary translator")
		_ = cmd.MarkFlagRequired("target-language")
	case pipeline.OpSplit:
		f.IntVar(&opts.req.SegmentSeconds, "segment-seconds", 0, "segment window in seconds")
		_ = cmd.MarkFlagRequired("segment-seconds")
	}
	return cmd
}

func run(cmd *cobra.Command, op pipeline.Operation, opts *options) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, cleanup, err := bootstrap.Setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := application.Logger.Named("cli")

	if opts.async {
		job, err := application.Queue.Enqueue(ctx, op, &opts.req)
		if err != nil {
			return err
		}
		logger.Info("operation queued", zap.String("job_id", job.ID), zap.String("operation_id", job.Request.OperationID))
		return printJSON(cmd, map[string]string{
			"jobId":       job.ID,
			"operationId": job.Request.OperationID,
			"status":      "queued",
		})
	}

	p := application.Pipeline
	var bars *pipeline.BarProgress
	if opts.progress {
		bars = pipeline.NewBarProgress(pipeline.ProgressConfig{Enabled: true, Writer: cmd.ErrOrStderr()})
		p = p.WithProgress(bars)
	}
	resp, err := p.Run(ctx, op, &opts.req)
	if bars != nil {
		bars.Wait()
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}
	return printJSON(cmd, resp)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
