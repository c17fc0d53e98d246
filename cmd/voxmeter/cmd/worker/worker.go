package worker

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"voxmeter/cmd/voxmeter/cmd/bootstrap"
	"voxmeter/internal/app/queue"
)

var (
	concurrency int
	backoff     = queue.DefaultRetryBackoff
)

func init() {
	Cmd.Flags().IntVarP(&concurrency, "concurrency", "n", 1, "jobs processed in parallel")
	Cmd.Flags().DurationVar(&backoff, "retry-backoff", queue.DefaultRetryBackoff, "pause after a failed job")
}

// Cmd represents the worker command
var Cmd = &cobra.Command{
	Use:   "worker",
	Short: "Run queued pipeline operations from Redis",
	Long: `Run queued pipeline operations from Redis

- Jobs are pulled with BLPOP from the queue list
- A failed job keeps its operation id when retried, so finished provider calls are not billed twice
- Jobs that keep failing, or fail permanently, go to the dead-letter list`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, cleanup, err := bootstrap.Setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		if concurrency < 1 {
			concurrency = 1
		}
		w := queue.NewWorker(application.Queue, application.Pipeline, application.Metrics, application.Logger, backoff)
		application.Logger.Info("starting workers", zap.Int("concurrency", concurrency))

		var wg sync.WaitGroup
		for i := 0; i < concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
		wg.Wait()
		return nil
	},
}
