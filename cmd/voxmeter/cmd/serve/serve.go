package serve

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"voxmeter/cmd/voxmeter/cmd/bootstrap"
	"voxmeter/internal/api/server"
	v1routes "voxmeter/internal/api/v1/routes"
	"voxmeter/internal/api/v1/services"
	"voxmeter/internal/app/queue"
)

var (
	addr       string
	withWorker bool
	grace      time.Duration
)

func init() {
	Cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	Cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also drain the job queue in this process")
	Cmd.Flags().DurationVar(&grace, "shutdown-grace", 30*time.Second, "time allowed for in-flight requests on shutdown")
}

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP",
	Long: `Serve the pipeline over HTTP

- POST /api/v1/{transcribe,translate,detect-language,split,convert} (add ?async=true to queue)
- GET /api/v1/usage and POST /api/v1/uploads/presign
- GET, POST .../complete and DELETE /api/v1/files[/:id]
- /health and /metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, cleanup, err := bootstrap.Setup(ctx, cmd)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg := application.Config
		if addr != "" {
			cfg.Server.Addr = addr
		}
		container := &v1routes.ServiceContainer{
			Operations: application.Pipeline,
			Jobs:       application.Queue,
			Usage:      application.Ledger,
			Uploads:    services.NewUploadService(application.Store, application.Files, cfg.Storage.Bucket, cfg.Storage.PresignExpiry),
			Files:      application.Files,
		}
		srv := server.NewServer(cfg.Server, cfg.Log.Development, container, prometheus.DefaultGatherer, application.Logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.Run(gctx, grace)
		})
		if withWorker {
			w := queue.NewWorker(application.Queue, application.Pipeline, application.Metrics, application.Logger, queue.DefaultRetryBackoff)
			g.Go(func() error {
				w.Run(gctx)
				return nil
			})
		}
		return g.Wait()
	},
}
