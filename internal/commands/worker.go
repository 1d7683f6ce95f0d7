package commands

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/logger"
	"logamizer/internal/pipeline"
	"logamizer/internal/process"
	"logamizer/internal/queue"
	"logamizer/internal/telemetry"
	"logamizer/internal/ui"
)

// NewWorkerCmd creates the worker command
func NewWorkerCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the pipeline worker pool",
		Long: `Run the worker pool that drains the job queue.

Workers pull ingest, reanalyze and analyze_errors jobs from redis, hold a
per-file lock while processing, and publish progress back to redis.
Prometheus metrics are served on --listen; OTLP export starts when
otlp_endpoint is configured.

To run in background:
  nohup logamizer worker > /dev/null 2>&1 &`,
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Worker")

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				ui.PrintSectionEnd()
				return
			}

			lock, err := process.Acquire()
			if err != nil {
				ui.PrintStatus("error", err.Error())
				ui.PrintSectionEnd()
				return
			}
			defer lock.Release()

			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				ui.PrintSectionEnd()
				return
			}
			defer db.Close()

			blobs, err := openBlobs(cfg)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to open blob store: %v", err))
				ui.PrintSectionEnd()
				return
			}

			q, err := openQueue(cfg)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to connect to redis: %v", err))
				ui.PrintSectionEnd()
				return
			}
			defer q.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := q.Ping(ctx); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Redis unreachable at %s: %v", cfg.RedisAddr, err))
				ui.PrintSectionEnd()
				return
			}

			if cfg.OTLPEndpoint != "" {
				err := telemetry.StartOTelExporter(&telemetry.OTelConfig{
					Endpoint:  cfg.OTLPEndpoint,
					AuthToken: cfg.OTLPAuthToken,
				})
				if err != nil {
					ui.PrintStatus("warning", fmt.Sprintf("OTLP export disabled: %v", err))
				} else {
					ui.PrintStatus("success", fmt.Sprintf("OTLP export to %s", cfg.OTLPEndpoint))
					defer telemetry.StopOTelExporter()
				}
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			srv := &http.Server{Addr: listen, Handler: mux}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("Metrics server failed: %v", err)
				}
			}()
			defer srv.Shutdown(context.Background())

			sink := queue.NewAsyncSink(q)
			defer sink.Close()
			driver := pipeline.New(st, blobs, sink)

			pool := queue.NewWorkerPool(q, cfg.Workers, func(ctx context.Context, job *queue.Job) error {
				switch job.Kind {
				case queue.KindIngest:
					return driver.RunIngest(ctx, job.ID, job.LogFileID)
				case queue.KindReanalyze:
					return driver.Reanalyze(ctx, job.ID, job.SiteID, job.From, job.To)
				case queue.KindAnalyzeErrors:
					return driver.AnalyzeErrors(ctx, job.ID, job.LogFileID)
				}
				return fmt.Errorf("unknown job kind %q", job.Kind)
			})

			ui.PrintStatus("success", fmt.Sprintf("Worker pool started with %d workers", cfg.Workers))
			ui.PrintStatus("info", fmt.Sprintf("Metrics on http://%s/metrics", listen))
			ui.PrintSectionEnd()

			pool.Run(ctx)
			logger.Info("Worker pool drained, shutting down")
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9180", "Prometheus metrics listen address")
	return cmd
}
