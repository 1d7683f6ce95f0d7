package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/queue"
	"logamizer/internal/ui"
)

// NewProgressCmd creates the progress command
func NewProgressCmd() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "progress <job-id>",
		Short: "Show a queued job's progress",
		Long: `Show the progress a worker has published for a job.

With --watch the command polls until the job reaches 100%.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Job Progress")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			q, err := openQueue(cfg)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to connect to redis: %v", err))
				return
			}
			defer q.Close()

			ctx := cmd.Context()
			jobID := args[0]

			if watch {
				err := ui.RunSpinnerTask("Waiting for job "+jobID, func() (string, error) {
					for {
						p, err := q.GetProgress(ctx, jobID)
						if err != nil {
							return "", err
						}
						if p != nil && p.Percent >= 100 {
							return fmt.Sprintf("Job finished: %s", p.Message), nil
						}
						select {
						case <-ctx.Done():
							return "", ctx.Err()
						case <-time.After(time.Second):
						}
					}
				})
				if err != nil {
					ui.PrintStatus("error", fmt.Sprintf("Watch failed: %v", err))
				}
				return
			}

			p, err := q.GetProgress(ctx, jobID)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to read progress: %v", err))
				return
			}
			printProgress(p)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the job completes")
	return cmd
}

func printProgress(p *queue.Progress) {
	if p == nil {
		ui.PrintStatus("info", "No progress recorded, the job is queued, expired or unknown")
		return
	}
	fmt.Printf("  %s %d%%\n", ui.RenderProgressBar(float64(p.Percent), 40), p.Percent)
	if p.Message != "" {
		ui.PrintStatus("info", p.Message)
	}
}
