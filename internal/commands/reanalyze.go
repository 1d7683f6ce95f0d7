package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/queue"
	"logamizer/internal/ui"
)

// NewReanalyzeCmd creates the reanalyze command
func NewReanalyzeCmd() *cobra.Command {
	var siteID, fromStr, toStr string

	cmd := &cobra.Command{
		Use:   "reanalyze",
		Short: "Rebuild derived data for a site over a time range",
		Long: `Drop and rebuild aggregates and findings for a site over a time
range, replaying every completed log file through the current site settings.

Use it after changing hidden IPs, the log format, or after a rule update.
The range is truncated to hour boundaries. Unique counts become exact for
the rebuilt hours.

Examples:
  logamizer reanalyze --site <site-id> --from 2026-08-01T00:00:00Z --to 2026-08-24T00:00:00Z`,
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Reanalyze")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			if siteID == "" {
				ui.PrintStatus("error", "Pass the site with --site")
				return
			}
			from, err := time.Parse(time.RFC3339, fromStr)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Invalid --from: %v", err))
				return
			}
			to, err := time.Parse(time.RFC3339, toStr)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Invalid --to: %v", err))
				return
			}
			if !to.After(from) {
				ui.PrintStatus("error", "--to must be after --from")
				return
			}

			q, err := openQueue(cfg)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to connect to redis: %v", err))
				return
			}
			defer q.Close()

			job := &queue.Job{
				ID:     uuid.NewString(),
				Kind:   queue.KindReanalyze,
				SiteID: siteID,
				From:   from.UTC(),
				To:     to.UTC(),
			}
			if err := q.Enqueue(cmd.Context(), job); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to enqueue job: %v", err))
				return
			}
			ui.PrintStatus("success", fmt.Sprintf("Queued reanalyze job %s", job.ID))
			ui.PrintStatus("info", fmt.Sprintf("Track it with 'logamizer progress %s'", job.ID))
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "Site id")
	cmd.Flags().StringVar(&fromStr, "from", "", "Range start (RFC3339)")
	cmd.Flags().StringVar(&toStr, "to", "", "Range end (RFC3339)")
	return cmd
}
