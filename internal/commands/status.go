package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/ui"
)

// NewStatusCmd creates the status command
func NewStatusCmd() *cobra.Command {
	var siteID string
	var hours int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a site's traffic report and findings",
		Long: `Show the stored hourly aggregates and open findings for a site.

Examples:
  logamizer status --site <site-id>              # last 24 hours
  logamizer status --site <site-id> --hours 168  # last week`,
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			if siteID == "" {
				ui.PrintStatus("error", "Pass the site with --site")
				return
			}

			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			ctx := cmd.Context()
			site, err := st.GetSite(ctx, siteID)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load site: %v", err))
				return
			}

			to := time.Now().UTC().Truncate(time.Hour).Add(time.Hour)
			from := to.Add(-time.Duration(hours) * time.Hour)

			rows, err := st.GetAggregates(ctx, site.ID, from, to)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load aggregates: %v", err))
				return
			}

			ui.PrintSection(fmt.Sprintf("%s - last %dh", site.Name, hours))
			ui.PrintAggregates(rows)
			ui.PrintSectionEnd()

			findings, err := st.GetFindings(ctx, site.ID)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load findings: %v", err))
				return
			}
			ui.PrintSection("Findings")
			ui.PrintFindings(findings)
			ui.PrintSectionEnd()
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "Site id")
	cmd.Flags().IntVar(&hours, "hours", 24, "Report window in hours")
	return cmd
}
