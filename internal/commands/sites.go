package commands

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	constants "logamizer/config"
	"logamizer/internal/config"
	"logamizer/internal/model"
	"logamizer/internal/ui"
	"logamizer/pkg/utils"
)

// NewSiteCmd creates the site command group
func NewSiteCmd() *cobra.Command {
	siteCmd := &cobra.Command{
		Use:   "site",
		Short: "Manage sites",
		Long: `Manage the sites log files are ingested for.

Every uploaded log file belongs to a site. A site carries its log format,
its hidden IP list, and its anomaly detection parameters.

Examples:
  logamizer site add --name myshop --domain myshop.example
  logamizer site list
  logamizer site show <site-id>
  logamizer site rm <site-id>`,
	}

	siteCmd.AddCommand(newSiteAddCmd())
	siteCmd.AddCommand(newSiteListCmd())
	siteCmd.AddCommand(newSiteShowCmd())
	siteCmd.AddCommand(newSiteSetCmd())
	siteCmd.AddCommand(newSiteRmCmd())
	return siteCmd
}

func newSiteAddCmd() *cobra.Command {
	var name, domain, format string
	var hiddenIPs []string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new site",
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Add Site")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			if name == "" {
				ui.PrintStatus("error", "A site needs a --name")
				return
			}

			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			site := &model.Site{
				ID:          uuid.NewString(),
				Name:        name,
				Domain:      domain,
				LogFormat:   format,
				Anomaly:     cfg.AnomalyParams(),
				FilteredIPs: hiddenIPs,
			}
			if site.LogFormat == "" {
				site.LogFormat = cfg.LogFormat
			}
			if len(site.FilteredIPs) == 0 {
				site.FilteredIPs = cfg.FilteredIPs
			}

			if err := st.CreateSite(cmd.Context(), site); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to create site: %v", err))
				return
			}

			ui.PrintStatus("success", fmt.Sprintf("Site %s created", site.Name))
			ui.PrintKeyValue("ID", site.ID)
			ui.PrintKeyValue("Log format", site.LogFormat)
			if len(site.FilteredIPs) > 0 {
				ui.PrintKeyValue("Hidden IPs", strings.Join(site.FilteredIPs, ", "))
			}
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Site name")
	cmd.Flags().StringVar(&domain, "domain", "", "Site domain")
	cmd.Flags().StringVar(&format, "format", "", "Log format: nginx_combined, apache_combined or auto")
	cmd.Flags().StringSliceVar(&hiddenIPs, "hide-ip", nil, "IP to exclude from all derived data (repeatable)")
	return cmd
}

func newSiteListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List uploaded log files per site",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Log Files")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			if len(args) == 0 {
				ui.PrintStatus("info", "Pass a site id to list its files")
				return
			}
			files, err := st.ListLogFiles(cmd.Context(), args[0])
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to list files: %v", err))
				return
			}
			if len(files) == 0 {
				ui.PrintStatus("info", "No files uploaded yet")
				return
			}
			for _, f := range files {
				ui.PrintKeyValue(f.Filename, fmt.Sprintf("%s  %s  %s",
					f.ID, f.Status, utils.FormatBytes(f.SizeBytes)))
			}
		},
	}
}

func newSiteShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <site-id>",
		Short: "Show one site's settings",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Site")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			site, err := st.GetSite(cmd.Context(), args[0])
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load site: %v", err))
				return
			}

			ui.PrintKeyValue("ID", site.ID)
			ui.PrintKeyValue("Name", site.Name)
			if site.Domain != "" {
				ui.PrintKeyValue("Domain", site.Domain)
			}
			ui.PrintKeyValue("Log format", site.LogFormat)
			ui.PrintKeyValue("Hidden IPs", strings.Join(site.FilteredIPs, ", "))
			ui.PrintKeyValue("Baseline days", fmt.Sprintf("%d", site.Anomaly.BaselineDays))
			ui.PrintKeyValue("Min baseline hours", fmt.Sprintf("%d", site.Anomaly.MinBaselineHours))
			ui.PrintKeyValue("Z threshold", fmt.Sprintf("%.1f", site.Anomaly.ZThreshold))
			ui.PrintKeyValue("New path min count", fmt.Sprintf("%d", site.Anomaly.NewPathMinCount))
		},
	}
}

func newSiteSetCmd() *cobra.Command {
	var format string
	var hiddenIPs []string
	var zThreshold float64
	var baselineDays int

	cmd := &cobra.Command{
		Use:   "set <site-id>",
		Short: "Change a site's settings",
		Long: `Change a site's log format, hidden IP list, or anomaly parameters.

Changing hidden IPs or the format affects future ingests only. Run
'logamizer reanalyze' afterwards to rebuild existing derived data.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Update Site")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			site, err := st.GetSite(cmd.Context(), args[0])
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load site: %v", err))
				return
			}

			if cmd.Flags().Changed("format") {
				switch format {
				case constants.FORMAT_NGINX_COMBINED, constants.FORMAT_APACHE_COMBINED, constants.FORMAT_AUTO:
					site.LogFormat = format
				default:
					ui.PrintStatus("error", fmt.Sprintf("Unknown format %q", format))
					return
				}
			}
			if cmd.Flags().Changed("hide-ip") {
				site.FilteredIPs = hiddenIPs
			}
			if cmd.Flags().Changed("z-threshold") {
				site.Anomaly.ZThreshold = zThreshold
			}
			if cmd.Flags().Changed("baseline-days") {
				site.Anomaly.BaselineDays = baselineDays
			}

			if err := st.UpdateSite(cmd.Context(), site); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to update site: %v", err))
				return
			}
			ui.PrintStatus("success", "Site updated")
			ui.PrintStatus("info", "Run 'logamizer reanalyze' to rebuild existing data with the new settings")
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Log format: nginx_combined, apache_combined or auto")
	cmd.Flags().StringSliceVar(&hiddenIPs, "hide-ip", nil, "Replacement hidden IP list (repeatable)")
	cmd.Flags().Float64Var(&zThreshold, "z-threshold", 0, "Anomaly z-score threshold")
	cmd.Flags().IntVar(&baselineDays, "baseline-days", 0, "Anomaly baseline window in days")
	return cmd
}

func newSiteRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <site-id>",
		Short: "Delete a site and everything derived from it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Delete Site")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			if err := st.DeleteSite(cmd.Context(), args[0]); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to delete site: %v", err))
				return
			}
			ui.PrintStatus("success", "Site deleted with its files, aggregates, findings and error groups")
		},
	}
}
