package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/model"
	"logamizer/internal/ui"
)

// NewErrorsCmd creates the errors command group
func NewErrorsCmd() *cobra.Command {
	errorsCmd := &cobra.Command{
		Use:   "errors",
		Short: "Inspect and manage error groups",
		Long: `Inspect the error groups built from uploaded error logs.

Upload an error log with 'logamizer upload <file> --site <id> --errors';
the worker parses it and folds recurring errors into groups.

Examples:
  logamizer errors list --site <site-id>
  logamizer errors resolve --site <site-id> <fingerprint>
  logamizer errors ignore --site <site-id> <fingerprint>`,
	}

	errorsCmd.AddCommand(newErrorsListCmd())
	errorsCmd.AddCommand(newErrorsStatusCmd("resolve", model.GroupResolved))
	errorsCmd.AddCommand(newErrorsStatusCmd("ignore", model.GroupIgnored))
	errorsCmd.AddCommand(newErrorsStatusCmd("reopen", model.GroupUnresolved))
	return errorsCmd
}

func newErrorsListCmd() *cobra.Command {
	var siteID string
	var showAll bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a site's error groups",
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Error Groups")
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
			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			groups, err := st.GetErrorGroups(cmd.Context(), siteID)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load error groups: %v", err))
				return
			}
			if !showAll {
				open := groups[:0]
				for _, g := range groups {
					if g.Status == model.GroupUnresolved {
						open = append(open, g)
					}
				}
				groups = open
			}
			ui.PrintErrorGroups(groups)
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "Site id")
	cmd.Flags().BoolVar(&showAll, "all", false, "Include resolved and ignored groups")
	return cmd
}

func newErrorsStatusCmd(verb string, status model.GroupStatus) *cobra.Command {
	var siteID string

	cmd := &cobra.Command{
		Use:   verb + " <fingerprint>",
		Short: fmt.Sprintf("Mark an error group %s", status),
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Error Groups")
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
			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()

			if err := st.SetErrorGroupStatus(cmd.Context(), siteID, args[0], status); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to update group: %v", err))
				return
			}
			ui.PrintStatus("success", fmt.Sprintf("Group %s marked %s", args[0], status))
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "Site id")
	return cmd
}
