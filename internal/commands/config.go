package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/ui"
)

// NewConfigCmd creates the config command
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		Long: `Show the current Logamizer configuration.

Use 'logamizer set' to change values. Settings live in
~/.logamizer/config.yaml and can be overridden with LOGAMIZER_* environment
variables.`,
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}

			ui.PrintSection("Infrastructure")
			ui.PrintKeyValue("Redis", cfg.RedisAddr)
			if cfg.DatabaseURL != "" {
				ui.PrintKeyValue("Database", redactURL(cfg.DatabaseURL))
			} else {
				ui.PrintStatus("warning", "database_url not set, only 'logamizer analyze' will work")
			}
			if cfg.BlobDir != "" {
				ui.PrintKeyValue("Blob dir", cfg.BlobDir)
			}
			ui.PrintKeyValue("Workers", fmt.Sprintf("%d", cfg.Workers))
			ui.PrintSectionEnd()

			ui.PrintSection("Metrics Export")
			if cfg.OTLPEndpoint != "" {
				ui.PrintStatus("success", fmt.Sprintf("OTLP endpoint: %s", cfg.OTLPEndpoint))
			} else {
				ui.PrintStatus("info", "OTLP export disabled, Prometheus /metrics only")
			}
			ui.PrintSectionEnd()

			ui.PrintSection("Site Defaults")
			ui.PrintKeyValue("Log format", cfg.LogFormat)
			ui.PrintKeyValue("Baseline days", fmt.Sprintf("%d", cfg.BaselineDays))
			ui.PrintKeyValue("Min baseline hours", fmt.Sprintf("%d", cfg.MinBaselineHrs))
			ui.PrintKeyValue("Z threshold", fmt.Sprintf("%.1f", cfg.ZThreshold))
			ui.PrintKeyValue("New path min count", fmt.Sprintf("%d", cfg.NewPathMinCount))
			if len(cfg.FilteredIPs) > 0 {
				ui.PrintKeyValue("Hidden IPs", strings.Join(cfg.FilteredIPs, ", "))
			}
			ui.PrintSectionEnd()
		},
	}
}

// redactURL hides credentials embedded in a connection URL.
func redactURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return u
	}
	return u[:scheme+3] + "***" + u[at:]
}
