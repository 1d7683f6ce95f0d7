package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"logamizer/internal/commands"
	"logamizer/internal/ui"
)

// VERSION is set during build via ldflags
var VERSION string

// getCurrentVersion retrieves the current version from build flags or version.txt
func getCurrentVersion() string {
	version := VERSION
	if version == "" {
		// Read version from version.txt if VERSION is not set
		if versionData, err := os.ReadFile("version.txt"); err == nil {
			version = strings.TrimSpace(string(versionData))
		}
	}
	return version
}

func main() {
	// Set version function for commands package
	commands.GetCurrentVersion = getCurrentVersion

	// create root command
	rootCmd := &cobra.Command{
		Use:                "logamizer",
		Short:              "Access and error log analytics pipeline",
		DisableSuggestions: true,
		CompletionOptions:  cobra.CompletionOptions{DisableDefaultCmd: true},
		RunE: func(cmd *cobra.Command, args []string) error {
			// check if --version flag is set
			if cmd.Flags().Lookup("version").Changed {
				fmt.Printf("v%s\n", getCurrentVersion())
				return nil
			}

			ui.PrintHeader()

			ui.PrintSection("Core Features")
			ui.PrintKeyValue("Hourly Aggregates", "Requests, status classes, bytes, Top-K")
			ui.PrintKeyValue("Security Rules", "Scanners, brute force, injection probes")
			ui.PrintKeyValue("Anomaly Detection", "Rolling baseline with z-scores")
			ui.PrintKeyValue("Error Grouping", "Fingerprinted multi-format error logs")
			ui.PrintKeyValue("Idempotent Ingest", "Re-uploads never double-count")
			ui.PrintSectionEnd()

			ui.PrintSection("Quick Start")
			ui.PrintKeyValue("Local analysis", "logamizer analyze access.log.gz")
			ui.PrintKeyValue("Add a site", "logamizer site add --name myshop")
			ui.PrintKeyValue("Upload a file", "logamizer upload access.log --site <id>")
			ui.PrintKeyValue("Run workers", "logamizer worker")
			ui.PrintKeyValue("See the report", "logamizer status --site <id>")
			ui.PrintSectionEnd()

			ui.PrintSection("Commands")
			ui.PrintKeyValue("analyze", "One-shot local analysis, nothing persisted")
			ui.PrintKeyValue("site", "Manage sites and their settings")
			ui.PrintKeyValue("upload", "Upload a log file and queue processing")
			ui.PrintKeyValue("worker", "Run the pipeline worker pool")
			ui.PrintKeyValue("reanalyze", "Rebuild derived data for a time range")
			ui.PrintKeyValue("errors", "Inspect and manage error groups")
			ui.PrintKeyValue("status", "Show aggregates and findings")
			ui.PrintSectionEnd()

			ui.PrintStatus("info", "Use 'logamizer [command] --help' for detailed help")
			return nil
		},
	}

	// add version flag
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	// Create all commands using commands package
	analyzeCmd := commands.NewAnalyzeCmd()
	siteCmd := commands.NewSiteCmd()
	uploadCmd := commands.NewUploadCmd()
	workerCmd := commands.NewWorkerCmd()
	reanalyzeCmd := commands.NewReanalyzeCmd()
	errorsCmd := commands.NewErrorsCmd()
	statusCmd := commands.NewStatusCmd()
	progressCmd := commands.NewProgressCmd()
	configCmd := commands.NewConfigCmd()
	setCmd := commands.NewSetCmd()

	// add commands to root
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(reanalyzeCmd)
	rootCmd.AddCommand(errorsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(progressCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(setCmd)

	// execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
