package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/model"
	"logamizer/internal/pipeline"
	"logamizer/internal/store"
	"logamizer/internal/ui"
)

// NewAnalyzeCmd creates the analyze command
func NewAnalyzeCmd() *cobra.Command {
	var format string
	var hiddenIPs []string
	var asErrorLog bool

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a log file locally without database or workers",
		Long: `Run the full pipeline over one file in-process and print the report.

Nothing is persisted: this is the quick look before wiring up sites,
postgres and workers. Gzip files are decompressed transparently.

Examples:
  logamizer analyze access.log.gz
  logamizer analyze access.log --format apache_combined --hide-ip 10.0.0.1
  logamizer analyze error.log --errors`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			if format == "" {
				format = cfg.LogFormat
			}
			if len(hiddenIPs) == 0 {
				hiddenIPs = cfg.FilteredIPs
			}

			tmp, err := os.MkdirTemp("", "logamizer-analyze-")
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to create temp dir: %v", err))
				return
			}
			defer os.RemoveAll(tmp)

			blobs, err := store.NewFileBlobStore(tmp)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to open blob store: %v", err))
				return
			}
			st := store.NewMemory()
			ctx := cmd.Context()

			site := &model.Site{
				ID:          uuid.NewString(),
				Name:        "local",
				LogFormat:   format,
				Anomaly:     cfg.AnomalyParams(),
				FilteredIPs: hiddenIPs,
			}
			if err := st.CreateSite(ctx, site); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to create site: %v", err))
				return
			}

			src, err := os.Open(args[0])
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to open %s: %v", args[0], err))
				return
			}
			size, sha, err := blobs.Put(ctx, "local", src)
			src.Close()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to stage file: %v", err))
				return
			}

			file := &model.LogFile{
				ID:         uuid.NewString(),
				SiteID:     site.ID,
				Filename:   args[0],
				SizeBytes:  size,
				SHA256:     sha,
				StorageKey: "local",
				Status:     model.FilePending,
				CreatedAt:  time.Now().UTC(),
			}
			if err := st.CreateLogFile(ctx, file); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to record file: %v", err))
				return
			}

			driver := pipeline.New(st, blobs, nil)
			jobID := uuid.NewString()
			err = ui.WithSpinner("Analyzing "+args[0], func() error {
				if asErrorLog {
					return driver.AnalyzeErrors(ctx, jobID, file.ID)
				}
				return driver.RunIngest(ctx, jobID, file.ID)
			})
			if err != nil {
				return
			}

			if q, qErr := st.GetParseQuality(ctx, file.ID); qErr == nil {
				ui.PrintSection("Parse Quality")
				ui.PrintParseQuality(q)
				ui.PrintSectionEnd()
			}

			if asErrorLog {
				groups, _ := st.GetErrorGroups(ctx, site.ID)
				ui.PrintSection("Error Groups")
				ui.PrintErrorGroups(groups)
				ui.PrintSectionEnd()
				return
			}

			rows, _ := st.GetAggregates(ctx, site.ID,
				time.Time{}, time.Now().UTC().Add(24*time.Hour))
			ui.PrintSection("Hourly Traffic")
			ui.PrintAggregates(rows)
			ui.PrintSectionEnd()

			if len(rows) > 0 {
				busiest := rows[0]
				for _, row := range rows[1:] {
					if row.RequestsCount > busiest.RequestsCount {
						busiest = row
					}
				}
				ui.PrintSection("Busiest Hour " + busiest.HourBucket.Format("2006-01-02 15:04"))
				ui.PrintTopEntries("Top paths", busiest.TopPaths)
				ui.PrintTopEntries("Top IPs", busiest.TopIPs)
				ui.PrintTopEntries("Top user agents", busiest.TopUserAgents)
				ui.PrintSectionEnd()
			}

			findings, _ := st.GetFindings(ctx, site.ID)
			ui.PrintSection("Findings")
			ui.PrintFindings(findings)
			ui.PrintSectionEnd()
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "Log format: nginx_combined, apache_combined or auto")
	cmd.Flags().StringSliceVar(&hiddenIPs, "hide-ip", nil, "IP to exclude from the report (repeatable)")
	cmd.Flags().BoolVar(&asErrorLog, "errors", false, "Treat the file as an application error log")
	return cmd
}
