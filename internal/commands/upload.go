package commands

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"logamizer/internal/config"
	"logamizer/internal/model"
	"logamizer/internal/queue"
	"logamizer/internal/store"
	"logamizer/internal/ui"
	"logamizer/pkg/utils"
)

// NewUploadCmd creates the upload command
func NewUploadCmd() *cobra.Command {
	var siteID string
	var asErrorLog bool

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a log file and queue it for processing",
		Long: `Upload a log file (plain or gzip) for a site and enqueue the
matching pipeline job for the workers.

Re-uploading identical bytes is free: the existing file record is reused
and a completed file is not processed again.

Examples:
  logamizer upload access.log.gz --site <site-id>
  logamizer upload error.log --site <site-id> --errors`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ui.PrintHeader()
			ui.PrintSection("Upload")
			defer ui.PrintSectionEnd()

			cfg, err := config.LoadConfig()
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to load configuration: %v", err))
				return
			}
			if siteID == "" {
				ui.PrintStatus("error", "Pass the owning site with --site")
				return
			}

			st, db, err := openStore(cfg)
			if err != nil {
				ui.PrintStatus("error", err.Error())
				return
			}
			defer db.Close()
			blobs, err := openBlobs(cfg)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to open blob store: %v", err))
				return
			}

			ctx := cmd.Context()
			if _, err := st.GetSite(ctx, siteID); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Unknown site %s: %v", siteID, err))
				return
			}

			src, err := os.Open(args[0])
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to open %s: %v", args[0], err))
				return
			}
			defer src.Close()

			fileID := uuid.NewString()
			storageKey := siteID + "/" + fileID
			size, sha, err := blobs.Put(ctx, storageKey, src)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to store upload: %v", err))
				return
			}

			// Identical bytes for the same site reuse the existing record.
			file, err := st.FindLogFileBySHA(ctx, siteID, sha)
			switch {
			case err == nil:
				blobs.Delete(ctx, storageKey)
				ui.PrintStatus("info", fmt.Sprintf("Identical file already uploaded as %s (%s)", file.ID, file.Status))
				if file.Status == model.FileCompleted {
					ui.PrintStatus("success", "Already processed, nothing to do")
					return
				}
			case errors.Is(err, store.ErrNotFound):
				file = &model.LogFile{
					ID:         fileID,
					SiteID:     siteID,
					Filename:   args[0],
					SizeBytes:  size,
					SHA256:     sha,
					StorageKey: storageKey,
					Status:     model.FilePending,
					CreatedAt:  time.Now().UTC(),
				}
				if err := st.CreateLogFile(ctx, file); err != nil {
					ui.PrintStatus("error", fmt.Sprintf("Failed to record upload: %v", err))
					return
				}
				ui.PrintStatus("success", fmt.Sprintf("Uploaded %s (%s, sha256 %s...)",
					args[0], utils.FormatBytes(size), sha[:12]))
			default:
				ui.PrintStatus("error", fmt.Sprintf("Failed to check for duplicates: %v", err))
				return
			}

			q, err := openQueue(cfg)
			if err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to connect to redis: %v", err))
				return
			}
			defer q.Close()

			kind := queue.KindIngest
			if asErrorLog {
				kind = queue.KindAnalyzeErrors
			}
			job := &queue.Job{
				ID:        uuid.NewString(),
				Kind:      kind,
				SiteID:    siteID,
				LogFileID: file.ID,
			}
			if err := q.Enqueue(ctx, job); err != nil {
				ui.PrintStatus("error", fmt.Sprintf("Failed to enqueue job: %v", err))
				return
			}
			ui.PrintStatus("success", fmt.Sprintf("Queued %s job %s", kind, job.ID))
			ui.PrintStatus("info", fmt.Sprintf("Track it with 'logamizer progress %s'", job.ID))
		},
	}

	cmd.Flags().StringVar(&siteID, "site", "", "Owning site id")
	cmd.Flags().BoolVar(&asErrorLog, "errors", false, "Treat the file as an application error log")
	return cmd
}
