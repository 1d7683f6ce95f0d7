// Package pipeline drives a log file through decode, parse, filter,
// aggregate, rules, grouping, and the post-run anomaly pass.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"logamizer/internal/aggregate"
	"logamizer/internal/anomaly"
	"logamizer/internal/filter"
	"logamizer/internal/grouper"
	"logamizer/internal/ingest"
	"logamizer/internal/logger"
	"logamizer/internal/model"
	"logamizer/internal/parser"
	"logamizer/internal/queue"
	"logamizer/internal/security"
	"logamizer/internal/store"
	"logamizer/internal/telemetry"
)

// cancelCheckEvery bounds how often the hot loop polls the context.
const cancelCheckEvery = 1024

// Driver owns the stage wiring for one worker process.
type Driver struct {
	store    store.Store
	blobs    store.BlobStore
	progress queue.ProgressSink
}

// New wires a driver over its stores and progress sink.
func New(st store.Store, blobs store.BlobStore, progress queue.ProgressSink) *Driver {
	if progress == nil {
		progress = queue.NopSink{}
	}
	return &Driver{store: st, blobs: blobs, progress: progress}
}

// RunIngest processes one access log file end to end. Running it twice on
// the same file is a no-op the second time: a completed file short-circuits.
func (d *Driver) RunIngest(ctx context.Context, jobID, logFileID string) error {
	started := time.Now()
	status := "failed"
	defer func() { telemetry.RecordJob(queue.KindIngest, status, time.Since(started)) }()

	file, site, err := d.loadFileAndSite(ctx, logFileID)
	if err != nil {
		return err
	}
	if file.Status == model.FileCompleted {
		logger.Info("File %s already completed, skipping ingest", logFileID)
		d.progress.Report(jobID, 100, "already processed")
		status = "completed"
		return nil
	}
	if err := d.setStatus(ctx, logFileID, model.FileProcessing, ""); err != nil {
		return err
	}

	lineParser, err := parser.ForFormat(site.LogFormat)
	if err != nil {
		return d.fail(ctx, logFileID, err)
	}

	blob, err := d.blobs.Read(ctx, file.StorageKey)
	if err != nil {
		return d.fail(ctx, logFileID, err)
	}
	defer blob.Close()

	counting := &countingReader{r: blob}
	dec, err := ingest.Open(counting, file.Filename)
	if err != nil {
		return d.fail(ctx, logFileID, err)
	}
	defer dec.Close()

	ipFilter := filter.New(site.FilteredIPs)
	agg := aggregate.New(site.ID)
	agg.OnProgress = func(events int64) {
		d.progress.Report(jobID, counting.percent(file.SizeBytes), fmt.Sprintf("%d events", events))
	}
	engine := security.NewEngine(site.ID)
	var tracker parser.QualityTracker

	cancelled := false
	lines := 0
	for {
		if lines%cancelCheckEvery == 0 && ctx.Err() != nil {
			cancelled = true
			break
		}
		line, ok := dec.Next()
		if !ok {
			break
		}
		lines++

		event, perr := lineParser.ParseLine(line.Text, line.Number)
		if perr != nil {
			tracker.RecordFailed(line.Number, line.Text, perr)
			continue
		}
		tracker.RecordParsed(event.Timestamp)
		if ipFilter.Drop(event) {
			continue
		}
		agg.Observe(event)
		engine.Step(event)
	}
	if derr := dec.Err(); derr != nil {
		return d.fail(ctx, logFileID, derr)
	}
	tracker.SetLineCounts(dec.TotalLines(), dec.EmptyLines())

	// Flush whatever is complete, even on cancellation: the additive upsert
	// plus the completed-file short-circuit make a re-run reconcile.
	rows := agg.Flush()
	if err := d.flushAggregates(ctx, rows); err != nil {
		return d.fail(ctx, logFileID, err)
	}
	findings := engine.Finish()
	if err := d.flushFindings(ctx, site.ID, findings); err != nil {
		return d.fail(ctx, logFileID, err)
	}

	quality := tracker.Quality()
	if err := store.WithRetry(ctx, "parse quality", func() error {
		return d.store.SaveParseQuality(context.WithoutCancel(ctx), logFileID, &quality)
	}); err != nil {
		return d.fail(ctx, logFileID, err)
	}
	telemetry.RecordLines(site.ID, int64(quality.ParsedLines), int64(quality.FailedLines))

	if cancelled {
		d.setStatus(ctx, logFileID, model.FileFailed, "cancelled before end of stream")
		d.progress.Report(jobID, counting.percent(file.SizeBytes), "cancelled")
		return ctx.Err()
	}

	// Anomaly pass over the hours this file touched.
	anomalies, err := d.detectAnomalies(ctx, site, rows)
	if err != nil {
		return d.fail(ctx, logFileID, err)
	}
	if err := d.flushFindings(ctx, site.ID, anomalies); err != nil {
		return d.fail(ctx, logFileID, err)
	}

	if err := d.setStatus(ctx, logFileID, model.FileCompleted, ""); err != nil {
		return err
	}
	d.progress.Report(jobID, 100, "completed")
	logger.Info("Ingest of %s done: %d parsed, %d failed, %d filtered, %d findings",
		file.Filename, quality.ParsedLines, quality.FailedLines, ipFilter.Filtered(), len(findings)+len(anomalies))
	status = "completed"
	return nil
}

// Reanalyze recomputes aggregates and findings for a site over a half-open
// hour range by replaying every completed file. The range is deleted first,
// so unique counts come out exact rather than additively estimated.
func (d *Driver) Reanalyze(ctx context.Context, jobID, siteID string, from, to time.Time) error {
	started := time.Now()
	status := "failed"
	defer func() { telemetry.RecordJob(queue.KindReanalyze, status, time.Since(started)) }()

	site, err := d.store.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	files, err := d.store.ListLogFiles(ctx, siteID)
	if err != nil {
		return err
	}

	from = from.UTC().Truncate(time.Hour)
	to = to.UTC()

	if err := store.WithRetry(ctx, "delete aggregates", func() error {
		return d.store.DeleteAggregates(ctx, siteID, from, to)
	}); err != nil {
		return err
	}
	if err := store.WithRetry(ctx, "delete findings", func() error {
		return d.store.DeleteFindings(ctx, siteID, from, to)
	}); err != nil {
		return err
	}

	lineParser, err := parser.ForFormat(site.LogFormat)
	if err != nil {
		return err
	}
	ipFilter := filter.New(site.FilteredIPs)
	agg := aggregate.New(site.ID)
	engine := security.NewEngine(site.ID)

	replayed := 0
	for _, file := range files {
		if file.Status != model.FileCompleted {
			continue
		}
		if err := d.replayFile(ctx, &file, lineParser, ipFilter, agg, engine, from, to); err != nil {
			return err
		}
		replayed++
		d.progress.Report(jobID, replayed*90/max(len(files), 1), file.Filename)
	}

	rows := agg.Flush()
	if err := d.flushAggregates(ctx, rows); err != nil {
		return err
	}
	if err := d.flushFindings(ctx, siteID, engine.Finish()); err != nil {
		return err
	}
	anomalies, err := d.detectAnomalies(ctx, site, rows)
	if err != nil {
		return err
	}
	if err := d.flushFindings(ctx, siteID, anomalies); err != nil {
		return err
	}

	d.progress.Report(jobID, 100, "completed")
	logger.Info("Reanalyze of site %s done: %d files replayed, %d hour buckets", siteID, replayed, len(rows))
	status = "completed"
	return nil
}

func (d *Driver) replayFile(ctx context.Context, file *model.LogFile, lineParser parser.LineParser,
	ipFilter *filter.IPFilter, agg *aggregate.Aggregator, engine *security.Engine, from, to time.Time) error {

	blob, err := d.blobs.Read(ctx, file.StorageKey)
	if err != nil {
		return err
	}
	defer blob.Close()

	dec, err := ingest.Open(blob, file.Filename)
	if err != nil {
		return err
	}
	defer dec.Close()

	lines := 0
	for {
		if lines%cancelCheckEvery == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		line, ok := dec.Next()
		if !ok {
			break
		}
		lines++
		event, perr := lineParser.ParseLine(line.Text, line.Number)
		if perr != nil {
			continue
		}
		if event.Timestamp.Before(from) || !event.Timestamp.Before(to) {
			continue
		}
		if ipFilter.Drop(event) {
			continue
		}
		agg.Observe(event)
		engine.Step(event)
	}
	return dec.Err()
}

// AnalyzeErrors runs only the error grouper over a file. A completed file
// short-circuits so repeated jobs do not inflate occurrence counts.
func (d *Driver) AnalyzeErrors(ctx context.Context, jobID, logFileID string) error {
	started := time.Now()
	status := "failed"
	defer func() { telemetry.RecordJob(queue.KindAnalyzeErrors, status, time.Since(started)) }()

	file, site, err := d.loadFileAndSite(ctx, logFileID)
	if err != nil {
		return err
	}
	if file.Status == model.FileCompleted {
		logger.Info("File %s already completed, skipping error analysis", logFileID)
		d.progress.Report(jobID, 100, "already processed")
		status = "completed"
		return nil
	}
	if err := d.setStatus(ctx, logFileID, model.FileProcessing, ""); err != nil {
		return err
	}

	blob, err := d.blobs.Read(ctx, file.StorageKey)
	if err != nil {
		return d.fail(ctx, logFileID, err)
	}
	defer blob.Close()

	counting := &countingReader{r: blob}
	dec, err := ingest.Open(counting, file.Filename)
	if err != nil {
		return d.fail(ctx, logFileID, err)
	}
	defer dec.Close()

	errParser := parser.NewErrorLogParser()
	grp := grouper.New(site.ID, logFileID, d.store)
	var tracker parser.QualityTracker

	persist := func(batch []*parser.ParsedError) error {
		for _, pe := range batch {
			if err := store.WithRetry(ctx, "error occurrence", func() error {
				return grp.Process(ctx, pe)
			}); err != nil {
				return err
			}
		}
		return nil
	}

	lines := 0
	cancelled := false
	for {
		if lines%cancelCheckEvery == 0 && ctx.Err() != nil {
			cancelled = true
			break
		}
		line, ok := dec.Next()
		if !ok {
			break
		}
		lines++
		if errParser.Feed(line.Text, line.Number) {
			tracker.RecordParsed(time.Time{})
		} else {
			tracker.RecordFailed(line.Number, line.Text, errUnrecognized)
		}
		if err := persist(errParser.Drain()); err != nil {
			return d.fail(ctx, logFileID, err)
		}
		if lines%cancelCheckEvery == 0 {
			d.progress.Report(jobID, counting.percent(file.SizeBytes), fmt.Sprintf("%d lines", lines))
		}
	}
	if derr := dec.Err(); derr != nil {
		return d.fail(ctx, logFileID, derr)
	}
	if err := persist(errParser.Flush()); err != nil {
		return d.fail(ctx, logFileID, err)
	}

	tracker.SetLineCounts(dec.TotalLines(), dec.EmptyLines())
	quality := tracker.Quality()
	if err := store.WithRetry(ctx, "parse quality", func() error {
		return d.store.SaveParseQuality(context.WithoutCancel(ctx), logFileID, &quality)
	}); err != nil {
		return d.fail(ctx, logFileID, err)
	}

	if cancelled {
		d.setStatus(ctx, logFileID, model.FileFailed, "cancelled before end of stream")
		return ctx.Err()
	}

	telemetry.ErrorOccurrences.WithLabelValues(site.ID).Add(float64(grp.Processed()))
	if err := d.setStatus(ctx, logFileID, model.FileCompleted, ""); err != nil {
		return err
	}
	d.progress.Report(jobID, 100, "completed")
	logger.Info("Error analysis of %s done: %d occurrences grouped", file.Filename, grp.Processed())
	status = "completed"
	return nil
}

var errUnrecognized = errors.New("no error-log recognizer matched")

func (d *Driver) loadFileAndSite(ctx context.Context, logFileID string) (*model.LogFile, *model.Site, error) {
	file, err := d.store.GetLogFile(ctx, logFileID)
	if err != nil {
		return nil, nil, err
	}
	site, err := d.store.GetSite(ctx, file.SiteID)
	if err != nil {
		return nil, nil, err
	}
	return file, site, nil
}

func (d *Driver) setStatus(ctx context.Context, logFileID string, s model.LogFileStatus, reason string) error {
	return store.WithRetry(ctx, "file status", func() error {
		return d.store.UpdateLogFileStatus(context.WithoutCancel(ctx), logFileID, s, reason)
	})
}

func (d *Driver) fail(ctx context.Context, logFileID string, cause error) error {
	logger.Error("Job for file %s failed: %v", logFileID, cause)
	d.setStatus(ctx, logFileID, model.FileFailed, cause.Error())
	return cause
}

func (d *Driver) flushAggregates(ctx context.Context, rows []model.HourlyAggregate) error {
	for i := range rows {
		row := &rows[i]
		if err := store.WithRetry(ctx, "aggregate upsert", func() error {
			return d.store.UpsertHourlyAggregate(context.WithoutCancel(ctx), row)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) flushFindings(ctx context.Context, siteID string, findings []model.Finding) error {
	for i := range findings {
		f := &findings[i]
		if err := store.WithRetry(ctx, "finding upsert", func() error {
			return d.store.UpsertFinding(context.WithoutCancel(ctx), f)
		}); err != nil {
			return err
		}
		telemetry.RecordFinding(siteID, f.Type)
	}
	return nil
}

// detectAnomalies scores the hours the run touched against the stored
// baseline. Touched rows are re-read so the score sees the merged state, not
// just this run's delta.
func (d *Driver) detectAnomalies(ctx context.Context, site *model.Site, touched []model.HourlyAggregate) ([]model.Finding, error) {
	if len(touched) == 0 {
		return nil, nil
	}
	earliest := touched[0].HourBucket
	latest := touched[0].HourBucket
	for _, row := range touched[1:] {
		if row.HourBucket.Before(earliest) {
			earliest = row.HourBucket
		}
		if row.HourBucket.After(latest) {
			latest = row.HourBucket
		}
	}

	params := site.Anomaly
	from := earliest.Add(-time.Duration(params.BaselineDays) * 24 * time.Hour)
	history, err := d.store.GetAggregates(ctx, site.ID, from, latest.Add(time.Hour))
	if err != nil {
		return nil, err
	}

	touchedHours := make(map[time.Time]struct{}, len(touched))
	for _, row := range touched {
		touchedHours[row.HourBucket] = struct{}{}
	}
	var current []model.HourlyAggregate
	for _, row := range history {
		if _, ok := touchedHours[row.HourBucket]; ok {
			current = append(current, row)
		}
	}

	return anomaly.New(site.ID, params).Examine(current, history), nil
}

// countingReader tracks consumed blob bytes for percent progress.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) percent(total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(c.n * 90 / total)
	if pct > 90 {
		pct = 90
	}
	return pct
}
