package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	constants "logamizer/config"
	"logamizer/internal/model"
	"logamizer/internal/queue"
	"logamizer/internal/store"
)

type fixture struct {
	driver *Driver
	store  *store.Memory
	blobs  *store.FileBlobStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	blobs, err := store.NewFileBlobStore(t.TempDir())
	require.NoError(t, err)
	mem := store.NewMemory()
	return &fixture{
		driver: New(mem, blobs, queue.NopSink{}),
		store:  mem,
		blobs:  blobs,
	}
}

func (f *fixture) addSite(t *testing.T, site model.Site) {
	t.Helper()
	if site.LogFormat == "" {
		site.LogFormat = constants.FORMAT_AUTO
	}
	require.NoError(t, f.store.CreateSite(context.Background(), &site))
}

func (f *fixture) addFile(t *testing.T, siteID, fileID, filename, content string) {
	t.Helper()
	ctx := context.Background()
	key := siteID + "/" + fileID
	size, sha, err := f.blobs.Put(ctx, key, strings.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, f.store.CreateLogFile(ctx, &model.LogFile{
		ID: fileID, SiteID: siteID, Filename: filename,
		SizeBytes: size, SHA256: sha, StorageKey: key,
		Status: model.FilePending, CreatedAt: time.Now().UTC(),
	}))
}

func TestRunIngest_SingleLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One", LogFormat: constants.FORMAT_NGINX_COMBINED})
	f.addFile(t, "site-1", "file-1", "access.log",
		`203.0.113.42 - - [23/Jan/2026:17:36:10 +0000] "GET /api/health HTTP/1.1" 200 532 "-" "Mozilla/5.0"`+"\n")

	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	hour := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	rows, err := f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, int64(1), row.RequestsCount)
	assert.Equal(t, int64(1), row.Status2xx)
	assert.Equal(t, int64(1), row.UniqueIPs)
	assert.Equal(t, int64(532), row.TotalBytes)

	file, err := f.store.GetLogFile(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, model.FileCompleted, file.Status)

	q, err := f.store.GetParseQuality(ctx, "file-1")
	require.NoError(t, err)
	assert.Equal(t, 1, q.ParsedLines)
	assert.Equal(t, 0, q.FailedLines)
	assert.Equal(t, 1.0, q.SuccessRate())
}

func scannerBurst() string {
	var b strings.Builder
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		ts := base.Add(time.Duration(i) * 10 * time.Second)
		fmt.Fprintf(&b, "198.51.100.7 - - [%s] \"GET /wp-admin/p%d HTTP/1.1\" 404 0 \"-\" \"Mozilla/5.0\"\n",
			ts.Format("02/Jan/2006:15:04:05 -0700"), i)
	}
	return b.String()
}

func TestRunIngest_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One"})
	f.addFile(t, "site-1", "file-1", "access.log", scannerBurst())

	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	hour := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	firstRows, err := f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	firstFindings, err := f.store.GetFindings(ctx, "site-1")
	require.NoError(t, err)
	require.NotEmpty(t, firstFindings)

	// Second run on the completed file must change nothing.
	require.NoError(t, f.driver.RunIngest(ctx, "job-2", "file-1"))

	secondRows, err := f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	secondFindings, err := f.store.GetFindings(ctx, "site-1")
	require.NoError(t, err)

	assert.Equal(t, firstRows, secondRows)
	assert.Equal(t, firstFindings, secondFindings)
}

func TestRunIngest_ScannerFinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One"})
	f.addFile(t, "site-1", "file-1", "access.log", scannerBurst())
	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	findings, err := f.store.GetFindings(ctx, "site-1")
	require.NoError(t, err)

	var scanner *model.Finding
	for i := range findings {
		if findings[i].Type == "scanner.probing" {
			scanner = &findings[i]
		}
	}
	require.NotNil(t, scanner, "scanner finding missing: %+v", findings)
	assert.Equal(t, model.SeverityHigh, scanner.Severity)
	assert.Equal(t, "198.51.100.7", scanner.Subject)
	assert.LessOrEqual(t, len(scanner.Evidence), constants.MAX_EVIDENCE_SAMPLES)
}

func TestRunIngest_HiddenIPFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One", FilteredIPs: []string{"198.51.100.1"}})

	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "198.51.100.1 - - [23/Jan/2026:17:00:%02d +0000] \"GET /internal HTTP/1.1\" 200 10 \"-\" \"-\"\n", i)
	}
	for i := 0; i < 5; i++ {
		fmt.Fprintf(&b, "203.0.113.2 - - [23/Jan/2026:17:10:%02d +0000] \"GET /page HTTP/1.1\" 200 10 \"-\" \"-\"\n", i)
	}
	f.addFile(t, "site-1", "file-1", "access.log", b.String())
	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	hour := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	rows, err := f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0].RequestsCount)
	assert.Equal(t, int64(1), rows[0].UniqueIPs)
	for _, e := range rows[0].TopIPs {
		assert.NotEqual(t, "198.51.100.1", e.Key)
	}
}

func TestRunIngest_GzipBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One"})

	content := gzipString(t,
		`10.0.0.1 - - [23/Jan/2026:17:36:10 +0000] "GET / HTTP/1.1" 200 100 "-" "Mozilla/5.0"`+"\n")
	f.addFile(t, "site-1", "file-1", "access.log.gz", content)
	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	hour := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	rows, err := f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].RequestsCount)
}

func gzipString(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.String()
}

func TestAnalyzeErrors_GroupsAndShortCircuits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One"})
	content := strings.Join([]string{
		`2026-01-19T01:07:36Z app DatabaseError: Database connection failed: pool exhausted (size=42)`,
		`2026-01-19T03:20:00Z app DatabaseError: Database connection failed: pool exhausted (size=7)`,
	}, "\n") + "\n"
	f.addFile(t, "site-1", "file-1", "app-error.log", content)

	require.NoError(t, f.driver.AnalyzeErrors(ctx, "job-1", "file-1"))

	groups, err := f.store.GetErrorGroups(ctx, "site-1")
	require.NoError(t, err)
	require.Len(t, groups, 1, "digit substitution must join one group")
	assert.Equal(t, int64(2), groups[0].OccurrenceCount)
	assert.Equal(t, time.Date(2026, 1, 19, 1, 7, 36, 0, time.UTC), groups[0].FirstSeen)
	assert.Equal(t, time.Date(2026, 1, 19, 3, 20, 0, 0, time.UTC), groups[0].LastSeen)

	// A second job on the completed file must not inflate counts.
	require.NoError(t, f.driver.AnalyzeErrors(ctx, "job-2", "file-1"))
	groups, err = f.store.GetErrorGroups(ctx, "site-1")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, int64(2), groups[0].OccurrenceCount)
}

func TestReanalyze_ExactUniqueCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One"})

	// Two distinct files, same client, same hour. Incremental ingest
	// over-counts unique_ips; reanalyze recomputes it exactly.
	line := func(sec int, path string) string {
		return fmt.Sprintf("10.0.0.1 - - [23/Jan/2026:17:00:%02d +0000] \"GET %s HTTP/1.1\" 200 10 \"-\" \"-\"\n", sec, path)
	}
	f.addFile(t, "site-1", "file-1", "a.log", line(1, "/a"))
	f.addFile(t, "site-1", "file-2", "b.log", line(2, "/b"))
	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))
	require.NoError(t, f.driver.RunIngest(ctx, "job-2", "file-2"))

	hour := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	rows, err := f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].UniqueIPs, "incremental runs add the estimate")

	require.NoError(t, f.driver.Reanalyze(ctx, "job-3", "site-1", hour, hour.Add(time.Hour)))

	rows, err = f.store.GetAggregates(ctx, "site-1", hour, hour.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].RequestsCount)
	assert.Equal(t, int64(1), rows[0].UniqueIPs, "reanalyze recomputes the exact set")
	assert.Equal(t, int64(2), rows[0].UniquePaths)
}

func TestRunIngest_AnomalyAfterBaseline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	site := model.Site{ID: "site-1", Name: "One",
		Anomaly: model.AnomalyParams{BaselineDays: 7, MinBaselineHours: 24, ZThreshold: 3.0, NewPathMinCount: 10}}
	f.addSite(t, site)

	// Seed 48 flat baseline hours directly.
	h := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	for i := 1; i <= 48; i++ {
		require.NoError(t, f.store.UpsertHourlyAggregate(ctx, &model.HourlyAggregate{
			SiteID: "site-1", HourBucket: h.Add(-time.Duration(i) * time.Hour),
			RequestsCount: 100, Status2xx: 100,
		}))
	}

	// One file with 250 requests in hour H.
	var b strings.Builder
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "10.0.0.%d - - [23/Jan/2026:17:%02d:%02d +0000] \"GET /p HTTP/1.1\" 200 10 \"-\" \"-\"\n",
			i%250, (i/60)%60, i%60)
	}
	f.addFile(t, "site-1", "file-1", "access.log", b.String())
	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	findings, err := f.store.GetFindings(ctx, "site-1")
	require.NoError(t, err)
	var spike *model.Finding
	for i := range findings {
		if findings[i].Type == "anomaly.traffic_spike" {
			spike = &findings[i]
		}
	}
	require.NotNil(t, spike, "expected a traffic spike finding: %+v", findings)
	assert.Equal(t, model.SeverityHigh, spike.Severity)
}

func TestRunIngest_InsufficientBaselineStaysQuiet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.addSite(t, model.Site{ID: "site-1", Name: "One",
		Anomaly: model.AnomalyParams{BaselineDays: 7, MinBaselineHours: 24, ZThreshold: 3.0, NewPathMinCount: 10}})

	h := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	for i := 1; i <= 12; i++ {
		require.NoError(t, f.store.UpsertHourlyAggregate(ctx, &model.HourlyAggregate{
			SiteID: "site-1", HourBucket: h.Add(-time.Duration(i) * time.Hour),
			RequestsCount: 20, Status2xx: 20,
		}))
	}

	var b strings.Builder
	for i := 0; i < 250; i++ {
		fmt.Fprintf(&b, "10.0.0.1 - - [23/Jan/2026:17:%02d:%02d +0000] \"GET /p HTTP/1.1\" 200 10 \"-\" \"-\"\n",
			(i/60)%60, i%60)
	}
	f.addFile(t, "site-1", "file-1", "access.log", b.String())
	require.NoError(t, f.driver.RunIngest(ctx, "job-1", "file-1"))

	findings, err := f.store.GetFindings(ctx, "site-1")
	require.NoError(t, err)
	for _, finding := range findings {
		assert.False(t, strings.HasPrefix(finding.Type, "anomaly."),
			"no anomaly expected with a thin baseline: %+v", finding)
	}
}
