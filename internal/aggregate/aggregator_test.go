package aggregate

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	constants "logamizer/config"
	"logamizer/internal/filter"
	"logamizer/internal/model"
)

func event(ts time.Time, ip, path string, status int, bytes int64) *model.NormalizedEvent {
	return &model.NormalizedEvent{
		Timestamp: ts,
		IP:        ip,
		Method:    "GET",
		Path:      path,
		Status:    status,
		BytesSent: bytes,
		UserAgent: "Mozilla/5.0",
	}
}

func TestAggregator_HourlyBuckets(t *testing.T) {
	a := New("site-1")
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	a.Observe(event(base.Add(5*time.Minute), "10.0.0.1", "/a", 200, 100))
	a.Observe(event(base.Add(10*time.Minute), "10.0.0.2", "/a", 404, 0))
	a.Observe(event(base.Add(20*time.Minute), "10.0.0.1", "/b", 503, 50))
	a.Observe(event(base.Add(70*time.Minute), "10.0.0.3", "/a", 200, 10))

	rows := a.Flush()
	if len(rows) != 2 {
		t.Fatalf("expected 2 hour buckets, got %d", len(rows))
	}

	first := rows[0]
	if !first.HourBucket.Equal(base) {
		t.Errorf("first bucket hour: %v", first.HourBucket)
	}
	if first.RequestsCount != 3 || first.Status2xx != 1 || first.Status4xx != 1 || first.Status5xx != 1 {
		t.Errorf("first bucket counters: %+v", first)
	}
	if first.TotalBytes != 150 {
		t.Errorf("total bytes: got %d", first.TotalBytes)
	}
	if first.UniqueIPs != 2 || first.UniquePaths != 2 {
		t.Errorf("unique counts: ips=%d paths=%d", first.UniqueIPs, first.UniquePaths)
	}
	if first.Unclassified() != 0 {
		t.Errorf("unclassified: got %d", first.Unclassified())
	}

	second := rows[1]
	if !second.HourBucket.Equal(base.Add(time.Hour)) || second.RequestsCount != 1 {
		t.Errorf("second bucket: %+v", second)
	}
}

func TestAggregator_CounterConsistency(t *testing.T) {
	a := New("site-1")
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	statuses := []int{200, 201, 301, 404, 500, 99, 200, 600}
	for i, s := range statuses {
		a.Observe(event(base.Add(time.Duration(i)*time.Second), "10.0.0.1", "/p", s, 1))
	}

	row := a.Flush()[0]
	classified := row.Status2xx + row.Status3xx + row.Status4xx + row.Status5xx
	if row.RequestsCount != classified+row.Unclassified() {
		t.Errorf("counter invariant broken: %+v", row)
	}
	if row.Unclassified() != 2 {
		t.Errorf("unclassified: got %d, want 2", row.Unclassified())
	}
}

func TestTopK_BoundedWithMinEviction(t *testing.T) {
	tk := NewTopK(4)

	// Heavy hitters first.
	for i := 0; i < 10; i++ {
		tk.Observe("/hot")
	}
	tk.Observe("/warm")
	tk.Observe("/warm")
	tk.Observe("/cold-a")
	tk.Observe("/cold-b")

	if tk.Len() != 4 {
		t.Fatalf("expected 4 slots used, got %d", tk.Len())
	}

	// A new key evicts the lexicographically-smallest minimum and inherits
	// min+1, so the heavy hitter is untouched.
	tk.Observe("/new")
	entries := tk.Entries(4)
	if entries[0].Key != "/hot" || entries[0].Count != 10 {
		t.Errorf("heavy hitter displaced: %+v", entries)
	}
	for _, e := range entries {
		if e.Key == "/cold-a" {
			t.Errorf("minimum entry should have been evicted: %+v", entries)
		}
		if e.Key == "/new" && e.Count != 2 {
			t.Errorf("new key should inherit min+1: %+v", e)
		}
	}
}

func TestTopK_HeavyHitterSurvivesChurn(t *testing.T) {
	tk := NewTopK(constants.TOP_K_SLOTS)

	for i := 0; i < 500; i++ {
		tk.Observe("/hot")
	}
	// Churn through many one-off keys.
	for i := 0; i < 1000; i++ {
		tk.Observe(fmt.Sprintf("/noise/%d", i))
	}

	entries := tk.Entries(constants.TOP_K)
	if len(entries) == 0 || entries[0].Key != "/hot" {
		t.Fatalf("heavy hitter lost: %+v", entries)
	}
	if entries[0].Count < 500 {
		t.Errorf("heavy hitter count decreased: %d", entries[0].Count)
	}
	if tk.Len() > constants.TOP_K_SLOTS {
		t.Errorf("slot bound exceeded: %d", tk.Len())
	}
}

func TestMergeTop_CommutativeWithLexTieBreak(t *testing.T) {
	a := []model.TopEntry{{Key: "/b", Count: 5}, {Key: "/a", Count: 3}}
	b := []model.TopEntry{{Key: "/a", Count: 2}, {Key: "/c", Count: 5}}

	ab := MergeTop(a, b, 10)
	ba := MergeTop(b, a, 10)
	if len(ab) != 3 || len(ba) != 3 {
		t.Fatalf("merge lengths: %d %d", len(ab), len(ba))
	}
	for i := range ab {
		if ab[i] != ba[i] {
			t.Fatalf("merge not commutative: %+v vs %+v", ab, ba)
		}
	}
	// /a and /b and /c all land on 5; lexicographic order breaks the tie.
	if ab[0].Key != "/a" || ab[1].Key != "/b" || ab[2].Key != "/c" {
		t.Errorf("tie-break order wrong: %+v", ab)
	}
}

func TestMerge_AdditiveCounters(t *testing.T) {
	hour := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	existing := model.HourlyAggregate{
		SiteID: "site-1", HourBucket: hour,
		RequestsCount: 10, Status2xx: 8, Status4xx: 2,
		TotalBytes: 1000, UniqueIPs: 3, UniquePaths: 4,
		TopPaths: []model.TopEntry{{Key: "/a", Count: 6}},
	}
	delta := model.HourlyAggregate{
		SiteID: "site-1", HourBucket: hour,
		RequestsCount: 5, Status2xx: 5,
		TotalBytes: 500, UniqueIPs: 2, UniquePaths: 1,
		TopPaths: []model.TopEntry{{Key: "/a", Count: 2}, {Key: "/b", Count: 3}},
	}

	merged := Merge(&existing, &delta)
	if merged.RequestsCount != 15 || merged.Status2xx != 13 || merged.TotalBytes != 1500 {
		t.Errorf("counters: %+v", merged)
	}
	if merged.UniqueIPs != 5 || merged.UniquePaths != 5 {
		t.Errorf("unique estimates should add: %+v", merged)
	}
	if merged.TopPaths[0].Key != "/a" || merged.TopPaths[0].Count != 8 {
		t.Errorf("top paths: %+v", merged.TopPaths)
	}
}

func TestAggregator_HiddenIPFilter(t *testing.T) {
	f := filter.New([]string{"198.51.100.1"})
	a := New("site-1")
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		e := event(base.Add(time.Duration(i)*time.Second), "198.51.100.1", "/admin", 200, 10)
		if !f.Drop(e) {
			a.Observe(e)
		}
	}
	for i := 0; i < 5; i++ {
		e := event(base.Add(time.Duration(i)*time.Minute), "203.0.113.2", "/page", 200, 10)
		if !f.Drop(e) {
			a.Observe(e)
		}
	}

	rows := a.Flush()
	if len(rows) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(rows))
	}
	row := rows[0]
	if row.RequestsCount != 5 || row.UniqueIPs != 1 {
		t.Errorf("filtered aggregate: requests=%d unique_ips=%d", row.RequestsCount, row.UniqueIPs)
	}
	for _, e := range row.TopIPs {
		if e.Key == "198.51.100.1" {
			t.Errorf("hidden IP leaked into top list: %+v", row.TopIPs)
		}
	}
	if f.Filtered() != 10 {
		t.Errorf("filtered count: got %d", f.Filtered())
	}
}

func TestAggregator_ProgressCallback(t *testing.T) {
	a := New("site-1")
	var reports []int64
	a.OnProgress = func(n int64) { reports = append(reports, n) }

	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	total := constants.PROGRESS_REPORT_EVENTS*2 + 5
	for i := 0; i < total; i++ {
		a.Observe(event(base, "10.0.0.1", "/p/"+strconv.Itoa(i%3), 200, 1))
	}

	if len(reports) != 2 {
		t.Fatalf("expected 2 progress reports, got %d", len(reports))
	}
	if reports[0] != constants.PROGRESS_REPORT_EVENTS || reports[1] != 2*constants.PROGRESS_REPORT_EVENTS {
		t.Errorf("progress values: %v", reports)
	}
}
