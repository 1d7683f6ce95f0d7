package aggregate

import (
	"sort"
	"strconv"
	"time"

	constants "logamizer/config"
	"logamizer/internal/model"
)

// bucket accumulates one (site, hour) rollup during a single run.
type bucket struct {
	hour       time.Time
	requests   int64
	status2xx  int64
	status3xx  int64
	status4xx  int64
	status5xx  int64
	totalBytes int64
	ips        map[string]struct{}
	paths      map[string]struct{}
	topPaths   *TopK
	topIPs     *TopK
	topUAs     *TopK
	topStatus  *TopK
}

func newBucket(hour time.Time) *bucket {
	return &bucket{
		hour:      hour,
		ips:       make(map[string]struct{}),
		paths:     make(map[string]struct{}),
		topPaths:  NewTopK(constants.TOP_K_SLOTS),
		topIPs:    NewTopK(constants.TOP_K_SLOTS),
		topUAs:    NewTopK(constants.TOP_K_SLOTS),
		topStatus: NewTopK(constants.TOP_K_SLOTS),
	}
}

// Aggregator folds a stream of events into hourly buckets for one site.
// Distinct IP and path sets are exact within the run; across runs the stored
// row adds run totals together, which over-counts revisiting clients.
type Aggregator struct {
	siteID     string
	buckets    map[time.Time]*bucket
	events     int64
	OnProgress func(events int64)
}

// New creates an empty aggregator for a site.
func New(siteID string) *Aggregator {
	return &Aggregator{
		siteID:  siteID,
		buckets: make(map[time.Time]*bucket),
	}
}

// Observe folds one event into its hour bucket.
func (a *Aggregator) Observe(e *model.NormalizedEvent) {
	hour := e.HourBucket()
	b, ok := a.buckets[hour]
	if !ok {
		b = newBucket(hour)
		a.buckets[hour] = b
	}

	b.requests++
	switch e.StatusClass() {
	case "2xx":
		b.status2xx++
	case "3xx":
		b.status3xx++
	case "4xx":
		b.status4xx++
	case "5xx":
		b.status5xx++
	}
	b.totalBytes += e.BytesSent

	b.ips[e.IP] = struct{}{}
	b.paths[e.Path] = struct{}{}
	b.topPaths.Observe(e.Path)
	b.topIPs.Observe(e.IP)
	if e.UserAgent != "" {
		b.topUAs.Observe(e.UserAgent)
	}
	b.topStatus.Observe(strconv.Itoa(e.Status))

	a.events++
	if a.OnProgress != nil && a.events%constants.PROGRESS_REPORT_EVENTS == 0 {
		a.OnProgress(a.events)
	}
}

// Events returns the number of events observed so far.
func (a *Aggregator) Events() int64 { return a.events }

// Flush materializes the buckets as aggregate rows ordered by hour. The
// aggregator stays usable; flushing again returns the same totals.
func (a *Aggregator) Flush() []model.HourlyAggregate {
	out := make([]model.HourlyAggregate, 0, len(a.buckets))
	for _, b := range a.buckets {
		out = append(out, model.HourlyAggregate{
			SiteID:        a.siteID,
			HourBucket:    b.hour,
			RequestsCount: b.requests,
			Status2xx:     b.status2xx,
			Status3xx:     b.status3xx,
			Status4xx:     b.status4xx,
			Status5xx:     b.status5xx,
			TotalBytes:    b.totalBytes,
			UniqueIPs:     int64(len(b.ips)),
			UniquePaths:   int64(len(b.paths)),
			TopPaths:      b.topPaths.Entries(constants.TOP_K),
			TopIPs:        b.topIPs.Entries(constants.TOP_K),
			TopUserAgents: b.topUAs.Entries(constants.TOP_K),
			TopStatus:     b.topStatus.Entries(constants.TOP_K),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].HourBucket.Before(out[j].HourBucket)
	})
	return out
}

// Merge adds a freshly computed delta row into an existing stored row for the
// same (site, hour). Counters add, Top-K lists merge by summed counts. The
// operation is commutative and associative, so concurrent workers touching
// the same bucket converge regardless of ordering.
func Merge(existing, delta *model.HourlyAggregate) model.HourlyAggregate {
	return model.HourlyAggregate{
		SiteID:        existing.SiteID,
		HourBucket:    existing.HourBucket,
		RequestsCount: existing.RequestsCount + delta.RequestsCount,
		Status2xx:     existing.Status2xx + delta.Status2xx,
		Status3xx:     existing.Status3xx + delta.Status3xx,
		Status4xx:     existing.Status4xx + delta.Status4xx,
		Status5xx:     existing.Status5xx + delta.Status5xx,
		TotalBytes:    existing.TotalBytes + delta.TotalBytes,
		UniqueIPs:     existing.UniqueIPs + delta.UniqueIPs,
		UniquePaths:   existing.UniquePaths + delta.UniquePaths,
		TopPaths:      MergeTop(existing.TopPaths, delta.TopPaths, constants.TOP_K),
		TopIPs:        MergeTop(existing.TopIPs, delta.TopIPs, constants.TOP_K),
		TopUserAgents: MergeTop(existing.TopUserAgents, delta.TopUserAgents, constants.TOP_K),
		TopStatus:     MergeTop(existing.TopStatus, delta.TopStatus, constants.TOP_K),
	}
}
