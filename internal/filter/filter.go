// Package filter drops events from a site's hidden IPs before they reach
// aggregation and rules. Filtering happens per run, never at read time, so
// the raw upload stays intact and hidden-IP changes take effect on re-ingest.
package filter

import "logamizer/internal/model"

// IPFilter holds one site's hidden IP literals.
type IPFilter struct {
	hidden   map[string]struct{}
	filtered int64
}

// New builds a filter from the site's ordered hidden-IP set.
func New(ips []string) *IPFilter {
	f := &IPFilter{hidden: make(map[string]struct{}, len(ips))}
	for _, ip := range ips {
		f.hidden[ip] = struct{}{}
	}
	return f
}

// Drop reports whether the event's source IP is hidden, counting drops.
func (f *IPFilter) Drop(e *model.NormalizedEvent) bool {
	if _, ok := f.hidden[e.IP]; ok {
		f.filtered++
		return true
	}
	return false
}

// Filtered returns how many events were dropped so far.
func (f *IPFilter) Filtered() int64 { return f.filtered }
