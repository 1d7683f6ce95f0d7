// Package aggregate folds normalized events into hourly per-site rollups.
package aggregate

import (
	"sort"

	"logamizer/internal/model"
)

// TopK counts keys in a bounded map. When the map is full a new key evicts
// the current minimum and inherits its count plus one, so heavy hitters
// survive even when they arrive late. Counts never decrease.
type TopK struct {
	counts map[string]int64
	slots  int
}

// NewTopK allocates a counter bounded to the given number of slots.
func NewTopK(slots int) *TopK {
	return &TopK{counts: make(map[string]int64, slots), slots: slots}
}

// Observe counts one occurrence of key.
func (t *TopK) Observe(key string) {
	if _, ok := t.counts[key]; ok {
		t.counts[key]++
		return
	}
	if len(t.counts) < t.slots {
		t.counts[key] = 1
		return
	}

	// Evict the minimum; ties break on the smallest key for determinism.
	var evict string
	var min int64 = -1
	for k, c := range t.counts {
		if min < 0 || c < min || (c == min && k < evict) {
			evict = k
			min = c
		}
	}
	delete(t.counts, evict)
	t.counts[key] = min + 1
}

// Entries returns the k largest counters, ordered by count descending with
// lexicographic keys breaking ties.
func (t *TopK) Entries(k int) []model.TopEntry {
	out := make([]model.TopEntry, 0, len(t.counts))
	for key, count := range t.counts {
		out = append(out, model.TopEntry{Key: key, Count: count})
	}
	sortEntries(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// Len reports how many keys are currently tracked.
func (t *TopK) Len() int { return len(t.counts) }

// MergeTop combines two Top-K lists by summing counts per key and keeping the
// k largest. Merging is commutative, so concurrent ingest runs converge to
// the same list regardless of order.
func MergeTop(a, b []model.TopEntry, k int) []model.TopEntry {
	sums := make(map[string]int64, len(a)+len(b))
	for _, e := range a {
		sums[e.Key] += e.Count
	}
	for _, e := range b {
		sums[e.Key] += e.Count
	}
	out := make([]model.TopEntry, 0, len(sums))
	for key, count := range sums {
		out = append(out, model.TopEntry{Key: key, Count: count})
	}
	sortEntries(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func sortEntries(entries []model.TopEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
}
