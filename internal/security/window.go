// Package security steps stateful rules over the event stream and emits
// findings with stable fingerprints.
package security

import (
	"sort"
	"time"
)

// slidingWindow counts event timestamps inside a duration window keyed on
// event time, not wall clock. Inserts keep the ring sorted so mildly
// out-of-order streams (a few minutes of disorder) still count correctly.
type slidingWindow struct {
	dur    time.Duration
	times  []time.Time
	newest time.Time
}

func newSlidingWindow(dur time.Duration) *slidingWindow {
	return &slidingWindow{dur: dur}
}

// Add inserts one timestamp and returns the number of events inside the
// window ending at the newest timestamp seen so far.
func (w *slidingWindow) Add(ts time.Time) int {
	// Sorted insert; disorder is small, so the scan from the tail is short.
	idx := sort.Search(len(w.times), func(i int) bool { return w.times[i].After(ts) })
	w.times = append(w.times, time.Time{})
	copy(w.times[idx+1:], w.times[idx:])
	w.times[idx] = ts

	if ts.After(w.newest) {
		w.newest = ts
	}

	// Evict everything older than the window anchored at the newest event.
	cutoff := w.newest.Add(-w.dur)
	firstLive := sort.Search(len(w.times), func(i int) bool { return w.times[i].After(cutoff) })
	if firstLive > 0 {
		w.times = w.times[firstLive:]
	}
	return len(w.times)
}
