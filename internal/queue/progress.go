package queue

import (
	"context"
	"sync"

	"logamizer/internal/logger"
)

// ProgressSink receives job progress updates.
type ProgressSink interface {
	Report(jobID string, percent int, message string)
}

// AsyncSink forwards progress through a buffered channel with drop-on-full
// semantics, so the hot per-event path never blocks on progress I/O.
type AsyncSink struct {
	ch   chan Progress
	done chan struct{}
	once sync.Once
}

// NewAsyncSink starts a forwarding goroutine writing through the queue.
func NewAsyncSink(q *Queue) *AsyncSink {
	s := &AsyncSink{
		ch:   make(chan Progress, 64),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for p := range s.ch {
			if err := q.SetProgress(context.Background(), &p); err != nil {
				logger.Debug("Progress write dropped for job %s: %v", p.JobID, err)
			}
		}
	}()
	return s
}

// Report enqueues one update; if the buffer is full the update is dropped.
func (s *AsyncSink) Report(jobID string, percent int, message string) {
	select {
	case s.ch <- Progress{JobID: jobID, Percent: percent, Message: message}:
	default:
	}
}

// Close flushes buffered updates and stops the forwarder.
func (s *AsyncSink) Close() {
	s.once.Do(func() { close(s.ch) })
	<-s.done
}

// NopSink discards progress, for synchronous runs that report elsewhere.
type NopSink struct{}

func (NopSink) Report(string, int, string) {}
