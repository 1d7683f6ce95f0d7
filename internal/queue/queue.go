// Package queue is the redis-backed job queue the workers drain. Payloads
// travel as CBOR; per-file locks keep at most one job in flight per log file.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	constants "logamizer/config"
	"logamizer/internal/encoding"
)

// Job kinds accepted by the worker.
const (
	KindIngest        = "ingest"
	KindReanalyze     = "reanalyze"
	KindAnalyzeErrors = "analyze_errors"
)

// Job is one unit of pipeline work.
type Job struct {
	ID         string    `cbor:"id"`
	Kind       string    `cbor:"kind"`
	SiteID     string    `cbor:"site_id"`
	LogFileID  string    `cbor:"log_file_id,omitempty"`
	From       time.Time `cbor:"from,omitempty"`
	To         time.Time `cbor:"to,omitempty"`
	EnqueuedAt time.Time `cbor:"enqueued_at"`
}

// Progress is the externally visible job progress record.
type Progress struct {
	JobID   string `cbor:"job_id" json:"job_id"`
	Percent int    `cbor:"percent" json:"percent"`
	Message string `cbor:"message" json:"message"`
}

// Queue wraps the redis list plus the lock and progress keys.
type Queue struct {
	client *redis.Client
}

// New connects the queue to a redis instance.
func New(addr string) *Queue {
	return &Queue{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Ping verifies the connection.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue pushes one job onto the queue.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	payload, err := encoding.MarshalCBOR(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.client.LPush(ctx, constants.QUEUE_KEY, payload).Err()
}

// Dequeue blocks up to the pop timeout and returns the next job, or nil when
// the timeout expires so the worker can re-check shutdown.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	res, err := q.client.BRPop(ctx, constants.QUEUE_POP_TIMEOUT*time.Second, constants.QUEUE_KEY).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BRPop returns [key, value].
	var job Job
	if err := encoding.UnmarshalCBOR([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// AcquireFileLock takes the per-file lock, enforcing at most one in-flight
// job per log file. Returns false when another worker holds it.
func (q *Queue) AcquireFileLock(ctx context.Context, logFileID, jobID string) (bool, error) {
	return q.client.SetNX(ctx, constants.JOB_LOCK_KEY+logFileID, jobID,
		constants.JOB_LOCK_TTL_SECS*time.Second).Result()
}

// ReleaseFileLock drops the lock if this job still owns it.
func (q *Queue) ReleaseFileLock(ctx context.Context, logFileID, jobID string) error {
	key := constants.JOB_LOCK_KEY + logFileID
	owner, err := q.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if owner != jobID {
		return nil
	}
	return q.client.Del(ctx, key).Err()
}

// SetProgress stores the job's progress record with the lock TTL.
func (q *Queue) SetProgress(ctx context.Context, p *Progress) error {
	payload, err := encoding.MarshalCBOR(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return q.client.Set(ctx, constants.PROGRESS_KEY+p.JobID, payload,
		constants.JOB_LOCK_TTL_SECS*time.Second).Err()
}

// GetProgress reads a job's progress; nil when unknown or expired.
func (q *Queue) GetProgress(ctx context.Context, jobID string) (*Progress, error) {
	payload, err := q.client.Get(ctx, constants.PROGRESS_KEY+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p Progress
	if err := encoding.UnmarshalCBOR(payload, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return &p, nil
}

// Close releases the redis connection.
func (q *Queue) Close() error {
	return q.client.Close()
}
