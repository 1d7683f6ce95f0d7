// Package store persists sites, log files, aggregates, findings, and error
// groups. The memory implementation backs tests and single-process runs; the
// SQL implementation backs production workers.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"logamizer/internal/model"
)

// ErrNotFound is returned for lookups of absent rows.
var ErrNotFound = errors.New("not found")

// PersistenceError wraps a store failure. Transient failures are retried by
// the driver with capped backoff; the rest fail the job.
type PersistenceError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsTransient reports whether the error is a retryable persistence failure.
func IsTransient(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Transient
}

// Store is the relational surface of the pipeline.
type Store interface {
	// Sites
	CreateSite(ctx context.Context, site *model.Site) error
	GetSite(ctx context.Context, id string) (*model.Site, error)
	UpdateSite(ctx context.Context, site *model.Site) error
	DeleteSite(ctx context.Context, id string) error

	// Log files. (SiteID, SHA256) is unique; FindLogFileBySHA backs the
	// re-upload short-circuit.
	CreateLogFile(ctx context.Context, file *model.LogFile) error
	GetLogFile(ctx context.Context, id string) (*model.LogFile, error)
	FindLogFileBySHA(ctx context.Context, siteID, sha256 string) (*model.LogFile, error)
	ListLogFiles(ctx context.Context, siteID string) ([]model.LogFile, error)
	UpdateLogFileStatus(ctx context.Context, id string, status model.LogFileStatus, reason string) error
	SaveParseQuality(ctx context.Context, logFileID string, q *model.ParseQuality) error
	GetParseQuality(ctx context.Context, logFileID string) (*model.ParseQuality, error)

	// Aggregates. The upsert is commutative-additive: counters add, Top-K
	// lists merge by summed counts.
	UpsertHourlyAggregate(ctx context.Context, delta *model.HourlyAggregate) error
	GetAggregates(ctx context.Context, siteID string, from, to time.Time) ([]model.HourlyAggregate, error)
	DeleteAggregates(ctx context.Context, siteID string, from, to time.Time) error

	// Findings. Insert with a unique fingerprint; on conflict merge evidence
	// up to the bound and keep the higher severity.
	UpsertFinding(ctx context.Context, f *model.Finding) error
	GetFindings(ctx context.Context, siteID string) ([]model.Finding, error)
	DeleteFindings(ctx context.Context, siteID string, from, to time.Time) error

	// Error groups and occurrences.
	UpsertErrorGroup(ctx context.Context, group *model.ErrorGroup) error
	GetErrorGroup(ctx context.Context, siteID, fingerprint string) (*model.ErrorGroup, error)
	GetErrorGroups(ctx context.Context, siteID string) ([]model.ErrorGroup, error)
	SetErrorGroupStatus(ctx context.Context, siteID, fingerprint string, status model.GroupStatus) error
	InsertErrorOccurrence(ctx context.Context, occ *model.ErrorOccurrence) error
	GetOccurrences(ctx context.Context, groupFingerprint string) ([]model.ErrorOccurrence, error)
}

// BlobStore is the raw upload surface. Reads stream; timeouts and corrupt
// reads surface as decode failures in the pipeline.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (size int64, sha256hex string, err error)
	Read(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
