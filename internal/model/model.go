// Package model defines the shared data types the pipeline operates on.
package model

import "time"

// =============================================================================
// Enumerations
// =============================================================================

// Severity ranks findings and anomaly signals.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// LogFileStatus tracks the lifecycle of one uploaded file.
type LogFileStatus string

const (
	FilePending    LogFileStatus = "pending"
	FileProcessing LogFileStatus = "processing"
	FileCompleted  LogFileStatus = "completed"
	FileFailed     LogFileStatus = "failed"
)

// GroupStatus is the user-facing state of an error group.
type GroupStatus string

const (
	GroupUnresolved GroupStatus = "unresolved"
	GroupResolved   GroupStatus = "resolved"
	GroupIgnored    GroupStatus = "ignored"
)

// JobStatus is the terminal/in-flight state of a pipeline job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// =============================================================================
// Sites and files
// =============================================================================

// AnomalyParams are the per-site knobs for the anomaly detector.
type AnomalyParams struct {
	BaselineDays     int     `json:"baseline_days"`
	MinBaselineHours int     `json:"min_baseline_hours"`
	ZThreshold       float64 `json:"z_threshold"`
	NewPathMinCount  int     `json:"new_path_min_count"`
}

// Site is the identity every derived row references.
type Site struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Domain     string        `json:"domain,omitempty"`
	LogFormat  string        `json:"log_format"` // nginx_combined | apache_combined | auto
	Anomaly    AnomalyParams `json:"anomaly"`
	FilteredIPs []string     `json:"filtered_ips"` // ordered set of hidden IP literals
}

// LogFile is one ingestion unit. (SiteID, SHA256) is unique: re-uploading
// identical bytes reuses the existing file and its derived data.
type LogFile struct {
	ID         string        `json:"id"`
	SiteID     string        `json:"site_id"`
	Filename   string        `json:"filename"`
	SizeBytes  int64         `json:"size_bytes"`
	SHA256     string        `json:"sha256"`
	StorageKey string        `json:"storage_key"`
	Status     LogFileStatus `json:"status"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// =============================================================================
// Normalized events
// =============================================================================

// NormalizedEvent is the transient per-request record produced by the access
// log parser. It is consumed by the downstream stages and never persisted.
type NormalizedEvent struct {
	Timestamp  time.Time // UTC, second precision
	IP         string
	Method     string
	Path       string
	Status     int
	BytesSent  int64
	Referer    string // empty means absent ("-" in the log)
	UserAgent  string
	User       string
	Protocol   string
	RawLine    string
	LineNumber int
}

// StatusClass buckets the response status into 2xx/3xx/4xx/5xx or "other".
func (e *NormalizedEvent) StatusClass() string {
	switch {
	case e.Status >= 200 && e.Status < 300:
		return "2xx"
	case e.Status >= 300 && e.Status < 400:
		return "3xx"
	case e.Status >= 400 && e.Status < 500:
		return "4xx"
	case e.Status >= 500 && e.Status < 600:
		return "5xx"
	}
	return "other"
}

// HourBucket floors the event timestamp to the hour in UTC.
func (e *NormalizedEvent) HourBucket() time.Time {
	return e.Timestamp.UTC().Truncate(time.Hour)
}

// =============================================================================
// Aggregates
// =============================================================================

// TopEntry is one (key, count) pair of a bounded Top-K summary.
type TopEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// HourlyAggregate is one row per (site, hour_bucket). Counter updates are
// additive and commutative so concurrent ingest of the same bucket converges.
type HourlyAggregate struct {
	SiteID        string     `json:"site_id"`
	HourBucket    time.Time  `json:"hour_bucket"` // floored to the hour, UTC
	RequestsCount int64      `json:"requests_count"`
	Status2xx     int64      `json:"status_2xx"`
	Status3xx     int64      `json:"status_3xx"`
	Status4xx     int64      `json:"status_4xx"`
	Status5xx     int64      `json:"status_5xx"`
	TotalBytes    int64      `json:"total_bytes"`
	UniqueIPs     int64      `json:"unique_ips"`   // additive upper-bound across incremental runs
	UniquePaths   int64      `json:"unique_paths"` // same estimate semantics as UniqueIPs
	TopPaths      []TopEntry `json:"top_paths"`
	TopIPs        []TopEntry `json:"top_ips"`
	TopUserAgents []TopEntry `json:"top_user_agents"`
	TopStatus     []TopEntry `json:"top_status_codes"`
}

// Unclassified returns the number of requests whose status fell outside
// 2xx..5xx. The counter invariant is RequestsCount == sum(statusNxx) + Unclassified.
func (a *HourlyAggregate) Unclassified() int64 {
	return a.RequestsCount - a.Status2xx - a.Status3xx - a.Status4xx - a.Status5xx
}

// =============================================================================
// Findings
// =============================================================================

// Evidence is one sampled log line backing a finding.
type Evidence struct {
	Line int    `json:"line"`
	Raw  string `json:"raw"`
}

// Finding is a security or anomaly signal. Fingerprint is stable across runs
// so repeated ingests upsert instead of duplicating.
type Finding struct {
	SiteID          string         `json:"site_id"`
	Type            string         `json:"finding_type"`
	Severity        Severity       `json:"severity"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Subject         string         `json:"subject"` // canonical subject: IP, path, UA, ...
	Evidence        []Evidence     `json:"evidence"`
	SuggestedAction string         `json:"suggested_action,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Fingerprint     string         `json:"fingerprint"`
}

// =============================================================================
// Error groups
// =============================================================================

// ErrorGroup deduplicates recurring errors by fingerprint. Counters only grow;
// Status is mutated by user action alone.
type ErrorGroup struct {
	SiteID          string      `json:"site_id"`
	Fingerprint     string      `json:"fingerprint"`
	ErrorType       string      `json:"error_type"`
	ErrorMessage    string      `json:"error_message"`
	FirstSeen       time.Time   `json:"first_seen"`
	LastSeen        time.Time   `json:"last_seen"`
	OccurrenceCount int64       `json:"occurrence_count"`
	Status          GroupStatus `json:"status"`
}

// ErrorOccurrence is one concrete error event linked to a group. The owning
// LogFile cascades deletion of its occurrences.
type ErrorOccurrence struct {
	GroupFingerprint string            `json:"group_fingerprint"`
	LogFileID        string            `json:"log_file_id"`
	Timestamp        time.Time         `json:"timestamp"`
	ErrorType        string            `json:"error_type"`
	ErrorMessage     string            `json:"error_message"`
	StackTrace       string            `json:"stack_trace,omitempty"`
	FilePath         string            `json:"file_path,omitempty"`
	LineNumber       int               `json:"line_number,omitempty"`
	FunctionName     string            `json:"function_name,omitempty"`
	RequestURL       string            `json:"request_url,omitempty"`
	RequestMethod    string            `json:"request_method,omitempty"`
	IPAddress        string            `json:"ip_address,omitempty"`
	UserAgent        string            `json:"user_agent,omitempty"`
	Context          map[string]string `json:"context,omitempty"`
}

// =============================================================================
// Parse quality
// =============================================================================

// ParseErrorSample records one failed line for the quality report.
type ParseErrorSample struct {
	Line  int    `json:"line"`
	Raw   string `json:"raw"`
	Error string `json:"error"`
}

// ParseQuality is the per-file parse report persisted by the driver.
type ParseQuality struct {
	TotalLines     int                `json:"total_lines"`
	ParsedLines    int                `json:"parsed_lines"`
	FailedLines    int                `json:"failed_lines"`
	EmptyLines     int                `json:"empty_lines"`
	FirstTimestamp time.Time          `json:"first_timestamp,omitzero"`
	LastTimestamp  time.Time          `json:"last_timestamp,omitzero"`
	SampleErrors   []ParseErrorSample `json:"sample_errors,omitempty"`
}

// SuccessRate is parsed over parseable (total minus empty) lines.
func (q *ParseQuality) SuccessRate() float64 {
	parseable := q.TotalLines - q.EmptyLines
	if parseable <= 0 {
		return 0
	}
	return float64(q.ParsedLines) / float64(parseable)
}
