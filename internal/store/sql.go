package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	constants "logamizer/config"
	"logamizer/internal/aggregate"
	"logamizer/internal/model"
)

// SQL is a Store over a caller-supplied *sql.DB (PostgreSQL). Counter columns
// use additive updates; JSON Top-K columns are merged in Go under a row lock.
type SQL struct {
	db *sql.DB
}

// NewSQL wraps an open database handle. The caller owns the handle and the
// schema migration.
func NewSQL(db *sql.DB) *SQL {
	return &SQL{db: db}
}

func sqlErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return &PersistenceError{Op: op, Err: ErrNotFound}
	}
	transient := errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded)
	return &PersistenceError{Op: op, Err: err, Transient: transient}
}

func (s *SQL) CreateSite(ctx context.Context, site *model.Site) error {
	ips, _ := json.Marshal(site.FilteredIPs)
	params, _ := json.Marshal(site.Anomaly)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sites (id, name, domain, log_format, anomaly_params, filtered_ips)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		site.ID, site.Name, site.Domain, site.LogFormat, params, ips)
	return sqlErr("create site", err)
}

func (s *SQL) GetSite(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	var params, ips []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, domain, log_format, anomaly_params, filtered_ips
		FROM sites WHERE id = $1`, id).
		Scan(&site.ID, &site.Name, &site.Domain, &site.LogFormat, &params, &ips)
	if err != nil {
		return nil, sqlErr("get site", err)
	}
	json.Unmarshal(params, &site.Anomaly)
	json.Unmarshal(ips, &site.FilteredIPs)
	return &site, nil
}

func (s *SQL) UpdateSite(ctx context.Context, site *model.Site) error {
	ips, _ := json.Marshal(site.FilteredIPs)
	params, _ := json.Marshal(site.Anomaly)
	_, err := s.db.ExecContext(ctx, `
		UPDATE sites SET name = $2, domain = $3, log_format = $4,
			anomaly_params = $5, filtered_ips = $6
		WHERE id = $1`,
		site.ID, site.Name, site.Domain, site.LogFormat, params, ips)
	return sqlErr("update site", err)
}

// DeleteSite relies on ON DELETE CASCADE for files, aggregates, findings,
// groups, and occurrences.
func (s *SQL) DeleteSite(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sites WHERE id = $1`, id)
	return sqlErr("delete site", err)
}

func (s *SQL) CreateLogFile(ctx context.Context, file *model.LogFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO log_files (id, site_id, filename, size_bytes, sha256, storage_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		file.ID, file.SiteID, file.Filename, file.SizeBytes, file.SHA256,
		file.StorageKey, file.Status, file.CreatedAt)
	return sqlErr("create log file", err)
}

func (s *SQL) GetLogFile(ctx context.Context, id string) (*model.LogFile, error) {
	return s.scanLogFile(ctx, `
		SELECT id, site_id, filename, size_bytes, sha256, storage_key, status, created_at, updated_at
		FROM log_files WHERE id = $1`, id)
}

func (s *SQL) FindLogFileBySHA(ctx context.Context, siteID, sha string) (*model.LogFile, error) {
	return s.scanLogFile(ctx, `
		SELECT id, site_id, filename, size_bytes, sha256, storage_key, status, created_at, updated_at
		FROM log_files WHERE site_id = $1 AND sha256 = $2`, siteID, sha)
}

func (s *SQL) ListLogFiles(ctx context.Context, siteID string) ([]model.LogFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, site_id, filename, size_bytes, sha256, storage_key, status, created_at, updated_at
		FROM log_files WHERE site_id = $1 ORDER BY created_at`, siteID)
	if err != nil {
		return nil, sqlErr("list log files", err)
	}
	defer rows.Close()

	var out []model.LogFile
	for rows.Next() {
		var f model.LogFile
		if err := rows.Scan(&f.ID, &f.SiteID, &f.Filename, &f.SizeBytes, &f.SHA256,
			&f.StorageKey, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, sqlErr("scan log file", err)
		}
		out = append(out, f)
	}
	return out, sqlErr("list log files", rows.Err())
}

func (s *SQL) scanLogFile(ctx context.Context, query string, args ...any) (*model.LogFile, error) {
	var f model.LogFile
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&f.ID, &f.SiteID, &f.Filename, &f.SizeBytes, &f.SHA256,
			&f.StorageKey, &f.Status, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, sqlErr("get log file", err)
	}
	return &f, nil
}

func (s *SQL) UpdateLogFileStatus(ctx context.Context, id string, status model.LogFileStatus, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE log_files SET status = $2, failure_reason = $3, updated_at = NOW()
		WHERE id = $1`, id, status, reason)
	return sqlErr("update log file", err)
}

func (s *SQL) SaveParseQuality(ctx context.Context, logFileID string, q *model.ParseQuality) error {
	payload, _ := json.Marshal(q)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parse_quality (log_file_id, report)
		VALUES ($1, $2)
		ON CONFLICT (log_file_id) DO UPDATE SET report = EXCLUDED.report`,
		logFileID, payload)
	return sqlErr("save parse quality", err)
}

func (s *SQL) GetParseQuality(ctx context.Context, logFileID string) (*model.ParseQuality, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM parse_quality WHERE log_file_id = $1`, logFileID).Scan(&payload)
	if err != nil {
		return nil, sqlErr("get parse quality", err)
	}
	var q model.ParseQuality
	if err := json.Unmarshal(payload, &q); err != nil {
		return nil, &PersistenceError{Op: "get parse quality", Err: err}
	}
	return &q, nil
}

// UpsertHourlyAggregate adds counters in SQL and merges the JSON Top-K
// summaries in Go while holding the row lock, so concurrent flushes for the
// same (site, hour) converge.
func (s *SQL) UpsertHourlyAggregate(ctx context.Context, delta *model.HourlyAggregate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqlErr("begin aggregate upsert", err)
	}
	defer tx.Rollback()

	hour := delta.HourBucket.UTC()
	var existing model.HourlyAggregate
	var topPaths, topIPs, topUAs, topStatus []byte
	err = tx.QueryRowContext(ctx, `
		SELECT requests_count, status_2xx, status_3xx, status_4xx, status_5xx,
			total_bytes, unique_ips, unique_paths,
			top_paths, top_ips, top_user_agents, top_status_codes
		FROM hourly_aggregates
		WHERE site_id = $1 AND hour_bucket = $2
		FOR UPDATE`, delta.SiteID, hour).
		Scan(&existing.RequestsCount, &existing.Status2xx, &existing.Status3xx,
			&existing.Status4xx, &existing.Status5xx, &existing.TotalBytes,
			&existing.UniqueIPs, &existing.UniquePaths,
			&topPaths, &topIPs, &topUAs, &topStatus)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := s.insertAggregate(ctx, tx, delta, hour); err != nil {
			return err
		}
	case err != nil:
		return sqlErr("lock aggregate", err)
	default:
		existing.SiteID = delta.SiteID
		existing.HourBucket = hour
		json.Unmarshal(topPaths, &existing.TopPaths)
		json.Unmarshal(topIPs, &existing.TopIPs)
		json.Unmarshal(topUAs, &existing.TopUserAgents)
		json.Unmarshal(topStatus, &existing.TopStatus)

		merged := aggregate.Merge(&existing, delta)
		mp, _ := json.Marshal(merged.TopPaths)
		mi, _ := json.Marshal(merged.TopIPs)
		mu, _ := json.Marshal(merged.TopUserAgents)
		ms, _ := json.Marshal(merged.TopStatus)
		_, err = tx.ExecContext(ctx, `
			UPDATE hourly_aggregates SET
				requests_count = $3, status_2xx = $4, status_3xx = $5,
				status_4xx = $6, status_5xx = $7, total_bytes = $8,
				unique_ips = $9, unique_paths = $10,
				top_paths = $11, top_ips = $12, top_user_agents = $13, top_status_codes = $14
			WHERE site_id = $1 AND hour_bucket = $2`,
			merged.SiteID, hour,
			merged.RequestsCount, merged.Status2xx, merged.Status3xx,
			merged.Status4xx, merged.Status5xx, merged.TotalBytes,
			merged.UniqueIPs, merged.UniquePaths, mp, mi, mu, ms)
		if err != nil {
			return sqlErr("update aggregate", err)
		}
	}

	return sqlErr("commit aggregate", tx.Commit())
}

func (s *SQL) insertAggregate(ctx context.Context, tx *sql.Tx, row *model.HourlyAggregate, hour time.Time) error {
	mp, _ := json.Marshal(row.TopPaths)
	mi, _ := json.Marshal(row.TopIPs)
	mu, _ := json.Marshal(row.TopUserAgents)
	ms, _ := json.Marshal(row.TopStatus)
	_, err := tx.ExecContext(ctx, `
		INSERT INTO hourly_aggregates (site_id, hour_bucket, requests_count,
			status_2xx, status_3xx, status_4xx, status_5xx, total_bytes,
			unique_ips, unique_paths, top_paths, top_ips, top_user_agents, top_status_codes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		row.SiteID, hour, row.RequestsCount,
		row.Status2xx, row.Status3xx, row.Status4xx, row.Status5xx, row.TotalBytes,
		row.UniqueIPs, row.UniquePaths, mp, mi, mu, ms)
	return sqlErr("insert aggregate", err)
}

func (s *SQL) GetAggregates(ctx context.Context, siteID string, from, to time.Time) ([]model.HourlyAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site_id, hour_bucket, requests_count, status_2xx, status_3xx,
			status_4xx, status_5xx, total_bytes, unique_ips, unique_paths,
			top_paths, top_ips, top_user_agents, top_status_codes
		FROM hourly_aggregates
		WHERE site_id = $1 AND hour_bucket >= $2 AND hour_bucket < $3
		ORDER BY hour_bucket`, siteID, from, to)
	if err != nil {
		return nil, sqlErr("get aggregates", err)
	}
	defer rows.Close()

	var out []model.HourlyAggregate
	for rows.Next() {
		var a model.HourlyAggregate
		var tp, ti, tu, ts []byte
		if err := rows.Scan(&a.SiteID, &a.HourBucket, &a.RequestsCount,
			&a.Status2xx, &a.Status3xx, &a.Status4xx, &a.Status5xx,
			&a.TotalBytes, &a.UniqueIPs, &a.UniquePaths, &tp, &ti, &tu, &ts); err != nil {
			return nil, sqlErr("scan aggregate", err)
		}
		json.Unmarshal(tp, &a.TopPaths)
		json.Unmarshal(ti, &a.TopIPs)
		json.Unmarshal(tu, &a.TopUserAgents)
		json.Unmarshal(ts, &a.TopStatus)
		a.HourBucket = a.HourBucket.UTC()
		out = append(out, a)
	}
	return out, sqlErr("get aggregates", rows.Err())
}

func (s *SQL) DeleteAggregates(ctx context.Context, siteID string, from, to time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM hourly_aggregates
		WHERE site_id = $1 AND hour_bucket >= $2 AND hour_bucket < $3`,
		siteID, from, to)
	return sqlErr("delete aggregates", err)
}

// UpsertFinding inserts on a unique fingerprint; on conflict it merges
// evidence up to the bound and keeps the higher severity.
func (s *SQL) UpsertFinding(ctx context.Context, f *model.Finding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sqlErr("begin finding upsert", err)
	}
	defer tx.Rollback()

	var existingEvidence []byte
	var existingSeverity string
	err = tx.QueryRowContext(ctx, `
		SELECT severity, evidence FROM findings WHERE fingerprint = $1 FOR UPDATE`,
		f.Fingerprint).Scan(&existingSeverity, &existingEvidence)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		ev, _ := json.Marshal(f.Evidence)
		md, _ := json.Marshal(f.Metadata)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO findings (fingerprint, site_id, finding_type, severity,
				title, description, subject, evidence, suggested_action, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			f.Fingerprint, f.SiteID, f.Type, f.Severity, f.Title, f.Description,
			f.Subject, ev, f.SuggestedAction, md)
		if err != nil {
			return sqlErr("insert finding", err)
		}
	case err != nil:
		return sqlErr("lock finding", err)
	default:
		var evidence []model.Evidence
		json.Unmarshal(existingEvidence, &evidence)
		evidence = mergeEvidence(evidence, f.Evidence)
		severity := model.Severity(existingSeverity)
		if severityRank(f.Severity) > severityRank(severity) {
			severity = f.Severity
		}
		ev, _ := json.Marshal(evidence)
		_, err = tx.ExecContext(ctx, `
			UPDATE findings SET severity = $2, evidence = $3 WHERE fingerprint = $1`,
			f.Fingerprint, severity, ev)
		if err != nil {
			return sqlErr("update finding", err)
		}
	}

	return sqlErr("commit finding", tx.Commit())
}

func mergeEvidence(existing, incoming []model.Evidence) []model.Evidence {
	seen := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.Raw] = struct{}{}
	}
	for _, e := range incoming {
		if len(existing) >= constants.MAX_EVIDENCE_SAMPLES {
			break
		}
		if _, dup := seen[e.Raw]; dup {
			continue
		}
		existing = append(existing, e)
		seen[e.Raw] = struct{}{}
	}
	return existing
}

func (s *SQL) GetFindings(ctx context.Context, siteID string) ([]model.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint, site_id, finding_type, severity, title, description,
			subject, evidence, suggested_action, metadata
		FROM findings WHERE site_id = $1 ORDER BY fingerprint`, siteID)
	if err != nil {
		return nil, sqlErr("get findings", err)
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		var f model.Finding
		var ev, md []byte
		if err := rows.Scan(&f.Fingerprint, &f.SiteID, &f.Type, &f.Severity,
			&f.Title, &f.Description, &f.Subject, &ev, &f.SuggestedAction, &md); err != nil {
			return nil, sqlErr("scan finding", err)
		}
		json.Unmarshal(ev, &f.Evidence)
		json.Unmarshal(md, &f.Metadata)
		out = append(out, f)
	}
	return out, sqlErr("get findings", rows.Err())
}

func (s *SQL) DeleteFindings(ctx context.Context, siteID string, from, to time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM findings
		WHERE site_id = $1
		AND COALESCE(metadata->>'hour_bucket', metadata->>'first_seen') >= $2
		AND COALESCE(metadata->>'hour_bucket', metadata->>'first_seen') < $3`,
		siteID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	return sqlErr("delete findings", err)
}

// UpsertErrorGroup counts one occurrence per call; the insert-or-update is a
// single atomic statement.
func (s *SQL) UpsertErrorGroup(ctx context.Context, group *model.ErrorGroup) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_groups (site_id, fingerprint, error_type, error_message,
			first_seen, last_seen, occurrence_count, status)
		VALUES ($1, $2, $3, $4, $5, $5, 1, $6)
		ON CONFLICT (site_id, fingerprint) DO UPDATE SET
			first_seen = LEAST(error_groups.first_seen, EXCLUDED.first_seen),
			last_seen = GREATEST(error_groups.last_seen, EXCLUDED.last_seen),
			occurrence_count = error_groups.occurrence_count + 1`,
		group.SiteID, group.Fingerprint, group.ErrorType, group.ErrorMessage,
		group.FirstSeen, model.GroupUnresolved)
	return sqlErr("upsert error group", err)
}

func (s *SQL) GetErrorGroup(ctx context.Context, siteID, fingerprint string) (*model.ErrorGroup, error) {
	var g model.ErrorGroup
	err := s.db.QueryRowContext(ctx, `
		SELECT site_id, fingerprint, error_type, error_message, first_seen,
			last_seen, occurrence_count, status
		FROM error_groups WHERE site_id = $1 AND fingerprint = $2`,
		siteID, fingerprint).
		Scan(&g.SiteID, &g.Fingerprint, &g.ErrorType, &g.ErrorMessage,
			&g.FirstSeen, &g.LastSeen, &g.OccurrenceCount, &g.Status)
	if err != nil {
		return nil, sqlErr("get error group", err)
	}
	return &g, nil
}

func (s *SQL) GetErrorGroups(ctx context.Context, siteID string) ([]model.ErrorGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site_id, fingerprint, error_type, error_message, first_seen,
			last_seen, occurrence_count, status
		FROM error_groups WHERE site_id = $1 ORDER BY fingerprint`, siteID)
	if err != nil {
		return nil, sqlErr("get error groups", err)
	}
	defer rows.Close()

	var out []model.ErrorGroup
	for rows.Next() {
		var g model.ErrorGroup
		if err := rows.Scan(&g.SiteID, &g.Fingerprint, &g.ErrorType, &g.ErrorMessage,
			&g.FirstSeen, &g.LastSeen, &g.OccurrenceCount, &g.Status); err != nil {
			return nil, sqlErr("scan error group", err)
		}
		out = append(out, g)
	}
	return out, sqlErr("get error groups", rows.Err())
}

func (s *SQL) SetErrorGroupStatus(ctx context.Context, siteID, fingerprint string, status model.GroupStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE error_groups SET status = $3 WHERE site_id = $1 AND fingerprint = $2`,
		siteID, fingerprint, status)
	if err != nil {
		return sqlErr("set group status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &PersistenceError{Op: "set group status", Err: ErrNotFound}
	}
	return nil
}

func (s *SQL) InsertErrorOccurrence(ctx context.Context, occ *model.ErrorOccurrence) error {
	ctxJSON, _ := json.Marshal(occ.Context)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_occurrences (group_fingerprint, log_file_id, occurred_at,
			error_type, error_message, stack_trace, file_path, line_number,
			function_name, request_url, request_method, ip_address, user_agent, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		occ.GroupFingerprint, occ.LogFileID, occ.Timestamp, occ.ErrorType,
		occ.ErrorMessage, occ.StackTrace, occ.FilePath, occ.LineNumber,
		occ.FunctionName, occ.RequestURL, occ.RequestMethod, occ.IPAddress,
		occ.UserAgent, ctxJSON)
	return sqlErr("insert occurrence", err)
}

func (s *SQL) GetOccurrences(ctx context.Context, groupFingerprint string) ([]model.ErrorOccurrence, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_fingerprint, log_file_id, occurred_at, error_type, error_message,
			stack_trace, file_path, line_number, function_name, request_url,
			request_method, ip_address, user_agent, context
		FROM error_occurrences WHERE group_fingerprint = $1 ORDER BY occurred_at`,
		groupFingerprint)
	if err != nil {
		return nil, sqlErr("get occurrences", err)
	}
	defer rows.Close()

	var out []model.ErrorOccurrence
	for rows.Next() {
		var o model.ErrorOccurrence
		var c []byte
		if err := rows.Scan(&o.GroupFingerprint, &o.LogFileID, &o.Timestamp,
			&o.ErrorType, &o.ErrorMessage, &o.StackTrace, &o.FilePath,
			&o.LineNumber, &o.FunctionName, &o.RequestURL, &o.RequestMethod,
			&o.IPAddress, &o.UserAgent, &c); err != nil {
			return nil, sqlErr("scan occurrence", err)
		}
		json.Unmarshal(c, &o.Context)
		out = append(out, o)
	}
	return out, sqlErr("get occurrences", rows.Err())
}
