package store

import (
	"context"
	"sort"
	"sync"
	"time"

	constants "logamizer/config"
	"logamizer/internal/aggregate"
	"logamizer/internal/model"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and single
// process runs; semantics match the SQL implementation.
type Memory struct {
	mu          sync.Mutex
	sites       map[string]model.Site
	files       map[string]model.LogFile
	quality     map[string]model.ParseQuality
	aggregates  map[string]map[time.Time]model.HourlyAggregate // siteID -> hour -> row
	findings    map[string]model.Finding                       // fingerprint -> row
	groups      map[string]model.ErrorGroup                    // siteID+"\x00"+fingerprint
	occurrences map[string][]model.ErrorOccurrence             // group fingerprint -> rows
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sites:       make(map[string]model.Site),
		files:       make(map[string]model.LogFile),
		quality:     make(map[string]model.ParseQuality),
		aggregates:  make(map[string]map[time.Time]model.HourlyAggregate),
		findings:    make(map[string]model.Finding),
		groups:      make(map[string]model.ErrorGroup),
		occurrences: make(map[string][]model.ErrorOccurrence),
	}
}

func (m *Memory) CreateSite(ctx context.Context, site *model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.ID] = *site
	return nil
}

func (m *Memory) GetSite(ctx context.Context, id string) (*model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[id]
	if !ok {
		return nil, &PersistenceError{Op: "get site", Err: ErrNotFound}
	}
	return &site, nil
}

func (m *Memory) UpdateSite(ctx context.Context, site *model.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[site.ID]; !ok {
		return &PersistenceError{Op: "update site", Err: ErrNotFound}
	}
	m.sites[site.ID] = *site
	return nil
}

// DeleteSite cascades: files, aggregates, findings, groups, and occurrences
// referencing the site are removed.
func (m *Memory) DeleteSite(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sites, id)
	delete(m.aggregates, id)
	for fileID, f := range m.files {
		if f.SiteID == id {
			delete(m.files, fileID)
			delete(m.quality, fileID)
		}
	}
	for fp, f := range m.findings {
		if f.SiteID == id {
			delete(m.findings, fp)
		}
	}
	for key, g := range m.groups {
		if g.SiteID == id {
			delete(m.occurrences, g.Fingerprint)
			delete(m.groups, key)
		}
	}
	return nil
}

func (m *Memory) CreateLogFile(ctx context.Context, file *model.LogFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.ID] = *file
	return nil
}

func (m *Memory) GetLogFile(ctx context.Context, id string) (*model.LogFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, &PersistenceError{Op: "get log file", Err: ErrNotFound}
	}
	return &f, nil
}

func (m *Memory) FindLogFileBySHA(ctx context.Context, siteID, sha string) (*model.LogFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		if f.SiteID == siteID && f.SHA256 == sha {
			found := f
			return &found, nil
		}
	}
	return nil, &PersistenceError{Op: "find log file", Err: ErrNotFound}
}

func (m *Memory) ListLogFiles(ctx context.Context, siteID string) ([]model.LogFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LogFile
	for _, f := range m.files {
		if f.SiteID == siteID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateLogFileStatus(ctx context.Context, id string, status model.LogFileStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return &PersistenceError{Op: "update log file", Err: ErrNotFound}
	}
	f.Status = status
	f.UpdatedAt = time.Now().UTC()
	m.files[id] = f
	return nil
}

func (m *Memory) SaveParseQuality(ctx context.Context, logFileID string, q *model.ParseQuality) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quality[logFileID] = *q
	return nil
}

func (m *Memory) GetParseQuality(ctx context.Context, logFileID string) (*model.ParseQuality, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quality[logFileID]
	if !ok {
		return nil, &PersistenceError{Op: "get parse quality", Err: ErrNotFound}
	}
	return &q, nil
}

func (m *Memory) UpsertHourlyAggregate(ctx context.Context, delta *model.HourlyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rows := m.aggregates[delta.SiteID]
	if rows == nil {
		rows = make(map[time.Time]model.HourlyAggregate)
		m.aggregates[delta.SiteID] = rows
	}
	hour := delta.HourBucket.UTC()
	if existing, ok := rows[hour]; ok {
		rows[hour] = aggregate.Merge(&existing, delta)
	} else {
		fresh := *delta
		fresh.HourBucket = hour
		rows[hour] = fresh
	}
	return nil
}

func (m *Memory) GetAggregates(ctx context.Context, siteID string, from, to time.Time) ([]model.HourlyAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.HourlyAggregate
	for hour, row := range m.aggregates[siteID] {
		if !hour.Before(from) && hour.Before(to) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HourBucket.Before(out[j].HourBucket) })
	return out, nil
}

func (m *Memory) DeleteAggregates(ctx context.Context, siteID string, from, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hour := range m.aggregates[siteID] {
		if !hour.Before(from) && hour.Before(to) {
			delete(m.aggregates[siteID], hour)
		}
	}
	return nil
}

func (m *Memory) UpsertFinding(ctx context.Context, f *model.Finding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.findings[f.Fingerprint]
	if !ok {
		m.findings[f.Fingerprint] = *f
		return nil
	}
	// Merge evidence up to the bound; keep the higher severity.
	seen := make(map[string]struct{}, len(existing.Evidence))
	for _, e := range existing.Evidence {
		seen[e.Raw] = struct{}{}
	}
	for _, e := range f.Evidence {
		if len(existing.Evidence) >= constants.MAX_EVIDENCE_SAMPLES {
			break
		}
		if _, dup := seen[e.Raw]; dup {
			continue
		}
		existing.Evidence = append(existing.Evidence, e)
		seen[e.Raw] = struct{}{}
	}
	if severityRank(f.Severity) > severityRank(existing.Severity) {
		existing.Severity = f.Severity
		existing.Description = f.Description
	}
	m.findings[f.Fingerprint] = existing
	return nil
}

func (m *Memory) GetFindings(ctx context.Context, siteID string) ([]model.Finding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Finding
	for _, f := range m.findings {
		if f.SiteID == siteID {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (m *Memory) DeleteFindings(ctx context.Context, siteID string, from, to time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for fp, f := range m.findings {
		if f.SiteID != siteID {
			continue
		}
		hour, ok := f.Metadata["hour_bucket"].(string)
		if !ok {
			if first, ok2 := f.Metadata["first_seen"].(string); ok2 {
				hour = first
			}
		}
		ts, err := time.Parse(time.RFC3339, hour)
		if err != nil || (!ts.Before(from) && ts.Before(to)) {
			delete(m.findings, fp)
		}
	}
	return nil
}

func groupKey(siteID, fingerprint string) string {
	return siteID + "\x00" + fingerprint
}

func (m *Memory) UpsertErrorGroup(ctx context.Context, group *model.ErrorGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := groupKey(group.SiteID, group.Fingerprint)
	existing, ok := m.groups[key]
	if !ok {
		fresh := *group
		fresh.OccurrenceCount = 1
		fresh.Status = model.GroupUnresolved
		m.groups[key] = fresh
		return nil
	}
	if group.FirstSeen.Before(existing.FirstSeen) {
		existing.FirstSeen = group.FirstSeen
	}
	if group.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = group.LastSeen
	}
	existing.OccurrenceCount++
	m.groups[key] = existing
	return nil
}

func (m *Memory) GetErrorGroup(ctx context.Context, siteID, fingerprint string) (*model.ErrorGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupKey(siteID, fingerprint)]
	if !ok {
		return nil, &PersistenceError{Op: "get error group", Err: ErrNotFound}
	}
	return &g, nil
}

func (m *Memory) GetErrorGroups(ctx context.Context, siteID string) ([]model.ErrorGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ErrorGroup
	for _, g := range m.groups {
		if g.SiteID == siteID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Fingerprint < out[j].Fingerprint })
	return out, nil
}

func (m *Memory) SetErrorGroupStatus(ctx context.Context, siteID, fingerprint string, status model.GroupStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := groupKey(siteID, fingerprint)
	g, ok := m.groups[key]
	if !ok {
		return &PersistenceError{Op: "set group status", Err: ErrNotFound}
	}
	g.Status = status
	m.groups[key] = g
	return nil
}

func (m *Memory) InsertErrorOccurrence(ctx context.Context, occ *model.ErrorOccurrence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.occurrences[occ.GroupFingerprint] = append(m.occurrences[occ.GroupFingerprint], *occ)
	return nil
}

func (m *Memory) GetOccurrences(ctx context.Context, groupFingerprint string) ([]model.ErrorOccurrence, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ErrorOccurrence(nil), m.occurrences[groupFingerprint]...), nil
}

func severityRank(s model.Severity) int {
	switch s {
	case model.SeverityCritical:
		return 4
	case model.SeverityHigh:
		return 3
	case model.SeverityMedium:
		return 2
	case model.SeverityLow:
		return 1
	}
	return 0
}
