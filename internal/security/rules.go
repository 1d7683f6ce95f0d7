package security

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	constants "logamizer/config"
	"logamizer/internal/model"
)

// Rule is one stateful detector stepped once per event. Findings are emitted
// at end of stream so windowed rules see their whole input first.
type Rule interface {
	ID() string
	Step(e *model.NormalizedEvent)
	Findings() []model.Finding
}

// subjectState is the per-subject accumulation shared by the rule kinds.
type subjectState struct {
	count     int
	peak      int // windowed rules: largest in-window count observed
	firstSeen time.Time
	evidence  []model.Evidence
}

func (s *subjectState) record(e *model.NormalizedEvent) {
	s.count++
	if s.firstSeen.IsZero() || e.Timestamp.Before(s.firstSeen) {
		s.firstSeen = e.Timestamp
	}
	if len(s.evidence) < constants.MAX_EVIDENCE_SAMPLES {
		s.evidence = append(s.evidence, model.Evidence{Line: e.LineNumber, Raw: e.RawLine})
	}
}

// counterRule fires per subject once the match count reaches a threshold.
// Pattern rules are counter rules with threshold 1.
type counterRule struct {
	id        string
	severity  model.Severity
	threshold int
	title     string
	action    string
	match     func(e *model.NormalizedEvent) (subject string, ok bool)
	subjects  map[string]*subjectState
}

func (r *counterRule) ID() string { return r.id }

func (r *counterRule) Step(e *model.NormalizedEvent) {
	subject, ok := r.match(e)
	if !ok {
		return
	}
	s := r.subjects[subject]
	if s == nil {
		s = &subjectState{}
		r.subjects[subject] = s
	}
	s.record(e)
}

func (r *counterRule) Findings() []model.Finding {
	var out []model.Finding
	for subject, s := range r.subjects {
		if s.count < r.threshold {
			continue
		}
		out = append(out, model.Finding{
			Type:            r.id,
			Severity:        r.severity,
			Title:           r.title,
			Description:     fmt.Sprintf("%s (%d matching requests)", r.title, s.count),
			Subject:         subject,
			Evidence:        s.evidence,
			SuggestedAction: r.action,
			Metadata: map[string]any{
				"evidence_count": s.count,
				"first_seen":     s.firstSeen.Format(time.RFC3339),
			},
		})
	}
	return out
}

// windowRule fires per subject once the sliding-window count reaches the
// threshold; crossing escalateAt raises the severity one step.
type windowRule struct {
	id         string
	severity   model.Severity
	escalated  model.Severity
	threshold  int
	escalateAt int
	window     time.Duration
	title      string
	action     string
	match      func(e *model.NormalizedEvent) (subject string, ok bool)
	windows    map[string]*slidingWindow
	subjects   map[string]*subjectState
}

func (r *windowRule) ID() string { return r.id }

func (r *windowRule) Step(e *model.NormalizedEvent) {
	subject, ok := r.match(e)
	if !ok {
		return
	}
	w := r.windows[subject]
	if w == nil {
		w = newSlidingWindow(r.window)
		r.windows[subject] = w
	}
	s := r.subjects[subject]
	if s == nil {
		s = &subjectState{}
		r.subjects[subject] = s
	}
	s.record(e)
	if n := w.Add(e.Timestamp); n > s.peak {
		s.peak = n
	}
}

func (r *windowRule) Findings() []model.Finding {
	var out []model.Finding
	for subject, s := range r.subjects {
		if s.peak < r.threshold {
			continue
		}
		severity := r.severity
		if r.escalateAt > 0 && s.peak >= r.escalateAt {
			severity = r.escalated
		}
		out = append(out, model.Finding{
			Type:            r.id,
			Severity:        severity,
			Title:           r.title,
			Description:     fmt.Sprintf("%s (%d requests in %s window, %d total)", r.title, s.peak, r.window, s.count),
			Subject:         subject,
			Evidence:        s.evidence,
			SuggestedAction: r.action,
			Metadata: map[string]any{
				"evidence_count":    s.count,
				"peak_window_count": s.peak,
				"window_minutes":    int(r.window.Minutes()),
				"first_seen":        s.firstSeen.Format(time.RFC3339),
			},
		})
	}
	return out
}

var (
	sqliPattern = regexp.MustCompile(constants.InjectionSignatures["sqli"])
	xssPattern  = regexp.MustCompile(constants.InjectionSignatures["xss"])

	sensitivePatterns = compileAll(constants.SensitiveFilePatterns)
)

func compileAll(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func newScannerRule() Rule {
	return &windowRule{
		id:         "scanner.probing",
		severity:   model.SeverityHigh,
		escalated:  model.SeverityCritical,
		threshold:  constants.SCANNER_404_THRESHOLD,
		escalateAt: constants.SCANNER_404_HIGH_THRESHOLD,
		window:     constants.SCANNER_WINDOW_MINUTES * time.Minute,
		title:      "Scanner probing for missing paths",
		action:     "Block or rate-limit the source IP at the edge",
		match: func(e *model.NormalizedEvent) (string, bool) {
			return e.IP, e.Status == 404
		},
		windows:  make(map[string]*slidingWindow),
		subjects: make(map[string]*subjectState),
	}
}

func newAdminProbeRule() Rule {
	return &counterRule{
		id:        "probe.admin_path",
		severity:  model.SeverityMedium,
		threshold: 1,
		title:     "Request to a known admin or probe path",
		action:    "Confirm the panel is not exposed; consider IP allow-listing",
		match: func(e *model.NormalizedEvent) (string, bool) {
			lower := strings.ToLower(e.Path)
			for _, prefix := range constants.AdminProbePaths {
				if strings.Contains(lower, prefix) {
					return e.IP + " " + prefix, true
				}
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}

func newInjectionRule() Rule {
	return &counterRule{
		id:        "injection.signature",
		severity:  model.SeverityHigh,
		threshold: 1,
		title:     "Injection signature in request",
		action:    "Verify the WAF rules cover this pattern and block the source",
		match: func(e *model.NormalizedEvent) (string, bool) {
			if sqliPattern.MatchString(e.Path) {
				return e.IP + " sqli", true
			}
			if xssPattern.MatchString(e.Path) {
				return e.IP + " xss", true
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}

func newBruteForceRule() Rule {
	return &windowRule{
		id:         "auth.brute_force",
		severity:   model.SeverityHigh,
		escalated:  model.SeverityCritical,
		threshold:  constants.BRUTE_FORCE_THRESHOLD,
		escalateAt: 2 * constants.BRUTE_FORCE_THRESHOLD,
		window:     constants.BRUTE_FORCE_WINDOW_MINUTES * time.Minute,
		title:      "Repeated authentication failures",
		action:     "Enforce lockout or captcha on the login endpoint",
		match: func(e *model.NormalizedEvent) (string, bool) {
			if e.Status < 400 || e.Status >= 500 {
				return "", false
			}
			lower := strings.ToLower(e.Path)
			for _, auth := range constants.AuthPathPatterns {
				if strings.Contains(lower, auth) {
					return e.IP, true
				}
			}
			return "", false
		},
		windows:  make(map[string]*slidingWindow),
		subjects: make(map[string]*subjectState),
	}
}

func newBadUARule() Rule {
	return &counterRule{
		id:        "ua.known_bad",
		severity:  model.SeverityMedium,
		threshold: 1,
		title:     "Known attack-tool user agent",
		action:    "Block the tool's user agent or the source IP",
		match: func(e *model.NormalizedEvent) (string, bool) {
			lower := strings.ToLower(e.UserAgent)
			if lower == "" {
				return "", false
			}
			for _, bad := range constants.BadUserAgents {
				if strings.Contains(lower, bad) {
					return e.UserAgent, true
				}
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}

func newSensitiveFileRule() Rule {
	return &counterRule{
		id:        "exposure.sensitive_file",
		severity:  model.SeverityCritical,
		threshold: 1,
		title:     "Sensitive file served successfully",
		action:    "Remove the file from the web root and rotate exposed secrets",
		match: func(e *model.NormalizedEvent) (string, bool) {
			if e.Status < 200 || e.Status >= 300 {
				return "", false
			}
			for _, p := range sensitivePatterns {
				if p.MatchString(e.Path) {
					return e.Path, true
				}
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}

func newTraversalRule() Rule {
	return &counterRule{
		id:        "traversal.dotdot",
		severity:  model.SeverityHigh,
		threshold: 1,
		title:     "Directory traversal attempt",
		action:    "Confirm path normalization rejects .. segments",
		match: func(e *model.NormalizedEvent) (string, bool) {
			decoded := e.Path
			if u, err := url.PathUnescape(e.Path); err == nil {
				decoded = u
			}
			if strings.Contains(decoded, "../") || strings.HasSuffix(decoded, "..") {
				return e.IP + " " + decoded, true
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}

func newClient5xxRule() Rule {
	return &windowRule{
		id:         "client.high_5xx",
		severity:   model.SeverityMedium,
		escalated:  model.SeverityHigh,
		threshold:  constants.CLIENT_5XX_THRESHOLD,
		escalateAt: 2 * constants.CLIENT_5XX_THRESHOLD,
		window:     constants.CLIENT_5XX_WINDOW_MINUTES * time.Minute,
		title:      "High server-error rate for one client",
		action:     "Check whether the client is abusive or hitting a broken endpoint",
		match: func(e *model.NormalizedEvent) (string, bool) {
			return e.IP, e.Status >= 500 && e.Status < 600
		},
		windows:  make(map[string]*slidingWindow),
		subjects: make(map[string]*subjectState),
	}
}

func newSuspiciousMethodRule() Rule {
	return &counterRule{
		id:        "method.suspicious",
		severity:  model.SeverityLow,
		threshold: 1,
		title:     "TRACE or CONNECT request",
		action:    "Disable the method at the server if unused",
		match: func(e *model.NormalizedEvent) (string, bool) {
			if e.Method == "TRACE" || e.Method == "CONNECT" {
				return e.IP + " " + e.Method, true
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}

func newMissingUARule() Rule {
	return &counterRule{
		id:        "ua.missing",
		severity:  model.SeverityLow,
		threshold: 10,
		title:     "Write requests without a user agent",
		action:    "Scripted clients without a UA are worth rate-limiting",
		match: func(e *model.NormalizedEvent) (string, bool) {
			if e.UserAgent == "" && (e.Method == "POST" || e.Method == "PUT" || e.Method == "DELETE") {
				return e.IP, true
			}
			return "", false
		},
		subjects: make(map[string]*subjectState),
	}
}
