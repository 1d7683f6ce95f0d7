package security

import (
	"fmt"
	"testing"
	"time"

	constants "logamizer/config"
	"logamizer/internal/model"
)

func reqEvent(ts time.Time, ip, method, path string, status int, ua string, line int) *model.NormalizedEvent {
	return &model.NormalizedEvent{
		Timestamp:  ts,
		IP:         ip,
		Method:     method,
		Path:       path,
		Status:     status,
		UserAgent:  ua,
		Protocol:   "HTTP/1.1",
		RawLine:    fmt.Sprintf("%s - - [..] \"%s %s HTTP/1.1\" %d", ip, method, path, status),
		LineNumber: line,
	}
}

func findingsOfType(findings []model.Finding, ruleID string) []model.Finding {
	var out []model.Finding
	for _, f := range findings {
		if f.Type == ruleID {
			out = append(out, f)
		}
	}
	return out
}

func TestScannerRule_ProbingBurst(t *testing.T) {
	g := NewEngine("site-1")
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	// 25 distinct 404s spaced 10s apart, all inside one 10-minute window.
	for i := 0; i < 25; i++ {
		g.Step(reqEvent(base.Add(time.Duration(i)*10*time.Second),
			"198.51.100.7", "GET", fmt.Sprintf("/wp-admin/p%d", i), 404, "Mozilla/5.0", i+1))
	}

	scanner := findingsOfType(g.Finish(), "scanner.probing")
	if len(scanner) != 1 {
		t.Fatalf("expected 1 scanner finding, got %d", len(scanner))
	}
	f := scanner[0]
	if f.Severity != model.SeverityHigh {
		t.Errorf("severity: got %s", f.Severity)
	}
	if f.Subject != "198.51.100.7" {
		t.Errorf("subject: got %q", f.Subject)
	}
	if len(f.Evidence) > constants.MAX_EVIDENCE_SAMPLES {
		t.Errorf("evidence over bound: %d", len(f.Evidence))
	}
	if f.Fingerprint == "" {
		t.Error("fingerprint missing")
	}
}

func TestScannerRule_EscalatesToCritical(t *testing.T) {
	g := NewEngine("site-1")
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	for i := 0; i < constants.SCANNER_404_HIGH_THRESHOLD; i++ {
		g.Step(reqEvent(base.Add(time.Duration(i)*time.Second),
			"198.51.100.7", "GET", fmt.Sprintf("/x%d", i), 404, "", i+1))
	}

	scanner := findingsOfType(g.Finish(), "scanner.probing")
	if len(scanner) != 1 || scanner[0].Severity != model.SeverityCritical {
		t.Fatalf("expected 1 critical finding, got %+v", scanner)
	}
}

func TestScannerRule_BelowThresholdOrSpreadOut(t *testing.T) {
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	// Under the count threshold.
	g := NewEngine("site-1")
	for i := 0; i < constants.SCANNER_404_THRESHOLD-1; i++ {
		g.Step(reqEvent(base.Add(time.Duration(i)*time.Second), "10.0.0.1", "GET", "/x", 404, "", i+1))
	}
	if got := findingsOfType(g.Finish(), "scanner.probing"); len(got) != 0 {
		t.Errorf("under threshold should not fire: %+v", got)
	}

	// Same count but spread beyond the window.
	g = NewEngine("site-1")
	for i := 0; i < 25; i++ {
		g.Step(reqEvent(base.Add(time.Duration(i)*time.Minute), "10.0.0.1", "GET", "/x", 404, "", i+1))
	}
	if got := findingsOfType(g.Finish(), "scanner.probing"); len(got) != 0 {
		t.Errorf("spread-out 404s should not fire: %+v", got)
	}
}

func TestSlidingWindow_ToleratesDisorder(t *testing.T) {
	w := newSlidingWindow(10 * time.Minute)
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	w.Add(base.Add(2 * time.Minute))
	w.Add(base.Add(4 * time.Minute))
	// Late arrival, 3 minutes behind the newest.
	if n := w.Add(base.Add(1 * time.Minute)); n != 3 {
		t.Errorf("late arrival should still count: got %d", n)
	}
	// A much newer event evicts the old entries.
	if n := w.Add(base.Add(20 * time.Minute)); n != 1 {
		t.Errorf("eviction after jump: got %d", n)
	}
}

func TestBruteForceRule(t *testing.T) {
	g := NewEngine("site-1")
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	for i := 0; i < constants.BRUTE_FORCE_THRESHOLD; i++ {
		g.Step(reqEvent(base.Add(time.Duration(i)*10*time.Second),
			"203.0.113.9", "POST", "/wp-login.php", 401, "curl/8.0", i+1))
	}

	found := findingsOfType(g.Finish(), "auth.brute_force")
	if len(found) != 1 {
		t.Fatalf("expected 1 brute force finding, got %d", len(found))
	}
	if found[0].Subject != "203.0.113.9" || found[0].Severity != model.SeverityHigh {
		t.Errorf("finding: %+v", found[0])
	}
}

func TestInjectionRule_Families(t *testing.T) {
	g := NewEngine("site-1")
	ts := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	g.Step(reqEvent(ts, "10.0.0.1", "GET", "/search?q=1+union+select+password+from+users", 200, "", 1))
	g.Step(reqEvent(ts, "10.0.0.1", "GET", "/page?name=<script>alert(1)</script>", 200, "", 2))
	g.Step(reqEvent(ts, "10.0.0.2", "GET", "/plain?q=hello", 200, "", 3))

	found := findingsOfType(g.Finish(), "injection.signature")
	if len(found) != 2 {
		t.Fatalf("expected sqli and xss findings, got %d: %+v", len(found), found)
	}
	subjects := map[string]bool{}
	for _, f := range found {
		subjects[f.Subject] = true
	}
	if !subjects["10.0.0.1 sqli"] || !subjects["10.0.0.1 xss"] {
		t.Errorf("subjects: %+v", subjects)
	}
}

func TestSensitiveFileRule_Needs2xx(t *testing.T) {
	g := NewEngine("site-1")
	ts := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	g.Step(reqEvent(ts, "10.0.0.1", "GET", "/.env", 200, "", 1))
	g.Step(reqEvent(ts, "10.0.0.2", "GET", "/backup/.env", 404, "", 2))

	found := findingsOfType(g.Finish(), "exposure.sensitive_file")
	if len(found) != 1 {
		t.Fatalf("expected 1 exposure finding, got %d", len(found))
	}
	if found[0].Subject != "/.env" || found[0].Severity != model.SeverityCritical {
		t.Errorf("finding: %+v", found[0])
	}
}

func TestTraversalRule_DecodesBeforeMatching(t *testing.T) {
	g := NewEngine("site-1")
	ts := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	g.Step(reqEvent(ts, "10.0.0.1", "GET", "/static/%2e%2e/%2e%2e/etc/passwd", 403, "", 1))
	g.Step(reqEvent(ts, "10.0.0.2", "GET", "/static/app.css", 200, "", 2))

	found := findingsOfType(g.Finish(), "traversal.dotdot")
	if len(found) != 1 {
		t.Fatalf("expected 1 traversal finding, got %d", len(found))
	}
	if found[0].Subject != "10.0.0.1 /static/../../etc/passwd" {
		t.Errorf("subject: %q", found[0].Subject)
	}
}

func TestBadUARule(t *testing.T) {
	g := NewEngine("site-1")
	ts := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)

	g.Step(reqEvent(ts, "10.0.0.1", "GET", "/", 200, "sqlmap/1.7.2#stable", 1))
	g.Step(reqEvent(ts, "10.0.0.2", "GET", "/", 200, "Mozilla/5.0", 2))

	found := findingsOfType(g.Finish(), "ua.known_bad")
	if len(found) != 1 || found[0].Subject != "sqlmap/1.7.2#stable" {
		t.Fatalf("findings: %+v", found)
	}
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := Fingerprint("scanner.probing", "site-1", "10.0.0.1", "2026-01-23T17:00:00Z")
	b := Fingerprint("scanner.probing", "site-1", "10.0.0.1", "2026-01-23T17:00:00Z")
	if a != b {
		t.Error("fingerprint not stable")
	}
	if len(a) != 32 {
		t.Errorf("fingerprint length: %d", len(a))
	}
	c := Fingerprint("scanner.probing", "site-1", "10.0.0.2", "2026-01-23T17:00:00Z")
	if a == c {
		t.Error("different subjects must not collide")
	}
	d := Fingerprint("scanner.probing", "site-2", "10.0.0.1", "2026-01-23T17:00:00Z")
	if a == d {
		t.Error("different sites must not collide")
	}
}

func TestEngine_RerunProducesSameFindings(t *testing.T) {
	base := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	run := func() []model.Finding {
		g := NewEngine("site-1")
		for i := 0; i < 25; i++ {
			g.Step(reqEvent(base.Add(time.Duration(i)*10*time.Second),
				"198.51.100.7", "GET", fmt.Sprintf("/wp-admin/p%d", i), 404, "Mozilla/5.0", i+1))
		}
		return g.Finish()
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Fingerprint != second[i].Fingerprint {
			t.Errorf("fingerprint %d differs: %s vs %s", i, first[i].Fingerprint, second[i].Fingerprint)
		}
	}
}
