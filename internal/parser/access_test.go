package parser

import (
	"testing"
	"time"

	constants "logamizer/config"
)

func TestAccessParser_CombinedLine(t *testing.T) {
	p, err := ForFormat(constants.FORMAT_NGINX_COMBINED)
	if err != nil {
		t.Fatalf("ForFormat failed: %v", err)
	}

	line := `203.0.113.42 - - [23/Jan/2026:17:36:10 +0000] "GET /api/health HTTP/1.1" 200 532 "-" "Mozilla/5.0"`
	event, err := p.ParseLine(line, 1)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}

	if event.IP != "203.0.113.42" {
		t.Errorf("ip: got %q", event.IP)
	}
	if event.Method != "GET" || event.Path != "/api/health" || event.Protocol != "HTTP/1.1" {
		t.Errorf("request: got %q %q %q", event.Method, event.Path, event.Protocol)
	}
	if event.Status != 200 {
		t.Errorf("status: got %d", event.Status)
	}
	if event.BytesSent != 532 {
		t.Errorf("bytes: got %d", event.BytesSent)
	}
	if event.User != "" || event.Referer != "" {
		t.Errorf("dash fields should be empty: user=%q referer=%q", event.User, event.Referer)
	}
	if event.UserAgent != "Mozilla/5.0" {
		t.Errorf("user agent: got %q", event.UserAgent)
	}
	want := time.Date(2026, 1, 23, 17, 36, 10, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", event.Timestamp, want)
	}
	if event.LineNumber != 1 {
		t.Errorf("line number: got %d", event.LineNumber)
	}
}

func TestAccessParser_TimezoneNormalizedToUTC(t *testing.T) {
	p, _ := ForFormat(constants.FORMAT_APACHE_COMBINED)

	line := `10.0.0.1 - alice [10/Oct/2024:13:55:36 -0700] "POST /login HTTP/1.1" 401 128 "https://example.com/" "curl/8.0"`
	event, err := p.ParseLine(line, 7)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}

	want := time.Date(2024, 10, 10, 20, 55, 36, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", event.Timestamp, want)
	}
	if event.User != "alice" {
		t.Errorf("user: got %q", event.User)
	}
	if event.Referer != "https://example.com/" {
		t.Errorf("referer: got %q", event.Referer)
	}
}

func TestAccessParser_MalformedRequestLine(t *testing.T) {
	p, _ := ForFormat(constants.FORMAT_AUTO)

	line := `198.51.100.7 - - [23/Jan/2026:17:36:10 +0000] "\x16\x03\x01" 400 0 "-" "-"`
	event, err := p.ParseLine(line, 3)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if event.Method != "" || event.Protocol != "" {
		t.Errorf("malformed request should leave method/protocol empty, got %q %q", event.Method, event.Protocol)
	}
	if event.Path != `\x16\x03\x01` {
		t.Errorf("path should keep the raw request text, got %q", event.Path)
	}
	if event.Status != 400 {
		t.Errorf("status: got %d", event.Status)
	}
}

func TestAccessParser_DashBytesIsZero(t *testing.T) {
	p, _ := ForFormat(constants.FORMAT_NGINX_COMBINED)

	line := `10.0.0.1 - - [23/Jan/2026:17:36:10 +0000] "HEAD / HTTP/1.1" 304 - "-" "Mozilla/5.0"`
	event, err := p.ParseLine(line, 1)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if event.BytesSent != 0 {
		t.Errorf("dash bytes: got %d, want 0", event.BytesSent)
	}
}

func TestAccessParser_FailedLines(t *testing.T) {
	p, _ := ForFormat(constants.FORMAT_AUTO)

	cases := []struct {
		name string
		line string
	}{
		{"garbage", "this is not a log line"},
		{"bad timestamp", `10.0.0.1 - - [99/Xyz/2026:99:99:99 +0000] "GET / HTTP/1.1" 200 1 "-" "-"`},
		{"truncated", `10.0.0.1 - -`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := p.ParseLine(tc.line, 1); err == nil {
				t.Errorf("expected parse failure for %q", tc.line)
			}
		})
	}
}

func TestFormatCombined_RoundTrip(t *testing.T) {
	p, _ := ForFormat(constants.FORMAT_NGINX_COMBINED)

	lines := []string{
		`203.0.113.42 - - [23/Jan/2026:17:36:10 +0000] "GET /api/health HTTP/1.1" 200 532 "-" "Mozilla/5.0"`,
		`10.0.0.1 - bob [23/Jan/2026:18:00:00 +0000] "POST /wp-login.php HTTP/1.1" 404 0 "https://ref.example/" "sqlmap/1.7"`,
		`192.0.2.9 - - [01/Feb/2026:00:00:01 +0000] "DELETE /api/items/4 HTTP/2.0" 503 17 "-" "-"`,
	}
	for _, line := range lines {
		first, err := p.ParseLine(line, 1)
		if err != nil {
			t.Fatalf("first parse failed for %q: %v", line, err)
		}
		rendered := FormatCombined(first)
		second, err := p.ParseLine(rendered, 1)
		if err != nil {
			t.Fatalf("reparse failed for %q: %v", rendered, err)
		}
		if *first != *second {
			t.Errorf("round trip diverged:\n first: %+v\nsecond: %+v", first, second)
		}
	}
}

func TestQualityTracker(t *testing.T) {
	var tracker QualityTracker

	t1 := time.Date(2026, 1, 23, 17, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 23, 18, 0, 0, 0, time.UTC)
	tracker.RecordParsed(t2)
	tracker.RecordParsed(t1)
	tracker.RecordFailed(5, "bad line", errNotCombined())
	tracker.SetLineCounts(4, 1)

	q := tracker.Quality()
	if q.ParsedLines != 2 || q.FailedLines != 1 {
		t.Errorf("counts: parsed=%d failed=%d", q.ParsedLines, q.FailedLines)
	}
	if !q.FirstTimestamp.Equal(t1) || !q.LastTimestamp.Equal(t2) {
		t.Errorf("timestamp range: %v .. %v", q.FirstTimestamp, q.LastTimestamp)
	}
	// 4 total, 1 empty, 2 parsed of 3 content lines.
	if rate := q.SuccessRate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("success rate: got %g", rate)
	}
	if len(q.SampleErrors) != 1 || q.SampleErrors[0].Line != 5 {
		t.Errorf("sample errors: %+v", q.SampleErrors)
	}
}

func errNotCombined() error {
	p, _ := ForFormat(constants.FORMAT_NGINX_COMBINED)
	_, err := p.ParseLine("nope", 1)
	return err
}
