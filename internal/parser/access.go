// Package parser extracts normalized events from access and error log lines.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	constants "logamizer/config"
	"logamizer/internal/model"
)

// Combined log format, shared by nginx and apache:
// IP - USER [DAY/MON/YYYY:HH:MM:SS +ZZZZ] "METHOD PATH PROTO" STATUS BYTES "REFERER" "UA"
var combinedPattern = regexp.MustCompile(
	`^(\S+)\s+` + // remote address
		`(\S+)\s+` + // ident (usually -)
		`(\S+)\s+` + // remote user
		`\[([^\]]+)\]\s+` + // time in brackets
		`"([^"]*)"\s+` + // request line in quotes
		`(\d+)\s+` + // status code
		`(\d+|-)\s*` + // bytes sent
		`(?:"([^"]*)"\s*)?` + // referer (optional)
		`(?:"([^"]*)")?` + // user agent (optional)
		`.*$`)

// Request line: METHOD /path HTTP/version
var requestPattern = regexp.MustCompile(`^(\S+)\s+(\S+)\s+(\S+)$`)

// Time format: 10/Oct/2024:13:55:36 -0700
const combinedTimeLayout = "02/Jan/2006:15:04:05 -0700"

// AccessParser recognizes one combined-format dialect. The nginx and apache
// dialects share the regex; keeping them as separate recognizers preserves the
// per-site format nomination and the fixed auto-detection order.
type AccessParser struct {
	name string
}

// LineParser is the shared contract of access-log recognizers.
type LineParser interface {
	Name() string
	// ParseLine returns the normalized event for one content line. A non-nil
	// error means the line failed; failures are counted, never fatal.
	ParseLine(text string, lineNumber int) (*model.NormalizedEvent, error)
}

// ForFormat returns the recognizer for a nominated site format. The auto
// format tries nginx first, then apache; the first recognizer to match
// claims the line.
func ForFormat(format string) (LineParser, error) {
	switch format {
	case constants.FORMAT_NGINX_COMBINED:
		return &AccessParser{name: constants.FORMAT_NGINX_COMBINED}, nil
	case constants.FORMAT_APACHE_COMBINED:
		return &AccessParser{name: constants.FORMAT_APACHE_COMBINED}, nil
	case constants.FORMAT_AUTO, "":
		return &autoParser{recognizers: []LineParser{
			&AccessParser{name: constants.FORMAT_NGINX_COMBINED},
			&AccessParser{name: constants.FORMAT_APACHE_COMBINED},
		}}, nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Name returns the recognizer's format name.
func (p *AccessParser) Name() string { return p.name }

// ParseLine parses a single combined-format line.
func (p *AccessParser) ParseLine(text string, lineNumber int) (*model.NormalizedEvent, error) {
	m := combinedPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("line does not match %s format", p.name)
	}

	ts, err := time.Parse(combinedTimeLayout, m[4])
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp %q: %w", m[4], err)
	}

	event := &model.NormalizedEvent{
		Timestamp:  ts.UTC(),
		IP:         m[1],
		RawLine:    text,
		LineNumber: lineNumber,
	}

	// Request line split. A malformed request keeps the raw quoted text as
	// the path with empty method and protocol.
	request := m[5]
	if rm := requestPattern.FindStringSubmatch(request); rm != nil {
		event.Method = rm[1]
		event.Path = rm[2]
		event.Protocol = rm[3]
	} else {
		event.Path = request
	}

	status, err := strconv.Atoi(m[6])
	if err != nil {
		return nil, fmt.Errorf("invalid status code %q", m[6])
	}
	event.Status = status

	if m[7] != "-" {
		bytesSent, err := strconv.ParseInt(m[7], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes value %q", m[7])
		}
		event.BytesSent = bytesSent
	}

	if m[3] != "-" {
		event.User = m[3]
	}
	if m[8] != "-" {
		event.Referer = m[8]
	}
	if m[9] != "-" {
		event.UserAgent = m[9]
	}

	return event, nil
}

// autoParser tries each recognizer in registration order.
type autoParser struct {
	recognizers []LineParser
}

func (p *autoParser) Name() string { return constants.FORMAT_AUTO }

func (p *autoParser) ParseLine(text string, lineNumber int) (*model.NormalizedEvent, error) {
	var firstErr error
	for _, r := range p.recognizers {
		event, err := r.ParseLine(text, lineNumber)
		if err == nil {
			return event, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

// FormatCombined renders an event back into a combined-format line. Parsing
// the rendered line yields the same event, which the round-trip tests rely on.
func FormatCombined(e *model.NormalizedEvent) string {
	dash := func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	}
	request := e.Path
	if e.Method != "" {
		request = e.Method + " " + e.Path + " " + e.Protocol
	}
	return fmt.Sprintf(`%s - %s [%s] "%s" %d %d "%s" "%s"`,
		e.IP,
		dash(e.User),
		e.Timestamp.UTC().Format(combinedTimeLayout),
		request,
		e.Status,
		e.BytesSent,
		dash(e.Referer),
		dash(e.UserAgent),
	)
}

// QualityTracker accumulates the per-file parse quality report while the
// driver streams lines through a recognizer.
type QualityTracker struct {
	quality model.ParseQuality
}

// RecordParsed notes one successfully parsed event.
func (t *QualityTracker) RecordParsed(ts time.Time) {
	t.quality.ParsedLines++
	if t.quality.FirstTimestamp.IsZero() || ts.Before(t.quality.FirstTimestamp) {
		t.quality.FirstTimestamp = ts
	}
	if t.quality.LastTimestamp.IsZero() || ts.After(t.quality.LastTimestamp) {
		t.quality.LastTimestamp = ts
	}
}

// RecordFailed notes one failed line, keeping a bounded sample of raw lines.
func (t *QualityTracker) RecordFailed(lineNumber int, raw string, err error) {
	t.quality.FailedLines++
	if len(t.quality.SampleErrors) < constants.MAX_FAILED_LINE_SAMPLES {
		if len(raw) > 200 {
			raw = raw[:200]
		}
		t.quality.SampleErrors = append(t.quality.SampleErrors, model.ParseErrorSample{
			Line:  lineNumber,
			Raw:   raw,
			Error: err.Error(),
		})
	}
}

// SetLineCounts installs the decoder's physical line counters.
func (t *QualityTracker) SetLineCounts(total, empty int) {
	t.quality.TotalLines = total
	t.quality.EmptyLines = empty
}

// Quality returns the accumulated report.
func (t *QualityTracker) Quality() model.ParseQuality {
	return t.quality
}
