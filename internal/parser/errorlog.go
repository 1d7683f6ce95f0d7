package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ParsedError is one error occurrence extracted from an error log. It feeds
// the grouping fingerprint and the persisted occurrence row.
type ParsedError struct {
	ErrorType     string
	ErrorMessage  string
	Timestamp     time.Time
	StackTrace    string
	FilePath      string
	LineNumber    int
	FunctionName  string
	RequestURL    string
	RequestMethod string
	IPAddress     string
	UserAgent     string
	Referer       string
	Context       map[string]string
}

// Apache error log:
// [Fri Sep 09 10:42:29.902022 2011] [core:error] [pid 35708:tid 4328636416] [client 72.15.99.187] message
// Older servers omit the module and the microseconds:
// [Mon Jan 19 01:07:36 2026] [error] [client 1.2.3.4] message
var apacheErrorPattern = regexp.MustCompile(
	`^\[([A-Za-z]{3} [A-Za-z]{3} {1,2}\d{1,2} \d{2}:\d{2}:\d{2})(\.\d+)? (\d{4})\]` +
		`\s+\[([^\]]+)\]` +
		`(?:\s+\[pid (\d+)[^\]]*\])?` +
		`(?:\s+\[client ([^\]]+)\])?` +
		`\s*(.*)$`)

// Nginx error log:
// 2026/01/19 01:07:36 [error] 1234#5678: *910 message, client: 1.2.3.4, request: "GET / HTTP/1.1"
var nginxErrorPattern = regexp.MustCompile(
	`^(\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}) \[(\w+)\] (\d+)#(\d+): (?:\*(\d+) )?(.*)$`)

var (
	nginxClientPattern  = regexp.MustCompile(`, client: ([^,\s]+)`)
	nginxRequestPattern = regexp.MustCompile(`, request: "(\S+) ([^"\s]+)[^"]*"`)
	apacheRefererSuffix = regexp.MustCompile(`, referer: (\S+)\s*$`)
)

// ModSecurity audit fields embedded in apache error messages.
var (
	modsecMsgPattern      = regexp.MustCompile(`\[msg "([^"]+)"\]`)
	modsecURIPattern      = regexp.MustCompile(`\[uri "([^"]+)"\]`)
	modsecRuleIDPattern   = regexp.MustCompile(`\[id "([^"]+)"\]`)
	modsecSeverityPattern = regexp.MustCompile(`\[severity "([^"]+)"\]`)
)

// Application errors with a leading timestamp, e.g.
// 2026-01-19T01:07:36.123Z worker[12] DatabaseError: connection refused
var appErrorPattern = regexp.MustCompile(
	`^(\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?)` +
		`.*?([\w.]+(?:Error|Exception)):\s*(.*)$`)

// Bare exception line concluding a Python traceback.
var bareErrorPattern = regexp.MustCompile(`^([\w.]+(?:Error|Exception)):\s*(.*)$`)

// Stack frame shapes.
var (
	pythonFramePattern = regexp.MustCompile(`File "([^"]+)", line (\d+), in (\w+)`)
	jvmFramePattern    = regexp.MustCompile(`at ([\w.$<>]+)\(([\w.]+):(\d+)\)`)
	jsFramePattern     = regexp.MustCompile(`at ([\w.<>]+) \(([\w./-]+):(\d+):\d+\)`)
)

// Access-log 5xx lines occasionally land in error files; keep them as
// occurrences so the grouper sees server errors from mixed logs.
var http5xxPattern = regexp.MustCompile(
	`^([\d.]+) - (\S+) \[([^\]]+)\] "(\w+) (\S+) HTTP/[\d.]+" (5\d{2})`)

const apacheErrorTimeLayout = "Jan 2 15:04:05 2006"

// ErrorLogParser recognizes error log lines across the supported formats and
// stitches multi-line stack traces onto the preceding error. Feed lines in
// file order, Drain completed occurrences, then Flush at end of stream.
type ErrorLogParser struct {
	pending     *ParsedError // awaiting trailing stack lines (java/js style)
	traceback   []string     // python traceback collected before its error line
	inTraceback bool
	done        []*ParsedError
}

// NewErrorLogParser creates an empty parser.
func NewErrorLogParser() *ErrorLogParser {
	return &ErrorLogParser{}
}

// Feed consumes one line and reports whether any recognizer claimed it.
func (p *ErrorLogParser) Feed(text string, lineNumber int) bool {
	trimmed := strings.TrimSpace(text)

	// Python traceback assembly: frames arrive before the exception line.
	if p.inTraceback {
		if pythonFramePattern.MatchString(trimmed) || strings.HasPrefix(text, " ") || strings.HasPrefix(text, "\t") {
			p.traceback = append(p.traceback, text)
			return true
		}
		if m := bareErrorPattern.FindStringSubmatch(trimmed); m != nil {
			p.completeTraceback(m[1], m[2])
			return true
		}
		// Traceback interrupted by an unrelated line; drop the fragment.
		p.inTraceback = false
		p.traceback = nil
	}

	// JVM / JS stacks trail their exception line.
	if p.pending != nil && strings.HasPrefix(trimmed, "at ") {
		p.pending.StackTrace = appendLine(p.pending.StackTrace, trimmed)
		p.fillFrameFromStack(p.pending)
		return true
	}

	if strings.HasPrefix(trimmed, "Traceback (most recent call last):") {
		p.closePending()
		p.inTraceback = true
		p.traceback = []string{trimmed}
		return true
	}

	if m := apacheErrorPattern.FindStringSubmatch(text); m != nil {
		p.closePending()
		p.done = append(p.done, p.parseApacheError(m))
		return true
	}

	if m := nginxErrorPattern.FindStringSubmatch(text); m != nil {
		p.closePending()
		p.done = append(p.done, p.parseNginxError(m))
		return true
	}

	if m := http5xxPattern.FindStringSubmatch(text); m != nil {
		p.closePending()
		p.done = append(p.done, parseHTTP5xx(m))
		return true
	}

	if m := appErrorPattern.FindStringSubmatch(text); m != nil {
		p.closePending()
		p.pending = &ParsedError{
			ErrorType:    m[2],
			ErrorMessage: strings.TrimSpace(m[3]),
			Timestamp:    parseISOTimestamp(m[1]),
		}
		return true
	}

	return false
}

// Drain returns the occurrences completed so far and resets the buffer.
func (p *ErrorLogParser) Drain() []*ParsedError {
	out := p.done
	p.done = nil
	return out
}

// Flush completes any pending occurrence and returns the remainder.
func (p *ErrorLogParser) Flush() []*ParsedError {
	p.closePending()
	return p.Drain()
}

func (p *ErrorLogParser) closePending() {
	if p.pending != nil {
		p.done = append(p.done, p.pending)
		p.pending = nil
	}
}

func (p *ErrorLogParser) completeTraceback(errorType, message string) {
	stack := strings.Join(p.traceback, "\n")
	err := &ParsedError{
		ErrorType:    errorType,
		ErrorMessage: strings.TrimSpace(message),
		Timestamp:    time.Now().UTC(),
		StackTrace:   stack,
	}
	// The deepest frame (last in the traceback) locates the error.
	frames := pythonFramePattern.FindAllStringSubmatch(stack, -1)
	if len(frames) > 0 {
		last := frames[len(frames)-1]
		err.FilePath = last[1]
		err.LineNumber, _ = strconv.Atoi(last[2])
		err.FunctionName = last[3]
	}
	p.inTraceback = false
	p.traceback = nil
	p.done = append(p.done, err)
}

func (p *ErrorLogParser) fillFrameFromStack(e *ParsedError) {
	if e.FilePath != "" {
		return
	}
	for _, pat := range []*regexp.Regexp{jsFramePattern, jvmFramePattern} {
		if m := pat.FindStringSubmatch(e.StackTrace); m != nil {
			e.FunctionName = m[1]
			e.FilePath = m[2]
			e.LineNumber, _ = strconv.Atoi(m[3])
			return
		}
	}
}

func (p *ErrorLogParser) parseApacheError(m []string) *ParsedError {
	// Drop the weekday; the year lives in its own capture group.
	fields := strings.Fields(m[1])
	ts, err := time.Parse(apacheErrorTimeLayout, strings.Join(fields[1:], " ")+" "+m[3])
	if err != nil {
		ts = time.Now()
	}

	module, level := splitModuleLevel(m[4])
	message := m[7]

	e := &ParsedError{
		Timestamp: ts.UTC(),
		IPAddress: stripClientPort(m[6]),
		Context:   map[string]string{"level": level},
	}
	if module != "" {
		e.Context["module"] = module
	}
	if m[5] != "" {
		e.Context["pid"] = m[5]
	}

	if rm := apacheRefererSuffix.FindStringSubmatch(message); rm != nil {
		e.Referer = rm[1]
		message = strings.TrimSuffix(message, rm[0])
	}

	if strings.Contains(message, "ModSecurity:") {
		e.ErrorType = "ModSecurity"
		e.ErrorMessage = message
		if mm := modsecMsgPattern.FindStringSubmatch(message); mm != nil {
			e.ErrorMessage = mm[1]
		}
		if um := modsecURIPattern.FindStringSubmatch(message); um != nil {
			e.RequestURL = um[1]
		}
		if im := modsecRuleIDPattern.FindStringSubmatch(message); im != nil {
			e.Context["rule_id"] = im[1]
		}
		if sm := modsecSeverityPattern.FindStringSubmatch(message); sm != nil {
			e.Context["severity"] = sm[1]
		}
		return e
	}

	e.ErrorType = "ApacheError"
	e.ErrorMessage = strings.TrimSpace(message)
	return e
}

func (p *ErrorLogParser) parseNginxError(m []string) *ParsedError {
	ts, err := time.Parse("2006/01/02 15:04:05", m[1])
	if err != nil {
		ts = time.Now()
	}
	message := m[6]

	e := &ParsedError{
		ErrorType: "NginxError",
		Timestamp: ts.UTC(),
		Context: map[string]string{
			"level": m[2],
			"pid":   m[3],
			"tid":   m[4],
		},
	}
	if m[5] != "" {
		e.Context["cid"] = m[5]
	}
	if cm := nginxClientPattern.FindStringSubmatch(message); cm != nil {
		e.IPAddress = cm[1]
	}
	if rm := nginxRequestPattern.FindStringSubmatch(message); rm != nil {
		e.RequestMethod = rm[1]
		e.RequestURL = rm[2]
	}
	// Keep only the free-form message ahead of the structured suffixes.
	if idx := strings.Index(message, ", client:"); idx > 0 {
		message = message[:idx]
	}
	e.ErrorMessage = strings.TrimSpace(message)
	return e
}

func parseHTTP5xx(m []string) *ParsedError {
	ts, err := time.Parse(combinedTimeLayout, m[3])
	if err != nil {
		ts = time.Now()
	}
	status := m[6]
	return &ParsedError{
		ErrorType:     "HTTP" + status + "Error",
		ErrorMessage:  "server error " + status + " on " + m[4] + " " + m[5],
		Timestamp:     ts.UTC(),
		RequestMethod: m[4],
		RequestURL:    m[5],
		IPAddress:     m[1],
	}
}

func parseISOTimestamp(s string) time.Time {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func splitModuleLevel(s string) (module, level string) {
	if idx := strings.Index(s, ":"); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return "", s
}

func stripClientPort(client string) string {
	if idx := strings.LastIndex(client, ":"); idx > 0 && !strings.Contains(client[idx+1:], "]") {
		// Only strip when the suffix is numeric; IPv6 literals keep colons.
		if _, err := strconv.Atoi(client[idx+1:]); err == nil {
			return client[:idx]
		}
	}
	return client
}

func appendLine(stack, line string) string {
	if stack == "" {
		return line
	}
	return stack + "\n" + line
}
