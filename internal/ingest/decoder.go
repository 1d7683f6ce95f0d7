// Package ingest turns raw blob bytes into an ordered stream of log lines.
package ingest

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

const (
	// maxLineLen bounds a single log line; anything longer is still consumed
	// as one token so a hostile file cannot wedge the scanner.
	maxLineLen = 1024 * 1024

	gzipMagic0 = 0x1f
	gzipMagic1 = 0x8b
)

// DecodeError marks a storage read or decompression failure. It is fatal for
// the job, unlike per-line parse failures.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Line is one content line with its 1-based position in the file.
type Line struct {
	Number int
	Text   string
}

// Decoder streams (line_number, text) pairs out of a log blob, transparently
// decompressing gzip. Empty lines and lines starting with '#' are skipped but
// counted for the quality report.
type Decoder struct {
	scanner    *bufio.Scanner
	gz         *gzip.Reader
	lineNo     int
	totalLines int
	emptyLines int
	err        error
}

// Open wraps the blob reader. Gzip is detected by the .gz filename suffix or
// by the stream's magic bytes; an unreadable compression header returns a
// DecodeError immediately.
func Open(r io.Reader, filename string) (*Decoder, error) {
	br := bufio.NewReader(r)

	compressed := strings.HasSuffix(filename, ".gz")
	if !compressed {
		if head, err := br.Peek(2); err == nil && head[0] == gzipMagic0 && head[1] == gzipMagic1 {
			compressed = true
		}
	}

	d := &Decoder{}
	var src io.Reader = br
	if compressed {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, &DecodeError{Op: "gzip", Err: err}
		}
		d.gz = gz
		src = gz
	}

	d.scanner = bufio.NewScanner(src)
	d.scanner.Buffer(make([]byte, 64*1024), maxLineLen)
	return d, nil
}

// Next returns the next content line. It never fails on line content; a false
// return means end of stream or a read error observable via Err.
func (d *Decoder) Next() (Line, bool) {
	for d.scanner.Scan() {
		d.lineNo++
		d.totalLines++
		text := strings.TrimSpace(d.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			d.emptyLines++
			continue
		}
		return Line{Number: d.lineNo, Text: text}, true
	}
	if err := d.scanner.Err(); err != nil {
		d.err = &DecodeError{Op: "read", Err: err}
	}
	return Line{}, false
}

// Err reports a read or decompression failure encountered mid-stream.
func (d *Decoder) Err() error { return d.err }

// TotalLines is the number of physical lines consumed so far.
func (d *Decoder) TotalLines() int { return d.totalLines }

// EmptyLines is the number of blank or comment lines skipped so far.
func (d *Decoder) EmptyLines() int { return d.emptyLines }

// Close releases the gzip reader if one was opened.
func (d *Decoder) Close() error {
	if d.gz != nil {
		return d.gz.Close()
	}
	return nil
}
