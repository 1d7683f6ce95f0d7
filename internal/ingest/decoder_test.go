package ingest

import (
	"bytes"
	"compress/gzip"
	"errors"
	"strings"
	"testing"
)

func collect(t *testing.T, d *Decoder) []Line {
	t.Helper()
	var out []Line
	for {
		line, ok := d.Next()
		if !ok {
			break
		}
		out = append(out, line)
	}
	if d.Err() != nil {
		t.Fatalf("unexpected stream error: %v", d.Err())
	}
	return out
}

func TestDecoder_PlainText(t *testing.T) {
	input := "first line\n\n# comment\nsecond line\n"
	d, err := Open(strings.NewReader(input), "access.log")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	lines := collect(t, d)

	if len(lines) != 2 {
		t.Fatalf("expected 2 content lines, got %d", len(lines))
	}
	if lines[0].Number != 1 || lines[0].Text != "first line" {
		t.Errorf("line 1 wrong: %+v", lines[0])
	}
	if lines[1].Number != 4 || lines[1].Text != "second line" {
		t.Errorf("line 4 wrong: %+v", lines[1])
	}
	if d.TotalLines() != 4 {
		t.Errorf("total lines: got %d, want 4", d.TotalLines())
	}
	if d.EmptyLines() != 2 {
		t.Errorf("empty lines: got %d, want 2", d.EmptyLines())
	}
}

func TestDecoder_GzipBySuffix(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("compressed line\n"))
	gz.Close()

	d, err := Open(bytes.NewReader(buf.Bytes()), "access.log.gz")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	lines := collect(t, d)
	if len(lines) != 1 || lines[0].Text != "compressed line" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestDecoder_GzipByMagicBytes(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("magic detected\n"))
	gz.Close()

	// Filename gives no hint; detection must come from the stream itself.
	d, err := Open(bytes.NewReader(buf.Bytes()), "access.log")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer d.Close()

	lines := collect(t, d)
	if len(lines) != 1 || lines[0].Text != "magic detected" {
		t.Fatalf("unexpected lines: %+v", lines)
	}
}

func TestDecoder_CorruptGzip(t *testing.T) {
	corrupt := []byte{gzipMagic0, gzipMagic1, 0xff, 0x00, 0x01}
	_, err := Open(bytes.NewReader(corrupt), "broken.gz")
	if err == nil {
		t.Fatal("expected DecodeError for corrupt gzip header")
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DecodeError, got %T", err)
	}
}

func TestDecoder_EmptyInput(t *testing.T) {
	d, err := Open(strings.NewReader(""), "empty.log")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, ok := d.Next(); ok {
		t.Error("expected no lines from empty input")
	}
	if d.TotalLines() != 0 {
		t.Errorf("total lines: got %d, want 0", d.TotalLines())
	}
}
