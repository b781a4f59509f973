package server

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func fixedWriter(out io.Writer, chunk int) *ResponseWriter {
	w := NewResponseWriter(out, "test-server", chunk, "")
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return w
}

func TestSendFramesHeadersAndBody(t *testing.T) {
	var out bytes.Buffer
	w := fixedWriter(&out, 0)

	if err := w.Send("200 OK", "text/html", []byte("<p>hi</p>")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\n" +
		"Server: test-server\r\n" +
		"Date: Tue, 02 Jan 2024 03:04:05 GMT\r\n" +
		"Content-Type: text/html\r\n" +
		"Content-Length: 9\r\n" +
		"\r\n" +
		"<p>hi</p>"
	if out.String() != want {
		t.Fatalf("response =\n%q\nwant\n%q", out.String(), want)
	}
	if w.BodyBytes() != 9 || !w.HeaderWritten() {
		t.Fatalf("BodyBytes=%d HeaderWritten=%v", w.BodyBytes(), w.HeaderWritten())
	}
}

// flushCounter counts how many times the bufio.Writer hands data down.
type flushCounter struct {
	bytes.Buffer
	writes int
}

func (f *flushCounter) Write(p []byte) (int, error) {
	f.writes++
	return f.Buffer.Write(p)
}

func TestSendFileStreamsInChunks(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.bin")
	data := bytes.Repeat([]byte{0xAB}, 2500)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := &flushCounter{}
	w := fixedWriter(out, 1024)

	if err := w.SendFile(path, uint64(len(data))); err != nil {
		t.Fatalf("SendFile: %v", err)
	}

	head, body, ok := strings.Cut(out.String(), "\r\n\r\n")
	if !ok {
		t.Fatalf("no header terminator in %q", out.String())
	}
	if !strings.Contains(head, "Content-Length: 2500") ||
		!strings.Contains(head, `Content-Disposition: attachment; filename="blob.bin"`) ||
		!strings.Contains(head, "Content-Type: application/octet-stream") {
		t.Fatalf("unexpected headers:\n%s", head)
	}
	if !bytes.Equal([]byte(body), data) {
		t.Fatalf("body mismatch: got %d bytes", len(body))
	}

	// One flush for the headers plus one per chunk: 1024 + 1024 + 452.
	if out.writes != 4 {
		t.Fatalf("underlying writes = %d, want 4", out.writes)
	}
}

func TestSendFileShrunkIsUnexpectedEOF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	w := fixedWriter(&out, 1024)

	err := w.SendFile(path, 10)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
	if !w.HeaderWritten() {
		t.Fatalf("headers should already be out")
	}
}

func TestSendFileMissingWritesNothing(t *testing.T) {
	var out bytes.Buffer
	w := fixedWriter(&out, 1024)

	if err := w.SendFile(filepath.Join(t.TempDir(), "missing"), 1); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if w.HeaderWritten() || out.Len() != 0 {
		t.Fatalf("nothing should be written when the file cannot be opened")
	}
}

func TestSendResult(t *testing.T) {
	var out bytes.Buffer
	w := NewResponseWriter(&out, "s", 0, "")
	if err := w.SendResult(true, "File a.txt uploaded successfully."); err != nil {
		t.Fatalf("SendResult: %v", err)
	}
	if out.String() != "SUCCESS File a.txt uploaded successfully.\r\n" {
		t.Fatalf("got %q", out.String())
	}

	out.Reset()
	w = NewResponseWriter(&out, "s", 0, "\n")
	if err := w.SendResult(false, "Invalid file type: x.exe"); err != nil {
		t.Fatalf("SendResult: %v", err)
	}
	if out.String() != "ERROR Invalid file type: x.exe\n" {
		t.Fatalf("got %q", out.String())
	}
}
