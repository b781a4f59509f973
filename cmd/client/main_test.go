package main

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeServer accepts one upload per connection, records the request line
// and body, and answers SUCCESS.
type fakeServer struct {
	l net.Listener

	mu     sync.Mutex
	lines  []string
	bodies map[string][]byte
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	fs := &fakeServer{l: l, bodies: map[string][]byte{}}
	t.Cleanup(func() { _ = l.Close() })

	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go fs.handle(c)
		}
	}()
	return fs
}

func (fs *fakeServer) handle(c net.Conn) {
	defer c.Close()

	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	if err != nil {
		return
	}
	line = strings.TrimRight(line, "\r\n")

	var name string
	var size int64
	if parts := strings.Fields(line); len(parts) == 3 {
		name = parts[1]
		size, _ = strconv.ParseInt(parts[2], 10, 64)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(br, body); err != nil {
		_, _ = io.WriteString(c, "ERROR File upload incomplete for: "+name+"\r\n")
		return
	}

	fs.mu.Lock()
	fs.lines = append(fs.lines, line)
	fs.bodies[name] = body
	fs.mu.Unlock()

	_, _ = io.WriteString(c, "SUCCESS File "+name+" uploaded successfully.\r\n")
}

func TestValidFileType(t *testing.T) {
	cases := map[string]bool{
		"a.txt":     true,
		"A.PNG":     true,
		"clip.mp4":  true,
		"photo.jpg": true,
		"evil.exe":  false,
		"txt":       false,
		"a.txt.sh":  false,
	}
	for name, want := range cases {
		if got := validFileType(name); got != want {
			t.Errorf("validFileType(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestUploadFileSendsHeaderAndBody(t *testing.T) {
	fs := newFakeServer(t)

	dir := t.TempDir()
	data := bytes.Repeat([]byte("0123456789"), 300) // spans several chunks
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := uploadFile(fs.l.Addr().String(), path)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp != "SUCCESS File notes.txt uploaded successfully." {
		t.Fatalf("unexpected response %q", resp)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.lines[0] != "UPLOAD notes.txt 3000" {
		t.Fatalf("request line = %q", fs.lines[0])
	}
	if !bytes.Equal(fs.bodies["notes.txt"], data) {
		t.Fatalf("body mismatch")
	}
}

func TestUploaderRejectsBeforeConnecting(t *testing.T) {
	var out bytes.Buffer
	u := &uploader{addr: "127.0.0.1:1", dir: t.TempDir(), out: &out}

	u.run(strings.NewReader("evil.exe\nmissing.txt\nq\n"))

	got := out.String()
	if !strings.Contains(got, "Invalid file format: evil.exe") {
		t.Fatalf("extension not rejected: %q", got)
	}
	if !strings.Contains(got, "File not found: ") {
		t.Fatalf("missing file not reported: %q", got)
	}
}

func TestUploaderWaitsForInFlightUploads(t *testing.T) {
	fs := newFakeServer(t)

	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out := &syncWriter{w: &bytes.Buffer{}}
	u := &uploader{addr: fs.l.Addr().String(), dir: dir, out: out}
	u.run(strings.NewReader("a.txt\nb.png\nq\n"))

	// run returns only after both uploads completed.
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if len(fs.bodies) != 2 {
		t.Fatalf("expected 2 uploads, got %d", len(fs.bodies))
	}

	text := out.w.(*bytes.Buffer).String()
	if strings.Count(text, "server response") != 2 {
		t.Fatalf("expected two responses printed, got %q", text)
	}
}
