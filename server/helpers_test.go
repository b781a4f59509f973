package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes an AuditLog
// receives from several connections.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testOptions points root and upload dir at fresh temp dirs.
func testOptions(t *testing.T) Options {
	t.Helper()

	opts := DefaultOptions()
	opts.Addr = "127.0.0.1:0"
	opts.Root = t.TempDir()
	opts.UploadDir = t.TempDir()
	opts.MaxConnections = 4
	return opts
}

// startTestServer runs a Server on a loopback listener and shuts it down
// when the test ends. The returned buffer collects the audit log.
func startTestServer(t *testing.T, opts Options) (*Server, string, *syncBuffer) {
	t.Helper()

	audit := &syncBuffer{}
	s := NewServer(opts, NewAuditLog(audit))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(context.Background(), l)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(ctx); err != nil {
			t.Errorf("shutdown: %v", err)
		}
		if err := <-errCh; err != ErrServerClosed {
			t.Errorf("Serve returned %v, want ErrServerClosed", err)
		}
	})

	return s, l.Addr().String(), audit
}

// exchange sends raw to addr, half-closes the write side, and returns
// everything the server wrote before closing the connection.
func exchange(t *testing.T, addr string, raw []byte) []byte {
	t.Helper()

	out, err := tryExchange(addr, raw)
	if err != nil {
		t.Fatalf("exchange %q: %v", raw, err)
	}
	return out
}

// tryExchange is exchange without the testing.T, for use off the test
// goroutine.
func tryExchange(addr string, raw []byte) ([]byte, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	_ = c.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := c.Write(raw); err != nil {
		return nil, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	return io.ReadAll(c)
}

type rawResponse struct {
	Status  string
	Headers map[string]string
	Body    []byte
}

func parseRawResponse(t *testing.T, raw []byte) rawResponse {
	t.Helper()

	br := bufio.NewReader(bytes.NewReader(raw))

	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatalf("read status line: %v (raw=%q)", err, raw)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "HTTP/1.1 ") {
		t.Fatalf("unexpected status line %q", line)
	}

	resp := rawResponse{
		Status:  strings.TrimPrefix(line, "HTTP/1.1 "),
		Headers: map[string]string{},
	}

	for {
		h, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("read header: %v", err)
		}
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		name, value, ok := strings.Cut(h, ": ")
		if !ok {
			t.Fatalf("malformed header %q", h)
		}
		resp.Headers[name] = value
	}

	body, err := io.ReadAll(br)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body = body
	return resp
}
