package server

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const auditSeparator = "----------------------------------------------------"

// AuditSink receives one entry per completed request.
type AuditSink interface {
	Append(LogEntry) error
}

// AuditLog appends plain-text blocks to a single shared handle. Writes are
// serialized so blocks from concurrent connections never interleave.
type AuditLog struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

// OpenAuditLog opens path for appending, creating it if needed.
func OpenAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &AuditLog{w: f, closer: f}, nil
}

func NewAuditLog(w io.Writer) *AuditLog {
	return &AuditLog{w: w}
}

func (l *AuditLog) Append(e LogEntry) error {
	block := formatAuditBlock(e)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.w == nil {
		return ErrServerClosed
	}
	_, err := io.WriteString(l.w, block)
	return err
}

func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.w = nil
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func formatAuditBlock(e LogEntry) string {
	var b strings.Builder

	b.WriteString("REQUEST: " + e.Request + "\n")
	b.WriteString("RESPONSE: " + protocolVersion + " " + statusLine(e.Status) + "\n")
	if e.Method == MethodUpload {
		b.WriteString("MESSAGE: " + e.MimeOrMessage + "\n")
	} else {
		b.WriteString("Content-Type: " + e.MimeOrMessage + "\n")
	}
	b.WriteString(auditSeparator + "\n\n")

	return b.String()
}

// multiSink fans an entry out to several sinks and reports the first error.
type multiSink []AuditSink

func (m multiSink) Append(e LogEntry) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
