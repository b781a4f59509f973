package server

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	protocolVersion = "HTTP/1.1"

	DefaultChunkSize = 1024

	resultSuccess = "SUCCESS"
	resultError   = "ERROR"
)

// statusLine renders "<code> <reason>", e.g. "404 Not Found".
func statusLine(code int) string {
	return strconv.Itoa(code) + " " + http.StatusText(code)
}

// ResponseWriter frames responses onto a connection. In-memory bodies are
// flushed once; streamed files are flushed after every chunk.
type ResponseWriter struct {
	bw         *bufio.Writer
	serverName string
	chunkSize  int
	terminator string
	now        func() time.Time

	headerWritten bool
	bodyBytes     uint64
}

func NewResponseWriter(w io.Writer, serverName string, chunkSize int, terminator string) *ResponseWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if terminator == "" {
		terminator = "\r\n"
	}
	return &ResponseWriter{
		bw:         bufio.NewWriter(w),
		serverName: serverName,
		chunkSize:  chunkSize,
		terminator: terminator,
		now:        time.Now,
	}
}

// BodyBytes is the number of body bytes handed to the connection so far.
func (w *ResponseWriter) BodyBytes() uint64 { return w.bodyBytes }

func (w *ResponseWriter) HeaderWritten() bool { return w.headerWritten }

func (w *ResponseWriter) WriteHeader(h ResponseHeader) error {
	w.headerWritten = true
	fmt.Fprintf(w.bw, "%s %s\r\n", protocolVersion, h.Status)
	fmt.Fprintf(w.bw, "Server: %s\r\n", w.serverName)
	fmt.Fprintf(w.bw, "Date: %s\r\n", w.now().UTC().Format(http.TimeFormat))
	fmt.Fprintf(w.bw, "Content-Type: %s\r\n", h.ContentType)
	fmt.Fprintf(w.bw, "Content-Length: %d\r\n", h.ContentLength)
	for _, eh := range h.ExtraHeaders {
		fmt.Fprintf(w.bw, "%s: %s\r\n", eh.Name, eh.Value)
	}
	_, err := w.bw.WriteString("\r\n")
	return err
}

// Send writes a complete in-memory response.
func (w *ResponseWriter) Send(status, contentType string, body []byte) error {
	err := w.WriteHeader(ResponseHeader{
		Status:        status,
		ContentType:   contentType,
		ContentLength: uint64(len(body)),
	})
	if err != nil {
		return err
	}

	n, err := w.bw.Write(body)
	w.bodyBytes += uint64(n)
	if err != nil {
		return err
	}
	return w.bw.Flush()
}

// SendFile forces a download of path. Exactly size bytes are streamed so the
// body always matches the advertised Content-Length; a file that shrinks
// underneath us ends the transfer with io.ErrUnexpectedEOF.
func (w *ResponseWriter) SendFile(path string, size uint64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	err = w.WriteHeader(ResponseHeader{
		Status:        statusLine(http.StatusOK),
		ContentType:   contentTypeOctetStream,
		ContentLength: size,
		ExtraHeaders: []Header{
			{Name: "Content-Disposition", Value: fmt.Sprintf("attachment; filename=%q", filepath.Base(path))},
		},
	})
	if err != nil {
		return err
	}
	if err := w.bw.Flush(); err != nil {
		return err
	}

	buf := make([]byte, w.chunkSize)
	remaining := size

	for remaining > 0 {
		n := uint64(len(buf))
		if remaining < n {
			n = remaining
		}

		read, err := io.ReadFull(f, buf[:n])
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("read %s: %w", path, err)
		}

		written, err := w.bw.Write(buf[:read])
		w.bodyBytes += uint64(written)
		if err != nil {
			return err
		}
		if err := w.bw.Flush(); err != nil {
			return err
		}

		remaining -= uint64(read)
	}

	return nil
}

// SendResult writes the single-line UPLOAD reply.
func (w *ResponseWriter) SendResult(ok bool, msg string) error {
	prefix := resultError
	if ok {
		prefix = resultSuccess
	}

	if _, err := w.bw.WriteString(prefix + " " + msg + w.terminator); err != nil {
		return err
	}
	return w.bw.Flush()
}
