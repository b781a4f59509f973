package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

type connState int

const (
	stateAwaitRequestLine connState = iota
	stateDispatched
	stateResponding
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateAwaitRequestLine:
		return "await_request_line"
	case stateDispatched:
		return "dispatched"
	case stateResponding:
		return "responding"
	default:
		return "closed"
	}
}

const (
	notFoundBody       = "<html><h2>404 Not Found</h2></html>"
	notImplementedBody = "<html><h2>501 Not Implemented</h2></html>"
	serverErrorBody    = "<html><h2>500 Internal Server Error</h2></html>"
)

// ConnLog is the structured line written to the process log when a
// connection closes.
type ConnLog struct {
	Time       time.Time `json:"time"`
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	Method     string    `json:"method,omitempty"`
	Request    string    `json:"request,omitempty"`
	State      string    `json:"state"`
	Status     int       `json:"status,omitempty"`
	BytesIn    uint64    `json:"bytes_in"`
	BytesOut   uint64    `json:"bytes_out"`
	DurationMs float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

func logConnJSON(entry ConnLog) {
	b, err := json.Marshal(entry)
	if err != nil {
		log.Printf("error marshaling conn log entry: %v", err)
		return
	}
	log.Println(string(b))
}

// connHandler owns one accepted connection for exactly one request.
type connHandler struct {
	id    string
	conn  net.Conn
	opts  Options
	in    *countingReader
	r     *bufio.Reader
	w     *ResponseWriter
	start time.Time

	state  connState
	req    *Request
	status int
	err    error
}

// handleConn runs the request state machine for c. The connection is closed
// on every exit path, panics included.
func (s *Server) handleConn(c net.Conn) (h *connHandler) {
	opts := s.Options()

	h = &connHandler{
		id:    uuid.NewString(),
		conn:  c,
		opts:  opts,
		start: time.Now(),
		state: stateAwaitRequestLine,
	}

	var src io.Reader = c
	if opts.ReadTimeout > 0 {
		src = &deadlineReader{conn: c, timeout: opts.ReadTimeout}
	}
	h.in = &countingReader{r: src}
	h.r = bufio.NewReader(h.in)
	h.w = NewResponseWriter(c, opts.ServerName, opts.ChunkSize, opts.LineTerminator)

	s.metrics.StartRequest()

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[conn %s] panic: %v", h.id, rec)
			h.err = fmt.Errorf("panic: %v", rec)
			if h.status == 0 || h.status == http.StatusOK {
				h.status = http.StatusInternalServerError
			}
		}
		h.state = stateClosed
		if err := c.Close(); err != nil {
			log.Printf("[conn %s] close error: %v", h.id, err)
		}
		s.finish(h)
	}()

	h.serve(s)
	return h
}

func (h *connHandler) serve(s *Server) {
	line, err := readRequestLine(h.r)
	if err != nil {
		// Nothing usable arrived; close without a response.
		h.err = err
		return
	}

	req, err := ParseRequestLine(line)
	if err != nil {
		h.err = err
		return
	}
	h.req = req
	h.state = stateDispatched

	log.Printf("[conn %s] %s", h.id, req.RawLine)

	switch req.Method {
	case MethodGet:
		if len(req.Args) < 1 {
			h.notImplemented(s)
			return
		}
		h.state = stateResponding
		h.serveGet(s, req.Args[0])
	case MethodUpload:
		h.state = stateResponding
		h.serveUpload(s)
	default:
		h.notImplemented(s)
	}
}

func (h *connHandler) serveGet(s *Server, path string) {
	resolver := Resolver{Root: h.opts.Root, Confine: h.opts.ConfinePaths}
	res := resolver.Resolve(path)

	switch res.Kind {
	case KindMissing:
		h.err = newRequestError(KindNotFound, path, nil)
		h.respond(s, http.StatusNotFound, contentTypeHTML, []byte(notFoundBody))

	case KindDirectory:
		body, err := RenderListing(path, res.AbsolutePath)
		if err != nil {
			h.fail(s, newRequestError(KindIO, "list "+path, err))
			return
		}
		h.respond(s, http.StatusOK, contentTypeHTML, body)

	case KindFile:
		h.serveFile(s, res)
	}
}

// serveFile picks the strategy from the file's content type: text is wrapped
// in a <pre> page, images go out raw, everything else is a download.
func (h *connHandler) serveFile(s *Server, res ResolvedResource) {
	ct := DetectContentType(res.AbsolutePath)

	switch Classify(ct) {
	case CategoryText:
		data, err := os.ReadFile(res.AbsolutePath)
		if err != nil {
			h.fail(s, newRequestError(KindIO, "read "+res.AbsolutePath, err))
			return
		}
		body := make([]byte, 0, len(data)+48)
		body = append(body, "<html><body><pre>"...)
		body = append(body, data...)
		body = append(body, "</pre></body></html>"...)
		h.respond(s, http.StatusOK, contentTypeHTML, body)

	case CategoryImage:
		data, err := os.ReadFile(res.AbsolutePath)
		if err != nil {
			h.fail(s, newRequestError(KindIO, "read "+res.AbsolutePath, err))
			return
		}
		h.respond(s, http.StatusOK, ct, data)

	default:
		h.status = http.StatusOK
		if err := h.w.SendFile(res.AbsolutePath, res.SizeBytes); err != nil {
			if !h.w.HeaderWritten() {
				h.fail(s, newRequestError(KindIO, "open "+res.AbsolutePath, err))
				return
			}
			// Headers are out; the peer sees a short body and a close.
			log.Printf("[conn %s] download aborted after %d/%d bytes: %v", h.id, h.w.BodyBytes(), res.SizeBytes, err)
			h.err = newRequestError(KindIO, "download aborted", err)
			h.status = http.StatusInternalServerError
		}
		h.record(s, h.status, contentTypeOctetStream)
	}
}

func (h *connHandler) serveUpload(s *Server) {
	d, err := ParseUploadDescriptor(h.req)
	if err != nil {
		h.uploadFailed(s, err)
		return
	}

	rc := &Receiver{
		Dir:               h.opts.UploadDir,
		AllowedExtensions: h.opts.AllowedExtensions,
		BufferSize:        h.opts.UploadBufferSize,
		Confine:           h.opts.ConfinePaths,
	}

	res, err := rc.Receive(d, h.r)
	if err != nil {
		h.uploadFailed(s, err)
		return
	}

	msg := res.Message()
	log.Printf("[upload] %s (%s) -> %s", msg, humanize.Bytes(res.Received), res.Path)

	h.status = http.StatusOK
	if err := h.w.SendResult(true, msg); err != nil {
		log.Printf("[conn %s] write result: %v", h.id, err)
	}
	h.record(s, http.StatusOK, msg)
}

func (h *connHandler) uploadFailed(s *Server, err error) {
	h.err = err
	h.status = StatusForError(err)
	msg := clientMessage(err)

	log.Printf("[upload] %v", err)
	if werr := h.w.SendResult(false, msg); werr != nil {
		log.Printf("[conn %s] write result: %v", h.id, werr)
	}
	h.record(s, h.status, msg)
}

func (h *connHandler) notImplemented(s *Server) {
	h.state = stateResponding
	h.err = newRequestError(KindMethodNotSupported, h.req.RawLine, nil)

	if !h.opts.SendNotImplemented {
		h.status = http.StatusNotImplemented
		h.record(s, h.status, contentTypeHTML)
		return
	}
	h.respond(s, http.StatusNotImplemented, contentTypeHTML, []byte(notImplementedBody))
}

// fail answers a GET that broke before any header was written.
func (h *connHandler) fail(s *Server, err error) {
	log.Printf("[conn %s] %v", h.id, err)
	h.respond(s, http.StatusInternalServerError, contentTypeHTML, []byte(serverErrorBody))
	h.err = err
}

// respond sends an in-memory response and records it.
func (h *connHandler) respond(s *Server, code int, contentType string, body []byte) {
	h.status = code
	if err := h.w.Send(statusLine(code), contentType, body); err != nil {
		log.Printf("[conn %s] write response: %v", h.id, err)
		if h.err == nil {
			h.err = newRequestError(KindIO, "write response", err)
		}
	}
	h.record(s, code, contentType)
}

func (h *connHandler) record(s *Server, status int, mimeOrMessage string) {
	entry := LogEntry{
		ID:            h.id,
		Time:          time.Now(),
		Method:        h.req.Method,
		Request:       h.req.RawLine,
		Status:        status,
		MimeOrMessage: mimeOrMessage,
	}
	if err := s.audit.Append(entry); err != nil {
		log.Printf("[audit] append failed for conn %s: %v", h.id, err)
	}
}

func (s *Server) finish(h *connHandler) {
	elapsed := time.Since(h.start)

	method := "NONE"
	request := ""
	if h.req != nil {
		method = h.req.Method.String()
		request = h.req.RawLine
	}

	s.metrics.EndRequest(method, elapsed, h.err != nil, h.in.n, h.w.BodyBytes())

	entry := ConnLog{
		Time:       time.Now(),
		ID:         h.id,
		Method:     method,
		Request:    request,
		State:      h.state.String(),
		Status:     h.status,
		BytesIn:    h.in.n,
		BytesOut:   h.w.BodyBytes(),
		DurationMs: float64(elapsed.Microseconds()) / 1000,
	}
	if addr := h.conn.RemoteAddr(); addr != nil {
		entry.RemoteAddr = addr.String()
	}
	if h.err != nil {
		entry.Error = h.err.Error()
	}
	logConnJSON(entry)
}

type countingReader struct {
	r io.Reader
	n uint64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += uint64(n)
	return n, err
}

// deadlineReader pushes the read deadline forward before every read, so the
// timeout applies to idle time rather than to the whole transfer.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.conn.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.conn.Read(p)
}
