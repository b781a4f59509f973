package server

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

type Options struct {
	Addr               string        `json:"addr"`
	Root               string        `json:"root"`
	UploadDir          string        `json:"upload_dir"`
	MaxConnections     int           `json:"max_connections"`
	ChunkSize          int           `json:"chunk_size"`
	UploadBufferSize   int           `json:"upload_buffer_size"`
	AllowedExtensions  []string      `json:"allowed_extensions"`
	ConfinePaths       bool          `json:"confine_paths"`
	SendNotImplemented bool          `json:"send_not_implemented"`
	LineTerminator     string        `json:"line_terminator"`
	ServerName         string        `json:"server_name"`
	ReadTimeout        time.Duration `json:"read_timeout"`
}

func DefaultOptions() Options {
	return Options{
		Addr:               ":6789",
		Root:               "root",
		UploadDir:          "uploaded",
		MaxConnections:     64,
		ChunkSize:          DefaultChunkSize,
		UploadBufferSize:   DefaultUploadBufferSize,
		AllowedExtensions:  append([]string(nil), DefaultAllowedExtensions...),
		ConfinePaths:       true,
		SendNotImplemented: true,
		LineTerminator:     "\r\n",
		ServerName:         "go-fileserver/1.0",
	}
}

type Server struct {
	opts    atomic.Pointer[Options]
	audit   AuditSink
	metrics *Metrics
	events  *EventHub
	started time.Time

	mu        sync.Mutex
	listener  net.Listener
	pool      *ConnPool
	serveDone chan struct{}
	stopServe context.CancelFunc
	watcher   *fsnotify.Watcher
	closed    bool
}

// NewServer builds a server recording to audit (which may be nil). Every
// entry is also published on the server's event hub.
func NewServer(opts Options, audit AuditSink) *Server {
	s := &Server{
		metrics: NewMetrics(),
		events:  NewEventHub(),
		started: time.Now(),
	}
	s.audit = multiSink{audit, s.events}
	s.opts.Store(&opts)
	return s
}

func (s *Server) Options() Options { return *s.opts.Load() }

func (s *Server) Metrics() *Metrics { return s.metrics }

func (s *Server) Events() *EventHub { return s.events }

// Reconfigure swaps the options used by new connections. The listen address
// and pool size only change on restart.
func (s *Server) Reconfigure(opts Options) {
	cur := s.Options()

	if opts.Addr != cur.Addr {
		log.Printf("[server] addr change %q -> %q needs a restart, keeping %q", cur.Addr, opts.Addr, cur.Addr)
		opts.Addr = cur.Addr
	}
	if opts.MaxConnections != cur.MaxConnections {
		log.Printf("[server] max_connections change %d -> %d needs a restart, keeping %d", cur.MaxConnections, opts.MaxConnections, cur.MaxConnections)
		opts.MaxConnections = cur.MaxConnections
	}

	s.opts.Store(&opts)
	log.Printf("[server] options reloaded")
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	l, err := net.Listen("tcp", s.Options().Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve accepts connections on l until ctx is done or Shutdown is called.
// It always returns a non-nil error; after a shutdown that is ErrServerClosed.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	// Shutdown cancels ctx, which also releases a Dispatch waiting on a full pool.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = l.Close()
		return ErrServerClosed
	}
	pool := NewPool(s.Options().MaxConnections, func(c net.Conn) { s.handleConn(c) })
	done := make(chan struct{})
	s.listener = l
	s.pool = pool
	s.serveDone = done
	s.stopServe = cancel
	s.mu.Unlock()

	defer func() {
		pool.Close()
		close(done)
	}()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-stop:
		}
	}()

	var tempDelay time.Duration

	for {
		c, err := l.Accept()
		if err != nil {
			if s.isClosed() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ErrServerClosed
			}

			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if tempDelay > time.Second {
				tempDelay = time.Second
			}
			log.Printf("[server] accept error: %v; retrying in %v", err, tempDelay)
			time.Sleep(tempDelay)
			continue
		}
		tempDelay = 0

		if err := pool.Dispatch(ctx, c); err != nil {
			// Shutting down with every worker busy; c is never served.
			_ = c.Close()
			return ErrServerClosed
		}
	}
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown stops accepting and waits for in-flight connections to finish
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	l, pool, done, w, stop := s.listener, s.pool, s.serveDone, s.watcher, s.stopServe
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		_ = w.Close()
	}
	if stop != nil {
		stop()
	}
	if l != nil {
		_ = l.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if pool != nil {
		return pool.Wait(ctx)
	}
	return nil
}

type HealthSummary struct {
	Addr             string    `json:"addr"`
	StartedAt        time.Time `json:"started_at"`
	Uptime           string    `json:"uptime"`
	Pool             PoolStats `json:"pool"`
	AuditSubscribers int       `json:"audit_subscribers"`
	Options          Options   `json:"options"`
}

func (s *Server) Health() HealthSummary {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	addr := ""
	if a := s.Addr(); a != nil {
		addr = a.String()
	}

	return HealthSummary{
		Addr:             addr,
		StartedAt:        s.started,
		Uptime:           time.Since(s.started).Truncate(time.Second).String(),
		Pool:             pool.Stats(),
		AuditSubscribers: s.events.Subscribers(),
		Options:          s.Options(),
	}
}
