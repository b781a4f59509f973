package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// ConnPool is a fixed set of goroutines draining accepted connections.
// Dispatch blocks while every worker is busy, which caps the number of
// connections being served at once.
type ConnPool struct {
	conns  chan net.Conn
	handle func(net.Conn)
	size   int

	wg        sync.WaitGroup
	closeOnce sync.Once

	busy    atomic.Int64
	handled atomic.Uint64
}

type PoolStats struct {
	Workers int    `json:"workers"`
	Busy    int    `json:"busy"`
	Handled uint64 `json:"handled"`
}

// NewPool starts size workers, each calling handle for one connection at a time.
func NewPool(size int, handle func(net.Conn)) *ConnPool {
	if size <= 0 {
		size = 1
	}

	p := &ConnPool{
		conns:  make(chan net.Conn),
		handle: handle,
		size:   size,
	}

	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.work()
	}

	return p
}

func (p *ConnPool) work() {
	defer p.wg.Done()

	for c := range p.conns {
		p.busy.Add(1)
		p.handle(c)
		p.busy.Add(-1)
		p.handled.Add(1)
	}
}

// Dispatch hands c to the next free worker. It must not be called after Close.
func (p *ConnPool) Dispatch(ctx context.Context, c net.Conn) error {
	select {
	case p.conns <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the workers once they finish their current connection.
func (p *ConnPool) Close() {
	p.closeOnce.Do(func() {
		close(p.conns)
	})
}

// Wait blocks until every worker has exited or ctx is done.
func (p *ConnPool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *ConnPool) Stats() PoolStats {
	stats := PoolStats{}
	if p == nil {
		return stats
	}

	stats.Workers = p.size
	stats.Busy = int(p.busy.Load())
	stats.Handled = p.handled.Load()
	return stats
}
