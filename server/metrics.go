package server

import (
	"sync"
	"time"
)

type MethodMetrics struct {
	Count        uint64        `json:"count"`
	Errors       uint64        `json:"errors"`
	BytesIn      uint64        `json:"bytes_in"`
	BytesOut     uint64        `json:"bytes_out"`
	TotalLatency time.Duration `json:"total_latency_ns"`
}

type Metrics struct {
	mu            sync.Mutex
	TotalRequests uint64                    `json:"total_requests"`
	TotalErrors   uint64                    `json:"total_errors"`
	InFlight      uint64                    `json:"in_flight"`
	ByMethod      map[string]*MethodMetrics `json:"by_method"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		ByMethod: make(map[string]*MethodMetrics),
	}
}

func (m *Metrics) StartRequest() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InFlight++
	m.TotalRequests++
}

// EndRequest records a finished connection under method.
func (m *Metrics) EndRequest(method string, latency time.Duration, failed bool, bytesIn, bytesOut uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.InFlight > 0 {
		m.InFlight--
	}
	if failed {
		m.TotalErrors++
	}

	mm := m.ByMethod[method]
	if mm == nil {
		mm = &MethodMetrics{}
		m.ByMethod[method] = mm
	}
	mm.Count++
	if failed {
		mm.Errors++
	}
	mm.BytesIn += bytesIn
	mm.BytesOut += bytesOut
	mm.TotalLatency += latency
}

func (m *Metrics) Snapshot() *Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Metrics{
		TotalRequests: m.TotalRequests,
		TotalErrors:   m.TotalErrors,
		InFlight:      m.InFlight,
		ByMethod:      make(map[string]*MethodMetrics, len(m.ByMethod)),
	}

	for method, mm := range m.ByMethod {
		c := *mm
		snap.ByMethod[method] = &c
	}

	return snap
}
