package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/streamshield/person-detection-service/pipeline"
)

const (
	DefaultPoolSize   = 2
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// Pool hands out detection pipelines to request handlers. Each pooled
// Detector owns its own backend session, so a single request never shares
// an in-flight session with another.
type Pool struct {
	detectors chan *pipeline.Detector
	size      int
	build     func() (*pipeline.Detector, error)
	provider  string

	mu      sync.Mutex
	closed  bool
	metrics poolMetrics
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

// PoolMetrics is a point-in-time snapshot of pool counters.
type PoolMetrics struct {
	Size            int           `json:"pool_size"`
	InUse           int           `json:"sessions_in_use"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	WaitTime        time.Duration `json:"total_wait_ns"`
}

// NewPool builds and fills a pool of size detectors. build must return a
// fully initialized Detector. On any build failure the pool tears down
// what it already constructed and returns the error.
func NewPool(size int, build func() (*pipeline.Detector, error)) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	p := &Pool{
		detectors: make(chan *pipeline.Detector, size),
		size:      size,
		build:     build,
	}

	for i := 0; i < size; i++ {
		d, err := build()
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("initialize detector %d: %w", i, err)
		}
		p.provider = d.ActiveProvider()
		p.detectors <- d
	}

	go p.healthCheck()

	return p, nil
}

// Provider names the backend the pooled detectors run on.
func (p *Pool) Provider() string {
	return p.provider
}

// Acquire borrows a detector, waiting up to AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*pipeline.Detector, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case d, ok := <-p.detectors:
		// A receive that raced Close observes the closed, drained
		// channel; report closure instead of handing out nil.
		if !ok || d == nil {
			return nil, fmt.Errorf("pool is closed")
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return d, nil
	case <-time.After(AcquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available detector")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a borrowed detector to the pool. Detectors released
// after Close are disposed instead.
func (p *Pool) Release(d *pipeline.Detector) {
	// The send happens under the pool lock so it cannot race Close
	// closing the channel. The channel is sized to the pool, so the send
	// never blocks while the lock is held.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		d.Dispose()
		return
	}

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()

	p.detectors <- d
	p.mu.Unlock()
}

// Close disposes every idle detector and marks the pool closed. Borrowed
// detectors are disposed as they come back through Release.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.detectors)

	for d := range p.detectors {
		d.Dispose()
	}
}

func (p *Pool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}

		if missing := p.size - len(p.detectors) - p.inUse(); missing > 0 {
			p.replenish(missing)
		}
	}
}

func (p *Pool) inUse() int {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return p.metrics.inUse
}

func (p *Pool) replenish(count int) {
	for i := 0; i < count; i++ {
		d, err := p.build()
		if err != nil {
			continue
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			d.Dispose()
			return
		}
		p.detectors <- d
		p.mu.Unlock()
	}
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolMetrics{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		WaitTime:        p.metrics.waitTime,
	}
}
