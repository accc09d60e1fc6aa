package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Tutortoise/mask-stream/classifier"
	"github.com/Tutortoise/mask-stream/logging"
)

const (
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

var errPoolClosed = errors.New("pool is closed")

// inferSession is what the pool hands out. *classifier.ModelSession satisfies it.
type inferSession interface {
	Infer(ctx context.Context, t *classifier.Tensor) (float32, error)
	Destroy()
}

type sessionFactory func() (inferSession, error)

// ClassifierPool shares a fixed number of model sessions between the stream
// loop and still-image requests. It implements classifier.Classifier.
type ClassifierPool struct {
	sessions   chan inferSession
	size       int
	factory    sessionFactory
	mu         sync.Mutex
	closed     bool
	stop       chan struct{}
	metrics    PoolMetrics
	lastErrors []error
}

type PoolMetrics struct {
	InUse           int           `json:"sessions_in_use"`
	Available       int           `json:"sessions_available"`
	TotalAcquired   int64         `json:"total_acquired"`
	TotalReleased   int64         `json:"total_released"`
	AcquireFailures int64         `json:"acquire_failures"`
	Discarded       int64         `json:"sessions_discarded"`
	WaitTime        time.Duration `json:"wait_time_ns"`
}

// NewClassifierPool opens size ONNX sessions for the model at path.
func NewClassifierPool(path string, size int, opts classifier.SessionOptions) (*ClassifierPool, error) {
	return newPool(size, func() (inferSession, error) {
		return classifier.NewModelSession(path, opts)
	})
}

func newPool(size int, factory sessionFactory) (*ClassifierPool, error) {
	if size <= 0 {
		size = 1
	}

	pool := &ClassifierPool{
		sessions: make(chan inferSession, size),
		size:     size,
		factory:  factory,
		stop:     make(chan struct{}),
	}

	for i := 0; i < size; i++ {
		session, err := factory()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	go pool.healthCheck()

	return pool, nil
}

func (p *ClassifierPool) Size() int { return p.size }

// Infer runs t on a pooled session. A session whose run fails outside the
// model itself is discarded and replaced by the health check.
func (p *ClassifierPool) Infer(ctx context.Context, t *classifier.Tensor) (float32, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return 0, err
	}

	prob, err := session.Infer(ctx, t)
	if err != nil && !errors.Is(err, classifier.ErrInference) && ctx.Err() == nil {
		p.discard(session, err)
		return 0, err
	}
	p.Release(session)
	return prob, err
}

// Acquire waits for a free session until ctx is done. Callers that need a
// bound, such as HTTP requests, put a deadline on ctx.
func (p *ClassifierPool) Acquire(ctx context.Context) (inferSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errPoolClosed
	}

	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.metrics.WaitTime += time.Since(start)
		p.mu.Unlock()
	}()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return nil, errPoolClosed
		}
		p.mu.Lock()
		p.metrics.InUse++
		p.metrics.TotalAcquired++
		p.mu.Unlock()
		return session, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			p.mu.Lock()
			p.metrics.AcquireFailures++
			p.mu.Unlock()
			return nil, fmt.Errorf("timeout waiting for available session: %w", ctx.Err())
		}
		return nil, ctx.Err()
	}
}

func (p *ClassifierPool) Release(session inferSession) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.InUse--
	p.metrics.TotalReleased++

	if p.closed {
		session.Destroy()
		return
	}
	p.sessions <- session
}

func (p *ClassifierPool) discard(session inferSession, cause error) {
	session.Destroy()
	logging.Warn("discarding model session", "error", cause)

	p.mu.Lock()
	p.metrics.InUse--
	p.metrics.Discarded++
	p.mu.Unlock()
	p.recordError(cause)
}

func (p *ClassifierPool) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	p.closed = true
	close(p.stop)
	close(p.sessions)

	for session := range p.sessions {
		session.Destroy()
	}
}

func (p *ClassifierPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

// replenish opens sessions until the pool is back to its configured size.
func (p *ClassifierPool) replenish() {
	p.mu.Lock()
	missing := p.size - len(p.sessions) - p.metrics.InUse
	p.mu.Unlock()

	for i := 0; i < missing; i++ {
		session, err := p.factory()
		if err != nil {
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		select {
		case p.sessions <- session:
		default:
			session.Destroy()
		}
		p.mu.Unlock()
	}
}

func (p *ClassifierPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *ClassifierPool) GetMetrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := p.metrics
	m.Available = len(p.sessions)
	return m
}

// LastErrors returns the most recent session failures, oldest first.
func (p *ClassifierPool) LastErrors() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.lastErrors))
	for _, err := range p.lastErrors {
		out = append(out, err.Error())
	}
	return out
}
