package recognize

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrAcquireTimeout means no backend slot freed up within the configured
// wait. Callers block for a slot rather than spawning unbounded inferences.
var ErrAcquireTimeout = errors.New("timed out waiting for a recognition slot")

// Pool holds a small fixed set of backend instances and hands them out one
// caller at a time. This is the serialization point for a backend that may
// be bound to a single accelerator.
type Pool struct {
	slots          chan Recognizer
	acquireTimeout time.Duration
}

// NewPool builds a pool over the given backend instances. acquireTimeout
// bounds how long Acquire waits for a free slot; zero means wait until the
// context is done.
func NewPool(backends []Recognizer, acquireTimeout time.Duration) (*Pool, error) {
	if len(backends) == 0 {
		return nil, errors.New("pool requires at least one backend")
	}
	slots := make(chan Recognizer, len(backends))
	for _, b := range backends {
		if b == nil {
			return nil, errors.New("nil backend in pool")
		}
		slots <- b
	}
	return &Pool{slots: slots, acquireTimeout: acquireTimeout}, nil
}

// Size returns the number of backend slots.
func (p *Pool) Size() int { return cap(p.slots) }

// Acquire blocks until a backend is free, the context is done, or the
// acquire timeout elapses. Every successful Acquire must be paired with a
// Release of the same instance.
func (p *Pool) Acquire(ctx context.Context) (Recognizer, error) {
	var timeout <-chan time.Time
	if p.acquireTimeout > 0 {
		t := time.NewTimer(p.acquireTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-p.slots:
		return r, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire aborted: %w", ctx.Err())
	case <-timeout:
		return nil, ErrAcquireTimeout
	}
}

// Release returns a backend to the pool.
func (p *Pool) Release(r Recognizer) {
	select {
	case p.slots <- r:
	default:
		// Releasing more than was acquired is a programming error; dropping
		// the instance here is better than blocking the caller forever.
	}
}

// Recognize acquires a slot, runs the recognizer, and releases the slot.
func (p *Pool) Recognize(ctx context.Context, crop image.Image) ([]Line, error) {
	r, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(r)
	return r.Recognize(ctx, crop)
}
