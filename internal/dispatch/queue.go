// Package dispatch provides bounded FIFO hand-off queues between pipeline stages.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Policy selects what Push does when the queue is full.
type Policy string

const (
	// PolicyBlock waits for space or cancellation.
	PolicyBlock Policy = "block"
	// PolicyDropOldest evicts the head to make room for the new item.
	PolicyDropOldest Policy = "drop_oldest"
	// PolicyDropNewest rejects the new item.
	PolicyDropNewest Policy = "drop_newest"
)

var (
	// ErrClosed is returned by Push after Close, and by Pop once a closed
	// queue is drained.
	ErrClosed = errors.New("dispatch: queue closed")
	// ErrDropped is returned by Push when PolicyDropNewest rejects an item.
	ErrDropped = errors.New("dispatch: queue full, item dropped")
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(raw string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(raw))) {
	case PolicyBlock:
		return PolicyBlock, nil
	case PolicyDropOldest, "":
		return PolicyDropOldest, nil
	case PolicyDropNewest:
		return PolicyDropNewest, nil
	default:
		return "", fmt.Errorf("unknown queue policy %q (expected block, drop_oldest, or drop_newest)", raw)
	}
}

// Drop describes one discarded item.
type Drop struct {
	Queue  string
	Policy Policy
	Depth  int
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Depth    int
	Capacity int
	Pushed   uint64
	Popped   uint64
	Dropped  uint64
}

// Option customizes a Queue.
type Option func(*options)

type options struct {
	onDrop func(Drop)
}

// WithDropHook registers a callback invoked for every dropped item.
// The hook runs on the producer goroutine and must not block.
func WithDropHook(hook func(Drop)) Option {
	return func(o *options) {
		o.onDrop = hook
	}
}

// Queue is a bounded FIFO safe for concurrent producers and consumers.
type Queue[T any] struct {
	name   string
	policy Policy
	items  chan T
	onDrop func(Drop)

	// evict serializes drop-oldest producers so eviction and insert pair up.
	evict sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once

	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64
}

// New builds a queue. Capacity below one is raised to one.
func New[T any](name string, capacity int, policy Policy, opts ...Option) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	if policy == "" {
		policy = PolicyDropOldest
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Queue[T]{
		name:   name,
		policy: policy,
		items:  make(chan T, capacity),
		onDrop: o.onDrop,
		closed: make(chan struct{}),
	}
}

// Name returns the queue label used in drop reports.
func (q *Queue[T]) Name() string {
	return q.name
}

// Policy returns the overflow policy.
func (q *Queue[T]) Policy() Policy {
	return q.policy
}

// Push enqueues item according to the queue policy.
//
// PolicyDropOldest never blocks and always accepts the new item.
// PolicyDropNewest never blocks and returns ErrDropped when full.
// PolicyBlock waits until space frees up, ctx ends, or the queue closes.
func (q *Queue[T]) Push(ctx context.Context, item T) error {
	if q.isClosed() {
		return ErrClosed
	}

	switch q.policy {
	case PolicyBlock:
		select {
		case q.items <- item:
			q.pushed.Add(1)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-q.closed:
			return ErrClosed
		}
	case PolicyDropNewest:
		select {
		case q.items <- item:
			q.pushed.Add(1)
			return nil
		default:
			q.drop()
			return ErrDropped
		}
	default:
		q.evict.Lock()
		defer q.evict.Unlock()
		for {
			select {
			case q.items <- item:
				q.pushed.Add(1)
				return nil
			default:
			}
			select {
			case <-q.items:
				q.drop()
			default:
			}
		}
	}
}

// Pop dequeues the oldest item, waiting until one is available. After Close
// it keeps returning buffered items, then ErrClosed.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.items:
		q.popped.Add(1)
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.closed:
		select {
		case item := <-q.items:
			q.popped.Add(1)
			return item, nil
		default:
			return zero, ErrClosed
		}
	}
}

// Close stops accepting new items. Buffered items stay poppable.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
}

// Len returns the current depth.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// Cap returns the capacity.
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}

// Stats returns a snapshot of the queue counters.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Depth:    len(q.items),
		Capacity: cap(q.items),
		Pushed:   q.pushed.Load(),
		Popped:   q.popped.Load(),
		Dropped:  q.dropped.Load(),
	}
}

func (q *Queue[T]) isClosed() bool {
	select {
	case <-q.closed:
		return true
	default:
		return false
	}
}

func (q *Queue[T]) drop() {
	q.dropped.Add(1)
	if q.onDrop != nil {
		q.onDrop(Drop{Queue: q.name, Policy: q.policy, Depth: len(q.items)})
	}
}
