// Package handoff tracks values whose ownership has been handed to a caller
// outside of Go's memory management. Each value is reachable through an
// opaque Handle until it is released exactly once.
package handoff

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Handle identifies a value held by a Table. The zero Handle is never issued.
type Handle uint64

var (
	ErrReleased      = errors.New("handoff: handle already released")
	ErrUnknownHandle = errors.New("handoff: unknown handle")
)

// Table is safe for concurrent use.
type Table[T any] struct {
	mu      sync.Mutex
	last    Handle
	live    map[Handle]T
	release func(T) error
	gauge   prometheus.Gauge
}

// New returns a table that calls release once for every value it hands
// back. A value whose release fails stays live. gauge, when not nil, tracks
// the number of live values.
func New[T any](release func(T) error, gauge prometheus.Gauge) *Table[T] {
	return &Table[T]{
		live:    make(map[Handle]T),
		release: release,
		gauge:   gauge,
	}
}

func (t *Table[T]) Put(v T) Handle {
	t.mu.Lock()
	t.last++
	h := t.last
	t.live[h] = v
	t.mu.Unlock()
	if t.gauge != nil {
		t.gauge.Inc()
	}
	return h
}

// Get returns the value for h without transferring ownership.
func (t *Table[T]) Get(h Handle) (v T, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.live[h]
	if !ok {
		err = t.missing(h)
	}
	return
}

// Release frees the value behind h. Releasing the zero handle does nothing.
// Releasing a handle twice returns ErrReleased and leaves the value alone.
func (t *Table[T]) Release(h Handle) error {
	if h == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.live[h]
	if !ok {
		return t.missing(h)
	}
	if err := t.release(v); err != nil {
		return err
	}
	delete(t.live, h)
	if t.gauge != nil {
		t.gauge.Dec()
	}
	return nil
}

func (t *Table[T]) missing(h Handle) error {
	if h != 0 && h <= t.last {
		return ErrReleased
	}
	return ErrUnknownHandle
}

func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Close releases every live value. Values that fail to release stay in the
// table and their errors are returned.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for h, v := range t.live {
		if err := t.release(v); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(t.live, h)
		if t.gauge != nil {
			t.gauge.Dec()
		}
	}
	return errors.Join(errs...)
}
