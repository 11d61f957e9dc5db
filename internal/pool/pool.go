// Package pool hands out a fixed set of independent instances, one
// caller at a time per instance. It guards model handles that must not
// be used concurrently.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("pool closed")

// Pool is a fixed-size set of instances of T.
type Pool[T any] struct {
	items  chan T
	all    []T
	inUse  atomic.Int64
	done   chan struct{}
	closed sync.Once

	// OnChange, when set, is called with the number of borrowed instances.
	OnChange func(inUse int)
}

// New builds a pool around already constructed instances.
func New[T any](items []T) *Pool[T] {
	p := &Pool[T]{
		items: make(chan T, len(items)),
		all:   items,
		done:  make(chan struct{}),
	}
	for _, item := range items {
		p.items <- item
	}
	return p
}

// Size returns the number of instances.
func (p *Pool[T]) Size() int { return len(p.all) }

// InUse returns the number of borrowed instances.
func (p *Pool[T]) InUse() int { return int(p.inUse.Load()) }

// Acquire waits for a free instance.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-p.done:
		return zero, ErrClosed
	default:
	}

	select {
	case item := <-p.items:
		p.changed(p.inUse.Add(1))
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.done:
		return zero, ErrClosed
	}
}

// Release returns an instance obtained from Acquire.
func (p *Pool[T]) Release(item T) {
	p.changed(p.inUse.Add(-1))
	p.items <- item
}

// Do runs fn with a borrowed instance and returns it afterwards.
func (p *Pool[T]) Do(ctx context.Context, fn func(T) error) error {
	item, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(item)
	return fn(item)
}

// Close stops handing out instances and closes every instance with
// closeFn once it has been returned.
func (p *Pool[T]) Close(closeFn func(T) error) error {
	var errs []error
	p.closed.Do(func() {
		close(p.done)
		for range p.all {
			item := <-p.items
			if closeFn != nil {
				if err := closeFn(item); err != nil {
					errs = append(errs, err)
				}
			}
		}
	})
	return errors.Join(errs...)
}

func (p *Pool[T]) changed(n int64) {
	if p.OnChange != nil {
		p.OnChange(int(n))
	}
}
