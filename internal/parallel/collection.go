// Package parallel runs partitioned map, reduce, join and sort stages on a
// bounded worker pool. Each stage is a barrier: it returns only after every
// partition has been processed, and the first failing partition cancels the
// rest of the stage.
package parallel

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Workers bounds concurrently processed partitions; <= 0 means GOMAXPROCS.
	Workers int
	// Partitions is the shuffle fan-out for keyed stages; <= 0 keeps the
	// input partition count.
	Partitions int
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

// Collection is an immutable set of partitions. Stages never modify the
// partitions of their input.
type Collection[T any] struct {
	parts [][]T
}

// From splits items into n contiguous partitions of near-equal size.
func From[T any](items []T, n int) *Collection[T] {
	if n <= 0 {
		n = 1
	}
	if n > len(items) && len(items) > 0 {
		n = len(items)
	}
	parts := make([][]T, n)
	size, rem := len(items)/n, len(items)%n
	off := 0
	for i := range n {
		sz := size
		if i < rem {
			sz++
		}
		parts[i] = items[off : off+sz : off+sz]
		off += sz
	}
	return &Collection[T]{parts: parts}
}

func FromPartitions[T any](parts [][]T) *Collection[T] {
	if len(parts) == 0 {
		parts = [][]T{nil}
	}
	return &Collection[T]{parts: parts}
}

func (c *Collection[T]) NumPartitions() int { return len(c.parts) }

// Partitions returns the partition slices. Callers must treat them as read-only.
func (c *Collection[T]) Partitions() [][]T {
	out := make([][]T, len(c.parts))
	copy(out, c.parts)
	return out
}

func (c *Collection[T]) Len() int {
	n := 0
	for _, p := range c.parts {
		n += len(p)
	}
	return n
}

// Collect gathers every partition, in partition order, into one slice.
func (c *Collection[T]) Collect() []T {
	out := make([]T, 0, c.Len())
	for _, p := range c.parts {
		out = append(out, p...)
	}
	return out
}

// forEach runs fn once per index in [0,n) on the worker pool.
func forEach(ctx context.Context, n int, opts Options, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for i := range n {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
