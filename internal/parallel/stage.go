package parallel

import (
	"context"
	"fmt"
)

// Map applies fn to every element, preserving partitioning and order.
func Map[T, U any](ctx context.Context, c *Collection[T], opts Options, fn func(T) (U, error)) (*Collection[U], error) {
	out := make([][]U, len(c.parts))
	err := forEach(ctx, len(c.parts), opts, func(_ context.Context, i int) error {
		src := c.parts[i]
		dst := make([]U, 0, len(src))
		for j, v := range src {
			u, err := fn(v)
			if err != nil {
				return fmt.Errorf("partition %d element %d: %w", i, j, err)
			}
			dst = append(dst, u)
		}
		out[i] = dst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Collection[U]{parts: out}, nil
}

// FlatMap applies fn to every element and concatenates the results within
// each partition.
func FlatMap[T, U any](ctx context.Context, c *Collection[T], opts Options, fn func(T) ([]U, error)) (*Collection[U], error) {
	out := make([][]U, len(c.parts))
	err := forEach(ctx, len(c.parts), opts, func(_ context.Context, i int) error {
		var dst []U
		for _, v := range c.parts[i] {
			us, err := fn(v)
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}
			dst = append(dst, us...)
		}
		out[i] = dst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Collection[U]{parts: out}, nil
}

func Filter[T any](ctx context.Context, c *Collection[T], opts Options, keep func(T) bool) (*Collection[T], error) {
	out := make([][]T, len(c.parts))
	err := forEach(ctx, len(c.parts), opts, func(_ context.Context, i int) error {
		dst := make([]T, 0, len(c.parts[i]))
		for _, v := range c.parts[i] {
			if keep(v) {
				dst = append(dst, v)
			}
		}
		out[i] = dst
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Collection[T]{parts: out}, nil
}

// Reduce folds every partition with merge and then combines the partial
// results pairwise in a tree. merge must be associative; the result is
// independent of partitioning only if merge is also commutative.
// ok is false when the collection holds no elements.
func Reduce[T any](ctx context.Context, c *Collection[T], opts Options, merge func(a, b T) T) (result T, ok bool, err error) {
	type partial struct {
		v  T
		ok bool
	}
	partials := make([]partial, len(c.parts))
	err = forEach(ctx, len(c.parts), opts, func(_ context.Context, i int) error {
		p := c.parts[i]
		if len(p) == 0 {
			return nil
		}
		acc := p[0]
		for _, v := range p[1:] {
			acc = merge(acc, v)
		}
		partials[i] = partial{v: acc, ok: true}
		return nil
	})
	if err != nil {
		return result, false, err
	}

	level := make([]T, 0, len(partials))
	for _, p := range partials {
		if p.ok {
			level = append(level, p.v)
		}
	}
	if len(level) == 0 {
		return result, false, nil
	}

	for len(level) > 1 {
		next := make([]T, (len(level)+1)/2)
		err := forEach(ctx, len(next), opts, func(_ context.Context, i int) error {
			a := 2 * i
			if a+1 < len(level) {
				next[i] = merge(level[a], level[a+1])
			} else {
				next[i] = level[a]
			}
			return nil
		})
		if err != nil {
			return result, false, err
		}
		level = next
	}
	return level[0], true, nil
}
