package parallel

import (
	"cmp"
	"container/heap"
	"context"
	"slices"
)

// SortDescendingBy orders the whole collection by key, largest first, and
// returns it as a single partition. Elements with equal keys are ordered by
// tie (ascending); a nil tie leaves them in partition order. Partitions are
// sorted concurrently and then k-way merged.
func SortDescendingBy[T any](
	ctx context.Context,
	c *Collection[T],
	opts Options,
	key func(T) float64,
	tie func(a, b T) int,
) (*Collection[T], error) {
	order := func(a, b T) int {
		if r := cmp.Compare(key(b), key(a)); r != 0 {
			return r
		}
		if tie != nil {
			return tie(a, b)
		}
		return 0
	}

	sorted := make([][]T, len(c.parts))
	err := forEach(ctx, len(c.parts), opts, func(_ context.Context, i int) error {
		p := slices.Clone(c.parts[i])
		slices.SortStableFunc(p, order)
		sorted[i] = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Collection[T]{parts: [][]T{mergeSorted(sorted, order)}}, nil
}

type cursor[T any] struct {
	run []T
	pos int
	idx int
}

type runHeap[T any] struct {
	items []*cursor[T]
	order func(a, b T) int
}

func (h *runHeap[T]) Len() int { return len(h.items) }

func (h *runHeap[T]) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if r := h.order(a.run[a.pos], b.run[b.pos]); r != 0 {
		return r < 0
	}
	// equal elements keep partition order
	return a.idx < b.idx
}

func (h *runHeap[T]) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *runHeap[T]) Push(x any) { h.items = append(h.items, x.(*cursor[T])) }

func (h *runHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

func mergeSorted[T any](runs [][]T, order func(a, b T) int) []T {
	total := 0
	h := &runHeap[T]{order: order}
	for i, r := range runs {
		total += len(r)
		if len(r) > 0 {
			h.items = append(h.items, &cursor[T]{run: r, idx: i})
		}
	}
	heap.Init(h)

	out := make([]T, 0, total)
	for h.Len() > 0 {
		c := h.items[0]
		out = append(out, c.run[c.pos])
		c.pos++
		if c.pos == len(c.run) {
			heap.Pop(h)
		} else {
			heap.Fix(h, 0)
		}
	}
	return out
}
