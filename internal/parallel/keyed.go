package parallel

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
)

var ErrDuplicateKey = errors.New("duplicate key")

// Key is the set of types usable as shuffle keys.
type Key interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64 | ~string
}

type Pair[K Key, V any] struct {
	Key   K
	Value V
}

// Joined is one row of a left outer join. Right holds the zero value when
// Matched is false.
type Joined[K Key, L, R any] struct {
	Key     K
	Left    L
	Right   R
	Matched bool
}

// bucketOf maps a key onto one of n shuffle buckets.
func bucketOf[K Key](k K, n int) int {
	var buf [32]byte
	h := xxhash.Sum64(fmt.Append(buf[:0], k))
	return int(h % uint64(n))
}

// CombineByKey groups values by key. create seeds a combiner from the first
// value seen in a partition, mergeValue folds further values into it and
// mergeCombiners merges partial combiners from different partitions after
// the shuffle. Output partitions are hash buckets with keys in ascending
// order; partials are merged in input-partition order so the result is
// deterministic for a given partitioning.
func CombineByKey[K Key, V, C any](
	ctx context.Context,
	c *Collection[Pair[K, V]],
	opts Options,
	create func(V) C,
	mergeValue func(C, V) C,
	mergeCombiners func(C, C) C,
) (*Collection[Pair[K, C]], error) {
	nOut := opts.Partitions
	if nOut <= 0 {
		nOut = len(c.parts)
	}

	// map side: partition-local combine, then split into buckets
	shuffled := make([][]map[K]C, len(c.parts))
	err := forEach(ctx, len(c.parts), opts, func(_ context.Context, i int) error {
		local := make(map[K]C)
		for _, kv := range c.parts[i] {
			if acc, ok := local[kv.Key]; ok {
				local[kv.Key] = mergeValue(acc, kv.Value)
			} else {
				local[kv.Key] = create(kv.Value)
			}
		}
		buckets := make([]map[K]C, nOut)
		for k, v := range local {
			b := bucketOf(k, nOut)
			if buckets[b] == nil {
				buckets[b] = make(map[K]C)
			}
			buckets[b][k] = v
		}
		shuffled[i] = buckets
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("combine map side: %w", err)
	}

	// reduce side: one worker per bucket
	out := make([][]Pair[K, C], nOut)
	err = forEach(ctx, nOut, opts, func(_ context.Context, b int) error {
		merged := make(map[K]C)
		for i := range shuffled {
			for k, v := range shuffled[i][b] {
				if acc, ok := merged[k]; ok {
					merged[k] = mergeCombiners(acc, v)
				} else {
					merged[k] = v
				}
			}
		}
		keys := make([]K, 0, len(merged))
		for k := range merged {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		dst := make([]Pair[K, C], 0, len(keys))
		for _, k := range keys {
			dst = append(dst, Pair[K, C]{Key: k, Value: merged[k]})
		}
		out[b] = dst
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("combine reduce side: %w", err)
	}
	return &Collection[Pair[K, C]]{parts: out}, nil
}

// LeftOuterJoin joins every left element with at most one right element of
// the same key. The right side is gathered into a read-only lookup table
// shared by all workers; output partitions mirror the left side, so every
// left element appears exactly once. A key repeated on the right side is an
// error.
func LeftOuterJoin[K Key, L, R any](
	ctx context.Context,
	left *Collection[Pair[K, L]],
	right *Collection[Pair[K, R]],
	opts Options,
) (*Collection[Joined[K, L, R]], error) {
	lookup := make(map[K]R, right.Len())
	for _, p := range right.parts {
		for _, kv := range p {
			if _, dup := lookup[kv.Key]; dup {
				return nil, fmt.Errorf("left outer join: key %v: %w", kv.Key, ErrDuplicateKey)
			}
			lookup[kv.Key] = kv.Value
		}
	}

	return Map(ctx, left, opts, func(kv Pair[K, L]) (Joined[K, L, R], error) {
		r, ok := lookup[kv.Key]
		return Joined[K, L, R]{Key: kv.Key, Left: kv.Value, Right: r, Matched: ok}, nil
	})
}

// ToMap gathers a keyed collection into a map. A repeated key is an error.
func ToMap[K Key, V any](c *Collection[Pair[K, V]]) (map[K]V, error) {
	out := make(map[K]V, c.Len())
	for _, p := range c.parts {
		for _, kv := range p {
			if _, dup := out[kv.Key]; dup {
				return nil, fmt.Errorf("key %v: %w", kv.Key, ErrDuplicateKey)
			}
			out[kv.Key] = kv.Value
		}
	}
	return out, nil
}
