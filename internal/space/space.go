// Package space reduces bounding boxes into the global extent of a dataset.
package space

import (
	"context"
	"fmt"
	"math"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

// FromBox lifts one valid box into a Space. Count is carried as the object count.
func FromBox(b model.BoundingBox) model.Space {
	return model.Space{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY, ObjectCount: b.Count}
}

// Merge combines two partial extents. It is associative and commutative and
// treats an empty Space (ObjectCount 0) as the identity.
func Merge(a, b model.Space) model.Space {
	if a.IsEmpty() {
		return b
	}
	if b.IsEmpty() {
		return a
	}
	return model.Space{
		MinX:        math.Min(a.MinX, b.MinX),
		MinY:        math.Min(a.MinY, b.MinY),
		MaxX:        math.Max(a.MaxX, b.MaxX),
		MaxY:        math.Max(a.MaxY, b.MaxY),
		ObjectCount: a.ObjectCount + b.ObjectCount,
	}
}

// Valid reports whether b takes part in the extent. The zero-sum sentinel is
// excluded even when its count is positive.
func Valid(b model.BoundingBox) bool { return !b.IsEmpty() }

// ReduceSlice is the single-pass form of Reduce.
func ReduceSlice(boxes []model.BoundingBox) model.Space {
	var s model.Space
	for _, b := range boxes {
		if Valid(b) {
			s = Merge(s, FromBox(b))
		}
	}
	return s
}

// Reduce filters out sentinel boxes and folds the rest into one Space. With
// no valid boxes the result is the zero Space; callers must check
// ObjectCount before using the extent.
func Reduce(ctx context.Context, boxes *parallel.Collection[model.BoundingBox], opts parallel.Options) (model.Space, error) {
	valid, err := parallel.Filter(ctx, boxes, opts, Valid)
	if err != nil {
		return model.Space{}, fmt.Errorf("filter boxes: %w", err)
	}
	spaces, err := parallel.Map(ctx, valid, opts, func(b model.BoundingBox) (model.Space, error) {
		return FromBox(b), nil
	})
	if err != nil {
		return model.Space{}, fmt.Errorf("lift boxes: %w", err)
	}
	s, ok, err := parallel.Reduce(ctx, spaces, opts, Merge)
	if err != nil {
		return model.Space{}, fmt.Errorf("reduce space: %w", err)
	}
	if !ok {
		return model.Space{}, nil
	}
	return s, nil
}
