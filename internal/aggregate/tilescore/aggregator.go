// Package tilescore averages the per-row overlap scores of every tile.
package tilescore

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/mohammed-shakir/spatial-heatmap/internal/aggregate"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

type Aggregator struct {
	schema Schema
	opts   parallel.Options
	log    *slog.Logger
}

var _ aggregate.Interface = (*Aggregator)(nil)

func New(kind model.ScoreKind, opts parallel.Options, logger *slog.Logger) (*Aggregator, error) {
	s, err := SchemaFor(kind)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{schema: s, opts: opts, log: logger}, nil
}

func (a *Aggregator) Schema() Schema { return a.schema }

type sumCount struct {
	sum float64
	n   int64
}

// Aggregate returns the mean score per tile. The first malformed row fails
// the whole aggregation with a *RowError.
func (a *Aggregator) Aggregate(ctx context.Context, lines *parallel.Collection[model.TileLines]) (map[int64]float64, error) {
	pairs, err := parallel.FlatMap(ctx, lines, a.opts, func(tl model.TileLines) ([]parallel.Pair[int64, float64], error) {
		out := make([]parallel.Pair[int64, float64], 0, len(tl.Rows))
		for _, row := range tl.Rows {
			v, err := a.schema.Value(row)
			if err != nil {
				return nil, &RowError{TileID: tl.TileID, Row: row, Err: err}
			}
			out = append(out, parallel.Pair[int64, float64]{Key: tl.TileID, Value: v})
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s scores: %w", a.schema.Kind, err)
	}
	observability.AddScoreRows(a.schema.Kind.String(), pairs.Len())

	sums, err := parallel.CombineByKey(ctx, pairs, a.opts,
		func(v float64) sumCount { return sumCount{sum: v, n: 1} },
		func(c sumCount, v float64) sumCount { return sumCount{sum: c.sum + v, n: c.n + 1} },
		func(x, y sumCount) sumCount { return sumCount{sum: x.sum + y.sum, n: x.n + y.n} },
	)
	if err != nil {
		return nil, fmt.Errorf("combine %s scores: %w", a.schema.Kind, err)
	}

	avgs, err := parallel.Map(ctx, sums, a.opts, func(p parallel.Pair[int64, sumCount]) (parallel.Pair[int64, float64], error) {
		return parallel.Pair[int64, float64]{Key: p.Key, Value: p.Value.sum / float64(p.Value.n)}, nil
	})
	if err != nil {
		return nil, err
	}
	out, err := parallel.ToMap(avgs)
	if err != nil {
		return nil, err
	}
	a.log.DebugContext(ctx, "tile scores aggregated",
		"kind", a.schema.Kind.String(),
		"rows", pairs.Len(),
		"tiles", len(out))
	return out, nil
}

// Averages is Aggregate with the result ordered by tile id.
func (a *Aggregator) Averages(ctx context.Context, lines *parallel.Collection[model.TileLines]) ([]model.TileAverage, error) {
	m, err := a.Aggregate(ctx, lines)
	if err != nil {
		return nil, err
	}
	out := make([]model.TileAverage, 0, len(m))
	for id, avg := range m {
		out = append(out, model.TileAverage{TileID: id, Average: avg})
	}
	slices.SortFunc(out, func(x, y model.TileAverage) int { return cmp.Compare(x.TileID, y.TileID) })
	return out, nil
}
