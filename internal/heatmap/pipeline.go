// Package heatmap turns spatial join rows into a ranked per-tile heatmap.
package heatmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/aggregate"
	"github.com/mohammed-shakir/spatial-heatmap/internal/aggregate/tilescore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/dataset"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

var ErrNoJoiner = errors.New("heatmap: no spatial joiner configured")

// SpatialJoiner evaluates pred between two prepared datasets over a tiling
// of their combined space. It returns the tiling and, per tile, the raw
// tab-delimited rows of the pairs that satisfied pred.
type SpatialJoiner interface {
	Join(ctx context.Context, a, b *dataset.Dataset, pred model.Predicate) (*PartitionTable, []model.TileLines, error)
}

type Options struct {
	Logger   *slog.Logger
	Joiner   SpatialJoiner
	Parallel parallel.Options
	// Partitions splits stage inputs; <= 0 uses Parallel.Workers.
	Partitions int
}

type Pipeline struct {
	log        *slog.Logger
	joiner     SpatialJoiner
	opts       parallel.Options
	partitions int
}

func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	n := opts.Partitions
	if n <= 0 {
		n = max(1, opts.Parallel.Workers)
	}
	return &Pipeline{log: opts.Logger, joiner: opts.Joiner, opts: opts.Parallel, partitions: n}
}

// Run joins a and b with the configured SpatialJoiner and scores the result.
func (p *Pipeline) Run(ctx context.Context, a, b *dataset.Dataset, pred model.Predicate, kind model.ScoreKind) ([]model.TileStatistic, error) {
	if p.joiner == nil {
		return nil, ErrNoJoiner
	}
	start := time.Now()
	table, lines, err := p.joiner.Join(ctx, a, b, pred)
	if err != nil {
		observability.IncPipelineRun(kind.String(), err)
		return nil, fmt.Errorf("spatial join %s/%s: %w", a.ID, b.ID, err)
	}
	observability.ObserveStage("spatial_join", time.Since(start).Seconds())
	return p.Score(ctx, table, lines, kind)
}

// Score aggregates lines per tile, joins the averages onto table and ranks
// the result.
func (p *Pipeline) Score(ctx context.Context, table *PartitionTable, lines []model.TileLines, kind model.ScoreKind) (out []model.TileStatistic, err error) {
	defer func() { observability.IncPipelineRun(kind.String(), err) }()

	agg, err := tilescore.New(kind, p.opts, p.log)
	if err != nil {
		return nil, err
	}
	return p.score(ctx, agg, table, lines, kind)
}

func (p *Pipeline) score(
	ctx context.Context,
	agg aggregate.Interface,
	table *PartitionTable,
	lines []model.TileLines,
	kind model.ScoreKind,
) ([]model.TileStatistic, error) {
	start := time.Now()
	avgs, err := agg.Aggregate(ctx, parallel.From(lines, p.partitions))
	if err != nil {
		return nil, err
	}
	p.stageDone(ctx, "aggregate", start, "tiles_scored", len(avgs))

	start = time.Now()
	stats, err := join(ctx, table, avgs, kind, p.opts, p.partitions)
	if err != nil {
		return nil, err
	}
	p.stageDone(ctx, "join", start, "tiles", len(stats))

	start = time.Now()
	ranked, err := rank(ctx, stats, p.opts, p.partitions)
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	p.stageDone(ctx, "rank", start, "tiles", len(ranked))
	return ranked, nil
}

func (p *Pipeline) stageDone(ctx context.Context, stage string, start time.Time, k string, n int) {
	d := time.Since(start)
	observability.ObserveStage(stage, d.Seconds())
	p.log.DebugContext(ctx, "stage done", "stage", stage, k, n, "duration", d)
}
