package heatmap

import (
	"cmp"
	"context"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

// Rank orders stats by statistic, highest first. Equal statistics are
// ordered by tile id ascending.
func Rank(ctx context.Context, stats []model.TileStatistic) ([]model.TileStatistic, error) {
	return rank(ctx, stats, parallel.Options{}, 0)
}

func rank(ctx context.Context, stats []model.TileStatistic, opts parallel.Options, partitions int) ([]model.TileStatistic, error) {
	if partitions <= 0 {
		partitions = max(1, opts.Partitions)
	}
	sorted, err := parallel.SortDescendingBy(ctx, parallel.From(stats, partitions), opts,
		func(s model.TileStatistic) float64 { return s.Statistic },
		func(a, b model.TileStatistic) int { return cmp.Compare(a.TileID, b.TileID) },
	)
	if err != nil {
		return nil, err
	}
	return sorted.Collect(), nil
}
