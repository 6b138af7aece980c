package heatmap

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

// Join attaches an average to every tile of table. Tiles with no average
// get a statistic of exactly 0.0, so the result always has table.Len()
// entries.
func Join(ctx context.Context, table *PartitionTable, averages map[int64]float64, kind model.ScoreKind) ([]model.TileStatistic, error) {
	return join(ctx, table, averages, kind, parallel.Options{}, 0)
}

func join(
	ctx context.Context,
	table *PartitionTable,
	averages map[int64]float64,
	kind model.ScoreKind,
	opts parallel.Options,
	partitions int,
) ([]model.TileStatistic, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("join: invalid score kind %d", int(kind))
	}
	if partitions <= 0 {
		partitions = max(1, opts.Partitions)
	}
	label := kind.String()

	keys := slices.Sorted(maps.Keys(averages))
	right := make([]parallel.Pair[int64, float64], 0, len(keys))
	for _, k := range keys {
		right = append(right, parallel.Pair[int64, float64]{Key: k, Value: averages[k]})
	}

	joined, err := parallel.LeftOuterJoin(ctx, table.collection(partitions), parallel.From(right, 1), opts)
	if err != nil {
		return nil, fmt.Errorf("join averages: %w", err)
	}

	matched := 0
	out := make([]model.TileStatistic, 0, joined.Len())
	for _, row := range joined.Collect() {
		stat := 0.0
		if row.Matched {
			stat = row.Right
			matched++
		}
		out = append(out, model.TileStatistic{PartitionTile: row.Left, Statistic: stat, Kind: label})
	}
	observability.AddJoinedTiles(matched, len(out)-matched)
	return out, nil
}
