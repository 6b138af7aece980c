// Package aggregate defines per-tile score aggregation.
package aggregate

import (
	"context"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

// Interface reduces the join rows of every tile to one average score.
// Tiles without rows are absent from the result.
type Interface interface {
	Aggregate(ctx context.Context, lines *parallel.Collection[model.TileLines]) (map[int64]float64, error)
}
