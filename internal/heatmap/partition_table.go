package heatmap

import (
	"fmt"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

// PartitionTable is the fixed set of tiles results are reported over. It is
// built once and shared read-only by every worker of a join.
type PartitionTable struct {
	tiles []model.PartitionTile
}

// NewPartitionTable copies tiles. Tile ids must be unique.
func NewPartitionTable(tiles []model.PartitionTile) (*PartitionTable, error) {
	seen := make(map[int64]struct{}, len(tiles))
	for _, t := range tiles {
		if _, dup := seen[t.TileID]; dup {
			return nil, fmt.Errorf("partition table: tile %d: %w", t.TileID, parallel.ErrDuplicateKey)
		}
		seen[t.TileID] = struct{}{}
	}
	cp := make([]model.PartitionTile, len(tiles))
	copy(cp, tiles)
	return &PartitionTable{tiles: cp}, nil
}

func (t *PartitionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.tiles)
}

// At returns tile i. A nil table yields the zero tile.
func (t *PartitionTable) At(i int) model.PartitionTile {
	if t == nil {
		return model.PartitionTile{}
	}
	return t.tiles[i]
}

// Tiles returns a copy of the table in insertion order.
func (t *PartitionTable) Tiles() []model.PartitionTile {
	if t == nil {
		return nil
	}
	cp := make([]model.PartitionTile, len(t.tiles))
	copy(cp, t.tiles)
	return cp
}

func (t *PartitionTable) collection(n int) *parallel.Collection[parallel.Pair[int64, model.PartitionTile]] {
	pairs := make([]parallel.Pair[int64, model.PartitionTile], 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		pairs = append(pairs, parallel.Pair[int64, model.PartitionTile]{Key: t.tiles[i].TileID, Value: t.tiles[i]})
	}
	return parallel.From(pairs, n)
}
