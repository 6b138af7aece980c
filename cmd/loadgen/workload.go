package main

import (
	"fmt"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

// Workload describes one synthetic join output: a gridX*gridY tiling of
// [0,1]x[0,1] with a skewed number of matched pairs per tile.
type Workload struct {
	GridX, GridY int
	// Fill is the fraction of tiles that receive at least one row.
	Fill        float64
	MaxRows     int
	Kind        model.ScoreKind
	ExtraFields int
}

// Grid returns the tiling, ids starting at 1 in row-major order.
func (w Workload) Grid() []model.PartitionTile {
	tiles := make([]model.PartitionTile, 0, w.GridX*w.GridY)
	dx, dy := 1/float64(w.GridX), 1/float64(w.GridY)
	for j := range w.GridY {
		for i := range w.GridX {
			tiles = append(tiles, model.PartitionTile{
				TileID: int64(j*w.GridX + i + 1),
				MinX:   float64(i) * dx,
				MinY:   float64(j) * dy,
				MaxX:   float64(i+1) * dx,
				MaxY:   float64(j+1) * dy,
			})
		}
	}
	return tiles
}

// Lines draws rows for a random subset of tiles. The row count per tile is
// skewed so a few tiles dominate, and every row places its coefficient at
// the field the configured score kind reads.
func (w Workload) Lines(r *rand.Rand, tiles []model.PartitionTile) []model.TileLines {
	var out []model.TileLines
	for _, t := range tiles {
		if r.Float64() >= w.Fill {
			continue
		}
		n := 1 + int(float64(w.MaxRows-1)*r.Float64()*r.Float64())
		rows := make([]string, 0, n)
		for k := range n {
			rows = append(rows, w.row(r, t.TileID, k))
		}
		out = append(out, model.TileLines{TileID: t.TileID, Rows: rows})
	}
	return out
}

func (w Workload) row(r *rand.Rand, tile int64, k int) string {
	fields := []string{fmt.Sprintf("a%d-%d", tile, k), fmt.Sprintf("b%d-%d", tile, k)}
	for range w.ExtraFields {
		fields = append(fields, strconv.Itoa(r.Intn(1000)))
	}
	coef := strconv.FormatFloat(r.Float64(), 'f', 6, 64)
	if w.Kind == model.Dice {
		// dice reads the second-to-last field
		fields = append(fields, coef, strconv.Itoa(r.Intn(100)))
	} else {
		fields = append(fields, coef)
	}
	return strings.Join(fields, "\t")
}

type latencySummary struct {
	Count  int     `json:"count"`
	Errors int     `json:"errors"`
	P50ms  float64 `json:"p50_ms"`
	P95ms  float64 `json:"p95_ms"`
	P99ms  float64 `json:"p99_ms"`
	MaxMs  float64 `json:"max_ms"`
	RPS    float64 `json:"rps"`
}

func summarize(lat []time.Duration, errs int, elapsed time.Duration) latencySummary {
	s := latencySummary{Count: len(lat), Errors: errs}
	if elapsed > 0 {
		s.RPS = float64(len(lat)) / elapsed.Seconds()
	}
	if len(lat) == 0 {
		return s
	}
	sorted := slices.Clone(lat)
	slices.Sort(sorted)
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	at := func(q float64) time.Duration {
		i := int(q*float64(len(sorted))+0.5) - 1
		return sorted[min(max(i, 0), len(sorted)-1)]
	}
	s.P50ms = ms(at(0.50))
	s.P95ms = ms(at(0.95))
	s.P99ms = ms(at(0.99))
	s.MaxMs = ms(sorted[len(sorted)-1])
	return s
}
