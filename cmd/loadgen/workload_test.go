package main

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/aggregate/tilescore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/heatmap"
)

func TestWorkload_GridCoversUnitSquare(t *testing.T) {
	w := Workload{GridX: 4, GridY: 3}
	tiles := w.Grid()
	if len(tiles) != 12 {
		t.Fatalf("tiles=%d want 12", len(tiles))
	}
	last := tiles[len(tiles)-1]
	if tiles[0].TileID != 1 || last.TileID != 12 || last.MaxX != 1 || last.MaxY != 1 {
		t.Fatalf("first=%+v last=%+v", tiles[0], last)
	}
}

func TestWorkload_RowsParseForKind(t *testing.T) {
	for _, kind := range []model.ScoreKind{model.Jaccard, model.Dice} {
		t.Run(kind.String(), func(t *testing.T) {
			w := Workload{GridX: 5, GridY: 5, Fill: 0.6, MaxRows: 8, Kind: kind, ExtraFields: 2}
			r := rand.New(rand.NewSource(7))
			lines := w.Lines(r, w.Grid())
			if len(lines) == 0 {
				t.Fatalf("no lines generated")
			}
			schema, err := tilescore.SchemaFor(kind)
			if err != nil {
				t.Fatal(err)
			}
			for _, l := range lines {
				for _, row := range l.Rows {
					v, err := schema.Value(row)
					if err != nil {
						t.Fatalf("row %q: %v", row, err)
					}
					if v < 0 || v >= 1 {
						t.Fatalf("coefficient %v outside [0,1)", v)
					}
				}
			}
		})
	}
}

func TestWorkload_ScoresEndToEnd(t *testing.T) {
	w := Workload{GridX: 6, GridY: 6, Fill: 0.5, MaxRows: 5, Kind: model.Dice}
	tiles := w.Grid()
	lines := w.Lines(rand.New(rand.NewSource(1)), tiles)

	table, err := heatmap.NewPartitionTable(tiles)
	if err != nil {
		t.Fatal(err)
	}
	p := heatmap.New(heatmap.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	stats, err := p.Score(context.Background(), table, lines, model.Dice)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != len(tiles) {
		t.Fatalf("stats=%d want %d", len(stats), len(tiles))
	}
}

func TestSummarize(t *testing.T) {
	var lat []time.Duration
	for i := 1; i <= 100; i++ {
		lat = append(lat, time.Duration(i)*time.Millisecond)
	}
	s := summarize(lat, 2, 10*time.Second)
	if s.Count != 100 || s.Errors != 2 || s.RPS != 10 {
		t.Fatalf("summary=%+v", s)
	}
	if s.P50ms != 50 || s.P95ms != 95 || s.P99ms != 99 || s.MaxMs != 100 {
		t.Fatalf("percentiles=%+v", s)
	}
	if empty := summarize(nil, 0, 0); empty.Count != 0 || empty.P99ms != 0 {
		t.Fatalf("empty=%+v", empty)
	}
}
