package tilescore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"testing"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

const eps = 1e-9

func newAgg(t *testing.T, kind model.ScoreKind) *Aggregator {
	t.Helper()
	a, err := New(kind, parallel.Options{Workers: 3, Partitions: 4}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSchema_Value(t *testing.T) {
	tests := []struct {
		name    string
		kind    model.ScoreKind
		row     string
		want    float64
		wantErr bool
	}{
		{"jaccard last column", model.Jaccard, "a\tb\t5\t0.8", 0.8, false},
		{"dice second to last", model.Dice, "a\tb\t0.35\t0.8", 0.35, false},
		{"whitespace trimmed", model.Jaccard, "a\t 0.25 ", 0.25, false},
		{"single column jaccard", model.Jaccard, "0.5", 0.5, false},
		{"too short for dice", model.Dice, "0.5", 0, true},
		{"not a number", model.Jaccard, "a\tb\tx", 0, true},
		{"empty row", model.Jaccard, "", 0, true},
		{"nan rejected", model.Jaccard, "a\tNaN", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := SchemaFor(tc.kind)
			if err != nil {
				t.Fatal(err)
			}
			got, err := s.Value(tc.row)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("want error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestSchemaFor_InvalidKind(t *testing.T) {
	if _, err := SchemaFor(model.ScoreKind(42)); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := New(0, parallel.Options{}, nil); err == nil {
		t.Fatalf("expected error from New")
	}
}

func TestAggregate_MeanPerTile(t *testing.T) {
	lines := []model.TileLines{
		{TileID: 1, Rows: []string{"x\ty\t5\t0.8"}},
		{TileID: 2, Rows: []string{"x\ty\t5\t0.2"}},
		{TileID: 1, Rows: []string{"x\ty\t5\t0.6"}},
	}
	got, err := newAgg(t, model.Jaccard).Aggregate(context.Background(), parallel.From(lines, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("tiles=%d want 2: %v", len(got), got)
	}
	if math.Abs(got[1]-0.7) > eps || math.Abs(got[2]-0.2) > eps {
		t.Fatalf("got %v want {1:0.7 2:0.2}", got)
	}
}

func TestAggregate_ManyRowsWithinEpsilon(t *testing.T) {
	var rows []string
	sum := 0.0
	for i := range 1000 {
		v := float64(i%97) / 97
		sum += v
		rows = append(rows, "a\tb\t"+strconv.FormatFloat(v, 'g', -1, 64))
	}
	want := sum / 1000

	// same tile spread across many lines and partitions
	var lines []model.TileLines
	for i := 0; i < len(rows); i += 50 {
		lines = append(lines, model.TileLines{TileID: 7, Rows: rows[i : i+50]})
	}
	for _, parts := range []int{1, 3, 20} {
		got, err := newAgg(t, model.Jaccard).Aggregate(context.Background(), parallel.From(lines, parts))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(got[7]-want) > eps {
			t.Fatalf("parts=%d avg=%v want %v", parts, got[7], want)
		}
	}
}

func TestAggregate_TilesWithoutRowsAreAbsent(t *testing.T) {
	lines := []model.TileLines{{TileID: 3}, {TileID: 4, Rows: []string{"1\t0.5"}}}
	got, err := newAgg(t, model.Jaccard).Aggregate(context.Background(), parallel.From(lines, 2))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got[3]; ok {
		t.Fatalf("tile 3 has no rows and must be absent: %v", got)
	}
	if got[4] != 0.5 {
		t.Fatalf("tile 4 = %v", got[4])
	}
}

func TestAggregate_MalformedRowFailsWithRowError(t *testing.T) {
	lines := []model.TileLines{
		{TileID: 1, Rows: []string{"a\t0.1"}},
		{TileID: 9, Rows: []string{"a\t0.2", "a\tbroken"}},
	}
	_, err := newAgg(t, model.Jaccard).Aggregate(context.Background(), parallel.From(lines, 2))
	if !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("err=%v want ErrMalformedRow", err)
	}
	var re *RowError
	if !errors.As(err, &re) {
		t.Fatalf("err=%v is not a *RowError", err)
	}
	if re.TileID != 9 || re.Row != "a\tbroken" {
		t.Fatalf("row error = %+v", re)
	}
	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("parse cause lost: %v", err)
	}
}

func TestAggregate_InsufficientFields(t *testing.T) {
	lines := []model.TileLines{{TileID: 2, Rows: []string{"0.4"}}}
	_, err := newAgg(t, model.Dice).Aggregate(context.Background(), parallel.From(lines, 1))
	if !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("err=%v want ErrMalformedRow", err)
	}
}

func TestAverages_SortedByTile(t *testing.T) {
	lines := []model.TileLines{
		{TileID: 30, Rows: []string{"0.3\tx"}},
		{TileID: 10, Rows: []string{"0.1\tx"}},
		{TileID: 20, Rows: []string{"0.2\tx"}},
	}
	got, err := newAgg(t, model.Dice).Averages(context.Background(), parallel.From(lines, 3))
	if err != nil {
		t.Fatal(err)
	}
	want := []model.TileAverage{{TileID: 10, Average: 0.1}, {TileID: 20, Average: 0.2}, {TileID: 30, Average: 0.3}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}
