package extract

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

type geoJSONRecord struct{ raw string }

func (r geoJSONRecord) RecordID() string { return "geojson" }

func newTestExtractor(buf *bytes.Buffer) *Extractor {
	return New(slog.New(slog.NewTextHandler(buf, nil)))
}

func TestExtract_WKT(t *testing.T) {
	e := New(nil)
	got, err := e.Extract(model.TextRecord{ID: "p1", WKT: "POLYGON((1 2, 5 2, 5 8, 1 8, 1 2))"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := model.BoundingBox{MinX: 1, MinY: 2, MaxX: 5, MaxY: 8, Count: 1}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestExtract_WKB(t *testing.T) {
	poly := orb.Polygon{{{-3, 4}, {7, 4}, {7, 9}, {-3, 9}, {-3, 4}}}
	b, err := wkb.Marshal(poly)
	if err != nil {
		t.Fatalf("wkb marshal: %v", err)
	}
	got, err := New(nil).Extract(model.BinaryRecord{ID: "b1", WKB: b})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := model.BoundingBox{MinX: -3, MinY: 4, MaxX: 7, MaxY: 9, Count: 1}
	if got != want {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestExtract_DecodeFailureIsAbsorbed(t *testing.T) {
	var logs bytes.Buffer
	e := newTestExtractor(&logs)

	for _, rec := range []model.Record{
		model.TextRecord{ID: "bad-wkt", WKT: "POLYGON((0 0, 1"},
		model.BinaryRecord{ID: "bad-wkb", WKB: []byte{0x01, 0x02}},
	} {
		got, err := e.Extract(rec)
		if err != nil {
			t.Fatalf("%s: decode failure must not propagate: %v", rec.RecordID(), err)
		}
		if !got.IsEmpty() || got.Count != 1 {
			t.Fatalf("%s: got %+v want sentinel", rec.RecordID(), got)
		}
	}
	if !strings.Contains(logs.String(), "bad-wkt") || !strings.Contains(logs.String(), "bad-wkb") {
		t.Fatalf("decode failures should be logged with record ids:\n%s", logs.String())
	}
}

func TestExtract_UnsupportedRecordIsFatal(t *testing.T) {
	e := New(nil)
	if _, err := e.Extract(geoJSONRecord{raw: `{"type":"Point"}`}); !errors.Is(err, ErrUnsupportedRecord) {
		t.Fatalf("err=%v want ErrUnsupportedRecord", err)
	}
	if _, err := e.Extract(nil); !errors.Is(err, ErrUnsupportedRecord) {
		t.Fatalf("nil record: err=%v want ErrUnsupportedRecord", err)
	}
}

func TestEnvelope_NoCoordinates(t *testing.T) {
	for _, g := range []orb.Geometry{nil, orb.Polygon{}, orb.Collection{}, orb.MultiPoint{}} {
		if _, ok := envelope(g); ok {
			t.Fatalf("%T: expected no envelope", g)
		}
	}
}

func TestExtractAll_AbortsOnUnsupported(t *testing.T) {
	recs := []model.Record{
		model.TextRecord{ID: "a", WKT: "POINT(1 1)"},
		geoJSONRecord{},
		model.TextRecord{ID: "c", WKT: "POINT(2 2)"},
	}
	_, err := New(nil).ExtractAll(context.Background(), parallel.From(recs, 2), parallel.Options{})
	if !errors.Is(err, ErrUnsupportedRecord) {
		t.Fatalf("err=%v want ErrUnsupportedRecord", err)
	}
}

func TestExtractAll_PreservesOrder(t *testing.T) {
	recs := []model.Record{
		model.TextRecord{ID: "a", WKT: "POINT(1 1)"},
		model.TextRecord{ID: "b", WKT: "LINESTRING(0 0, 3 4)"},
		model.TextRecord{ID: "c", WKT: "nonsense"},
	}
	out, err := New(nil).ExtractAll(context.Background(), parallel.From(recs, 3), parallel.Options{})
	if err != nil {
		t.Fatal(err)
	}
	got := out.Collect()
	if len(got) != 3 {
		t.Fatalf("len=%d want 3", len(got))
	}
	if got[1] != (model.BoundingBox{MinX: 0, MinY: 0, MaxX: 3, MaxY: 4, Count: 1}) {
		t.Fatalf("linestring box=%+v", got[1])
	}
	if !got[2].IsEmpty() {
		t.Fatalf("bad record should be sentinel: %+v", got[2])
	}
}
