// Package extract computes the minimum bounding box of WKT and WKB records.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

// ErrUnsupportedRecord is returned for a record that is neither a
// TextRecord nor a BinaryRecord. It aborts the unit of work.
var ErrUnsupportedRecord = errors.New("unsupported spatial record type")

type Extractor struct {
	log *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{log: logger}
}

// Extract returns the envelope of rec with Count 1. A record whose geometry
// cannot be decoded, or has no coordinates, yields model.EmptyBox() and a
// nil error so that one bad record does not fail the dataset.
func (e *Extractor) Extract(rec model.Record) (model.BoundingBox, error) {
	var (
		g        orb.Geometry
		err      error
		encoding string
	)
	switch r := rec.(type) {
	case model.TextRecord:
		encoding = "wkt"
		g, err = wkt.Unmarshal(r.WKT)
	case model.BinaryRecord:
		encoding = "wkb"
		g, err = wkb.Unmarshal(r.WKB)
	default:
		return model.BoundingBox{}, fmt.Errorf("%w: %T", ErrUnsupportedRecord, rec)
	}

	if err != nil {
		observability.IncExtract(encoding, "decode_error")
		e.log.Warn("geometry decode failed; substituting empty box",
			"record", rec.RecordID(),
			"encoding", encoding,
			"err", err)
		return model.EmptyBox(), nil
	}

	box, ok := envelope(g)
	if !ok {
		observability.IncExtract(encoding, "empty")
		return model.EmptyBox(), nil
	}
	observability.IncExtract(encoding, "ok")
	return box, nil
}

// ExtractAll maps every record of c to its bounding box.
func (e *Extractor) ExtractAll(ctx context.Context, c *parallel.Collection[model.Record], opts parallel.Options) (*parallel.Collection[model.BoundingBox], error) {
	out, err := parallel.Map(ctx, c, opts, e.Extract)
	if err != nil {
		return nil, fmt.Errorf("extract bounding boxes: %w", err)
	}
	return out, nil
}

func envelope(g orb.Geometry) (model.BoundingBox, bool) {
	if g == nil {
		return model.BoundingBox{}, false
	}
	b := g.Bound()
	// orb reports the bound of a geometry without points as min > max
	if b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return model.BoundingBox{}, false
	}
	return model.BoundingBox{
		MinX:  b.Min[0],
		MinY:  b.Min[1],
		MaxX:  b.Max[0],
		MaxY:  b.Max[1],
		Count: 1,
	}, true
}
