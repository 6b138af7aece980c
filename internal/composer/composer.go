// Package composer renders ranked tile statistics in the negotiated output
// format.
package composer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

type Format int

const (
	FormatJSON Format = iota
	FormatGeoJSON
)

const (
	contentTypeJSON    = "application/json"
	contentTypeGeoJSON = "application/geo+json"
)

func (f Format) String() string {
	if f == FormatGeoJSON {
		return "geojson"
	}
	return "json"
}

type NegotiationInput struct {
	AcceptHeader string
	// OutputFormat is an explicit override (query parameter) and wins over
	// the Accept header.
	OutputFormat  string
	DefaultFormat Format
}

type Negotiation struct {
	Format      Format
	ContentType string
}

func negotiation(f Format) Negotiation {
	if f == FormatGeoJSON {
		return Negotiation{Format: FormatGeoJSON, ContentType: contentTypeGeoJSON}
	}
	return Negotiation{Format: FormatJSON, ContentType: contentTypeJSON}
}

// NegotiateFormat determines the output format and content type
func NegotiateFormat(in NegotiationInput) Negotiation {
	of := strings.ToLower(strings.TrimSpace(in.OutputFormat))
	switch {
	case of == "geojson", strings.Contains(of, "geo+json"):
		return negotiation(FormatGeoJSON)
	case of == "json", strings.HasPrefix(of, contentTypeJSON):
		return negotiation(FormatJSON)
	}

	bestQ := -1.0
	best := Negotiation{}
	for part := range strings.SplitSeq(strings.ToLower(in.AcceptHeader), ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		mt, params, _ := strings.Cut(token, ";")
		mt = strings.TrimSpace(mt)
		q := 1.0
		for p := range strings.SplitSeq(params, ";") {
			if after, ok := strings.CutPrefix(strings.TrimSpace(p), "q="); ok {
				if v, err := strconv.ParseFloat(after, 64); err == nil {
					q = v
				}
			}
		}

		var cand Negotiation
		switch {
		case mt == "*/*":
			cand = negotiation(in.DefaultFormat)
		case strings.Contains(mt, "geo+json"):
			cand = negotiation(FormatGeoJSON)
		case mt == contentTypeJSON:
			cand = negotiation(FormatJSON)
		default:
			continue
		}
		if q > bestQ {
			bestQ = q
			best = cand
		}
	}
	if bestQ >= 0 {
		return best
	}
	return negotiation(in.DefaultFormat)
}

// FeatureCollection turns ranked statistics into polygon features, one per
// tile, in rank order. Each feature carries tile_id, rank, statistic and kind.
func FeatureCollection(stats []model.TileStatistic) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, s := range stats {
		b := orb.Bound{
			Min: orb.Point{s.MinX, s.MinY},
			Max: orb.Point{s.MaxX, s.MaxY},
		}
		f := geojson.NewFeature(b.ToPolygon())
		f.ID = s.TileID
		f.Properties["tile_id"] = s.TileID
		f.Properties["rank"] = i + 1
		f.Properties["statistic"] = s.Statistic
		f.Properties["kind"] = s.Kind
		fc.Append(f)
	}
	return fc
}

type listing struct {
	Kind  string                `json:"kind"`
	Stats []model.TileStatistic `json:"stats"`
}

type Result struct {
	Body        []byte
	ContentType string
	Format      Format
}

// Compose encodes stats for the negotiated format.
func Compose(kind model.ScoreKind, stats []model.TileStatistic, neg Negotiation) (Result, error) {
	if stats == nil {
		stats = []model.TileStatistic{}
	}
	var (
		body []byte
		err  error
	)
	switch neg.Format {
	case FormatGeoJSON:
		body, err = FeatureCollection(stats).MarshalJSON()
	case FormatJSON:
		body, err = json.Marshal(listing{Kind: kind.String(), Stats: stats})
	default:
		return Result{}, fmt.Errorf("unsupported format %d", neg.Format)
	}
	if err != nil {
		return Result{}, fmt.Errorf("encode %s: %w", neg.Format, err)
	}
	return Result{Body: body, ContentType: neg.ContentType, Format: neg.Format}, nil
}
