// Package dataset holds spatial input sets and derives their global Space.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/extract"
	"github.com/mohammed-shakir/spatial-heatmap/internal/logger"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
	"github.com/mohammed-shakir/spatial-heatmap/internal/space"
)

// DefaultGeomIndex selects the geometry column of "id<TAB>wkt" rows.
const DefaultGeomIndex = 1

type Stats struct {
	Records int64 `json:"records"`
	Valid   int64 `json:"valid"`
	Dropped int64 `json:"dropped"`
	Cached  bool  `json:"cached"`
}

// Dataset is one algorithm's output for one case. ID must identify the
// content: it is the Space cache key.
type Dataset struct {
	ID      string
	Records []model.Record
	// GeomIndex is the row column the geometries were read from; -1 when
	// records were supplied directly.
	GeomIndex int

	Space    model.Space
	Stats    Stats
	prepared bool
}

func New(id string, records []model.Record) *Dataset {
	return &Dataset{ID: id, Records: records, GeomIndex: -1}
}

// FromRows builds text records from tab-delimited rows, taking the WKT from
// column geomIndex (0-based) and the record id from column 0. A row too short
// to hold the geometry becomes a record with no geometry.
func FromRows(id string, rows []string, geomIndex int) *Dataset {
	if geomIndex < 0 {
		geomIndex = DefaultGeomIndex
	}
	recs := make([]model.Record, 0, len(rows))
	for i, row := range rows {
		fields := strings.Split(row, "\t")
		rec := model.TextRecord{ID: fmt.Sprintf("%s#%d", id, i)}
		if geomIndex > 0 && fields[0] != "" {
			rec.ID = fields[0]
		}
		if geomIndex < len(fields) {
			rec.WKT = strings.TrimSpace(fields[geomIndex])
		}
		recs = append(recs, rec)
	}
	d := New(id, recs)
	d.GeomIndex = geomIndex
	return d
}

func (d *Dataset) Prepared() bool { return d.prepared }

// SpaceCache stores reduced extents by dataset id.
type SpaceCache interface {
	Get(ctx context.Context, datasetID string) (model.Space, bool, error)
	Put(ctx context.Context, datasetID string, s model.Space) error
}

type Preparer struct {
	log        *slog.Logger
	ext        *extract.Extractor
	cache      SpaceCache
	opts       parallel.Options
	partitions int
}

type Options struct {
	Logger     *slog.Logger
	Cache      SpaceCache
	Parallel   parallel.Options
	Partitions int
}

func NewPreparer(opts Options) *Preparer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Partitions <= 0 {
		opts.Partitions = 1
	}
	return &Preparer{
		log:        opts.Logger,
		ext:        extract.New(opts.Logger),
		cache:      opts.Cache,
		opts:       opts.Parallel,
		partitions: opts.Partitions,
	}
}

// Prepare extracts bounding boxes, drops sentinels and reduces the rest
// into d.Space. A cached Space short-circuits extraction; cache errors are
// logged and otherwise ignored.
func (p *Preparer) Prepare(ctx context.Context, d *Dataset) error {
	return p.prepare(ctx, d, true)
}

// Recompute reduces d.Records without consulting the cache and stores the
// fresh Space under d.ID. Use it when the caller supplies the records.
func (p *Preparer) Recompute(ctx context.Context, d *Dataset) error {
	return p.prepare(ctx, d, false)
}

func (p *Preparer) prepare(ctx context.Context, d *Dataset, readCache bool) error {
	if d == nil {
		return errors.New("prepare: nil dataset")
	}
	ctx = logger.WithDataset(ctx, d.ID)
	start := time.Now()

	if readCache && p.cache != nil && d.ID != "" {
		s, ok, err := p.cache.Get(ctx, d.ID)
		switch {
		case err != nil:
			p.log.WarnContext(ctx, "space cache lookup failed", "err", err)
		case ok:
			d.Space = s
			d.Stats = Stats{Records: int64(len(d.Records)), Valid: s.ObjectCount, Cached: true}
			d.prepared = true
			p.log.DebugContext(ctx, "space served from cache", "objects", s.ObjectCount)
			return nil
		}
	}

	boxes, err := p.ext.ExtractAll(ctx, parallel.From(d.Records, p.partitions), p.opts)
	if err != nil {
		return fmt.Errorf("prepare %q: %w", d.ID, err)
	}
	s, err := space.Reduce(ctx, boxes, p.opts)
	if err != nil {
		return fmt.Errorf("prepare %q: %w", d.ID, err)
	}
	observability.ObserveStage("prepare", time.Since(start).Seconds())

	d.Space = s
	d.Stats = Stats{
		Records: int64(boxes.Len()),
		Valid:   s.ObjectCount,
		Dropped: int64(boxes.Len()) - s.ObjectCount,
	}
	d.prepared = true

	p.log.InfoContext(ctx, "dataset prepared",
		"records", d.Stats.Records,
		"valid", d.Stats.Valid,
		"dropped", d.Stats.Dropped,
		"space", s.String(),
		"duration", time.Since(start))

	if p.cache != nil && d.ID != "" && !s.IsEmpty() {
		if err := p.cache.Put(ctx, d.ID, s); err != nil {
			p.log.WarnContext(ctx, "space cache store failed", "err", err)
		}
	}
	return nil
}
