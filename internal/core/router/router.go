// Package router decodes HTTP requests into pipeline calls.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/spatial-heatmap/internal/aggregate/tilescore"
	"github.com/mohammed-shakir/spatial-heatmap/internal/composer"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/config"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/dataset"
	"github.com/mohammed-shakir/spatial-heatmap/internal/heatmap"
	"github.com/mohammed-shakir/spatial-heatmap/internal/parallel"
)

const maxBodyBytes = 64 << 20

// SpaceLookup reads previously computed extents.
type SpaceLookup interface {
	GetMany(ctx context.Context, datasetIDs []string) (map[string]model.Space, error)
}

type Scorer interface {
	Score(ctx context.Context, table *heatmap.PartitionTable, lines []model.TileLines, kind model.ScoreKind) ([]model.TileStatistic, error)
}

type Handlers struct {
	log       *slog.Logger
	prep      *dataset.Preparer
	spaces    SpaceLookup
	scorer    Scorer
	kind      model.ScoreKind
	geomIndex int
}

// New wires the handlers; spaces may be nil when no cache is configured.
func New(logger *slog.Logger, cfg config.Config, prep *dataset.Preparer, spaces SpaceLookup, scorer Scorer) *Handlers {
	return &Handlers{
		log:       logger,
		prep:      prep,
		spaces:    spaces,
		scorer:    scorer,
		kind:      cfg.ScoreKind,
		geomIndex: cfg.GeomIndex,
	}
}

type spaceRequest struct {
	Dataset string   `json:"dataset"`
	WKT     []string `json:"wkt,omitempty"`
	// Rows are tab-delimited records; the geometry column is geom_index.
	Rows      []string `json:"rows,omitempty"`
	GeomIndex *int     `json:"geom_index,omitempty"`
}

type spaceResponse struct {
	Dataset string        `json:"dataset"`
	Space   model.Space   `json:"space"`
	Stats   dataset.Stats `json:"stats"`
}

type heatmapRequest struct {
	Kind  string                `json:"kind"`
	Tiles []model.PartitionTile `json:"tiles"`
	Lines []model.TileLines     `json:"lines"`
}

func (h *Handlers) PrepareSpace(w http.ResponseWriter, r *http.Request) {
	var req spaceRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Dataset) == "" {
		writeError(w, http.StatusBadRequest, errors.New("missing required field: dataset"))
		return
	}

	var d *dataset.Dataset
	switch {
	case len(req.Rows) > 0:
		gi := h.geomIndex
		if req.GeomIndex != nil {
			gi = *req.GeomIndex
		}
		d = dataset.FromRows(req.Dataset, req.Rows, gi)
	default:
		recs := make([]model.Record, 0, len(req.WKT))
		for i, g := range req.WKT {
			recs = append(recs, model.TextRecord{ID: fmt.Sprintf("%s#%d", req.Dataset, i), WKT: g})
		}
		d = dataset.New(req.Dataset, recs)
	}

	if err := h.prep.Recompute(r.Context(), d); err != nil {
		h.log.ErrorContext(r.Context(), "prepare failed", "dataset", req.Dataset, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, spaceResponse{Dataset: d.ID, Space: d.Space, Stats: d.Stats})
}

// LookupSpaces serves GET /v1/space?dataset=a&dataset=b from the cache.
func (h *Handlers) LookupSpaces(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["dataset"]
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("missing required parameter: dataset"))
		return
	}
	if h.spaces == nil {
		writeError(w, http.StatusNotFound, errors.New("space cache disabled"))
		return
	}
	found, err := h.spaces.GetMany(r.Context(), ids)
	if err != nil {
		h.log.WarnContext(r.Context(), "space lookup degraded", "err", err)
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *Handlers) Heatmap(w http.ResponseWriter, r *http.Request) {
	var req heatmapRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	kind := h.kind
	if req.Kind != "" {
		k, err := model.ParseScoreKind(req.Kind)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		kind = k
	}
	table, err := heatmap.NewPartitionTable(req.Tiles)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := h.scorer.Score(r.Context(), table, req.Lines, kind)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tilescore.ErrMalformedRow) || errors.Is(err, parallel.ErrDuplicateKey) {
			status = http.StatusBadRequest
		}
		h.log.WarnContext(r.Context(), "heatmap scoring failed", "kind", kind.String(), "err", err)
		writeError(w, status, err)
		return
	}

	neg := composer.NegotiateFormat(composer.NegotiationInput{
		AcceptHeader:  r.Header.Get("Accept"),
		OutputFormat:  r.URL.Query().Get("f"),
		DefaultFormat: composer.FormatJSON,
	})
	res, err := composer.Compose(kind, stats, neg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Body)
}

// Observe wraps a handler with request metrics labelled by route.
func Observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
