package heatmap

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/dataset"
	"github.com/mohammed-shakir/spatial-heatmap/internal/logger"
)

// Task compares every pair of datasets (typically the outputs of different
// segmentation algorithms for one case).
type Task struct {
	CaseID    string
	Datasets  []*dataset.Dataset
	Predicate model.Predicate
	Kind      model.ScoreKind
}

type PairResult struct {
	Left    string                `json:"left"`
	Right   string                `json:"right"`
	Stats   []model.TileStatistic `json:"stats,omitempty"`
	Skipped bool                  `json:"skipped,omitempty"`
	Reason  string                `json:"reason,omitempty"`
}

// Pairs lists every unordered index pair (i, j) with i < j < n.
func Pairs(n int) [][2]int {
	if n < 2 {
		return nil
	}
	out := make([][2]int, 0, n*(n-1)/2)
	for i := range n {
		for j := i + 1; j < n; j++ {
			out = append(out, [2]int{i, j})
		}
	}
	return out
}

// RunTask prepares all datasets concurrently and then runs the pipeline
// once per pair. A dataset that fails to prepare or holds no valid objects
// causes its pairs to be skipped; a failing pair aborts the task.
func (p *Pipeline) RunTask(ctx context.Context, t Task, prep *dataset.Preparer) ([]PairResult, error) {
	if p.joiner == nil {
		return nil, ErrNoJoiner
	}
	if !t.Kind.Valid() {
		return nil, fmt.Errorf("task %s: invalid score kind %d", t.CaseID, int(t.Kind))
	}
	if prep == nil {
		prep = dataset.NewPreparer(dataset.Options{Logger: p.log, Parallel: p.opts, Partitions: p.partitions})
	}
	ctx = logger.WithCaseID(ctx, t.CaseID)

	prepErrs := make([]error, len(t.Datasets))
	g, gctx := errgroup.WithContext(ctx)
	if p.opts.Workers > 0 {
		g.SetLimit(p.opts.Workers)
	}
	for i, d := range t.Datasets {
		g.Go(func() error {
			prepErrs[i] = prep.Prepare(gctx, d)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var results []PairResult
	for _, ij := range Pairs(len(t.Datasets)) {
		a, b := t.Datasets[ij[0]], t.Datasets[ij[1]]
		res := PairResult{Left: a.ID, Right: b.ID}

		if reason := unusable(a, prepErrs[ij[0]], b, prepErrs[ij[1]]); reason != "" {
			p.log.WarnContext(ctx, "skipping dataset pair", "left", a.ID, "right", b.ID, "reason", reason)
			res.Skipped, res.Reason = true, reason
			results = append(results, res)
			continue
		}

		stats, err := p.Run(ctx, a, b, t.Predicate, t.Kind)
		if err != nil {
			return results, fmt.Errorf("task %s pair %s/%s: %w", t.CaseID, a.ID, b.ID, err)
		}
		res.Stats = stats
		results = append(results, res)
		p.log.InfoContext(ctx, "heatmap generated", "left", a.ID, "right", b.ID, "tiles", len(stats))
	}
	return results, nil
}

func unusable(a *dataset.Dataset, aErr error, b *dataset.Dataset, bErr error) string {
	if err := errors.Join(aErr, bErr); err != nil {
		return "prepare failed: " + err.Error()
	}
	for _, d := range []*dataset.Dataset{a, b} {
		if !d.Prepared() || d.Space.IsEmpty() {
			return fmt.Sprintf("dataset %s has no valid objects", d.ID)
		}
	}
	return ""
}
