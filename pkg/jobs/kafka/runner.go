// Package kafka consumes heatmap scoring jobs from a Kafka consumer group.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/heatmap"
	"github.com/mohammed-shakir/spatial-heatmap/internal/logger"
	"github.com/mohammed-shakir/spatial-heatmap/internal/resultevents"
)

type Scorer interface {
	Score(ctx context.Context, table *heatmap.PartitionTable, lines []model.TileLines, kind model.ScoreKind) ([]model.TileStatistic, error)
}

// ResultSink receives one event per scored or failed job.
type ResultSink interface {
	Publish(ev resultevents.Event) bool
}

type Runner struct {
	log      *slog.Logger
	cfg      RunnerConfig
	scorer   Scorer
	sink     ResultSink
	ms       *metricSet
	jobs     *jobDedupe
	assigned atomic.Bool
	assignMu sync.RWMutex
	assign   map[int32]struct{}
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

type Options struct {
	Logger   *slog.Logger
	Register prometheus.Registerer
	Sink     ResultSink
}

func New(cfg RunnerConfig, s Scorer, opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		log:    opts.Logger,
		cfg:    cfg,
		scorer: s,
		sink:   opts.Sink,
		ms:     newMetricSet(opts.Register),
		jobs:   newJobDedupe(cfg.DedupeSize),
		assign: map[int32]struct{}{},
	}
}

func (r *Runner) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		r.log.Info("job runner disabled")
		return nil
	}
	if r.scorer == nil {
		return errors.New("kafka runner: scorer dependency is required")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = r.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = r.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = r.cfg.RebalanceTimeout
	if r.cfg.InitialOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(r.cfg.Brokers, r.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   r.onAssign,
		cleanup: func(sarama.ConsumerGroupSession) { r.onRevoke() },
		process: r.handleMessage,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				r.log.Error("kafka consumer group close", "err", err)
			}
		}()

		for {
			if err := group.Consume(ctx, []string{r.cfg.Topic}, h); err != nil {
				r.log.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for err := range group.Errors() {
			r.log.Error("kafka group error", "err", err)
		}
	}()

	r.log.Info("kafka job runner started",
		"topic", r.cfg.Topic, "group", r.cfg.GroupID, "brokers", r.cfg.Brokers)
	return nil
}

func (r *Runner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.log.Info("kafka job runner stopped")
}

func (r *Runner) onAssign(sess sarama.ConsumerGroupSession) {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(true)
	r.assign = map[int32]struct{}{}
	for _, parts := range sess.Claims() {
		for _, p := range parts {
			r.assign[p] = struct{}{}
		}
	}
}

func (r *Runner) onRevoke() {
	r.assignMu.Lock()
	defer r.assignMu.Unlock()
	r.assigned.Store(false)
	r.assign = map[int32]struct{}{}
}

// Readiness reports whether the group session currently owns partitions.
func (r *Runner) Readiness() (ready bool, partitions []int32) {
	if !r.assigned.Load() {
		return false, nil
	}
	r.assignMu.RLock()
	defer r.assignMu.RUnlock()
	for p := range r.assign {
		partitions = append(partitions, p)
	}
	return true, partitions
}

// handleMessage scores one job. Undecodable or invalid jobs are logged and
// skipped so they cannot stall the partition; only cancellation is returned
// as an error, leaving the offset unmarked for redelivery.
func (r *Runner) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	if !msg.Timestamp.IsZero() {
		r.ms.lagGauge.Set(time.Since(msg.Timestamp).Seconds())
	}

	var job ScoreJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		r.ms.msgs.WithLabelValues("invalid").Inc()
		r.log.WarnContext(ctx, "skipping undecodable job",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := job.Validate(); err != nil {
		r.ms.msgs.WithLabelValues("invalid").Inc()
		r.log.WarnContext(ctx, "skipping invalid job",
			"partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if r.jobs.seen(job.JobID) {
		r.ms.msgs.WithLabelValues("duplicate").Inc()
		return nil
	}

	ctx = logger.WithCaseID(logger.WithJobID(ctx, job.JobID), job.CaseID)
	stats, err := r.score(ctx, job)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	ev := resultevents.Event{JobID: job.JobID, CaseID: job.CaseID, Kind: job.Kind.String(), TS: time.Now().UTC()}
	if err != nil {
		r.ms.msgs.WithLabelValues("error").Inc()
		r.log.ErrorContext(ctx, "job failed", "err", err)
		ev.Error = err.Error()
	} else {
		r.ms.msgs.WithLabelValues("ok").Inc()
		r.log.InfoContext(ctx, "job scored", "tiles", len(stats), "duration", time.Since(start))
		ev.Stats = stats
	}
	if r.sink != nil {
		r.sink.Publish(ev)
	}
	r.jobs.done(job.JobID)
	r.ms.proc.WithLabelValues(job.Kind.String()).Observe(time.Since(start).Seconds())
	return nil
}

func (r *Runner) score(ctx context.Context, job ScoreJob) ([]model.TileStatistic, error) {
	table, err := heatmap.NewPartitionTable(job.Tiles)
	if err != nil {
		return nil, err
	}
	return r.scorer.Score(ctx, table, job.Lines, job.Kind)
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := h.process(ctx, msg); err != nil {
				return fmt.Errorf("process (topic=%s, part=%d, off=%d): %w",
					msg.Topic, msg.Partition, msg.Offset, err)
			}
			sess.MarkMessage(msg, "")
		}
	}
}
