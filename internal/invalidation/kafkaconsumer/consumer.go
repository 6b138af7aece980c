// Package kafkaconsumer applies dataset invalidation events from Kafka to the
// Space cache.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	obs "github.com/mohammed-shakir/spatial-heatmap/internal/core/observability"
	"github.com/mohammed-shakir/spatial-heatmap/internal/invalidation"
	mylog "github.com/mohammed-shakir/spatial-heatmap/internal/logger"
)

// Invalidator drops cached state for the given dataset ids.
type Invalidator interface {
	Invalidate(ctx context.Context, datasetIDs ...string) error
}

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	zlog   *zerolog.Logger
	target Invalidator
}

// New builds a Consumer. zl receives the per-event audit records; nil
// disables them.
func New(cfg Config, logger *slog.Logger, zl *zerolog.Logger, target Invalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if zl == nil {
		nop := zerolog.Nop()
		zl = &nop
	}
	child := zl.With().Str("component", "space_invalidation").Logger()
	return &Consumer{cfg: cfg, logger: logger, zlog: &child, target: target}
}

// Start consumes until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing invalidation target")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info("space invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.logger.Error("consumer error", "err", err)
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("space invalidation consumer shutting down")
			return nil
		}
	}
}

// ProcessOne applies a single message. Undecodable or invalid events are
// logged and skipped; a failed eviction is returned so the message is
// retried.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	zl := mylog.FromContext(ctx, c.zlog)

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncInvalidationSkipped("decode")
		zl.Warn().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("undecodable invalidation event")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncInvalidationSkipped("invalid")
		zl.Warn().Err(err).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("invalid invalidation event")
		return nil
	}

	ids := ev.IDs()
	if err := c.target.Invalidate(ctx, ids...); err != nil {
		obs.ObserveInvalidation(ev.Op, time.Since(start).Seconds(), err)
		zl.Error().Err(err).
			Str("op", ev.Op).
			Strs("datasets", ids).
			Msg("space invalidation failed")
		return fmt.Errorf("invalidate %v: %w", ids, err)
	}

	obs.ObserveInvalidation(ev.Op, time.Since(start).Seconds(), nil)
	zl.Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Strs("datasets", ids).
		Str("source", ev.Source).
		Msg("invalidated spaces")
	return nil
}
