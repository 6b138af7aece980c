package kafka

import (
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/config"
)

type RunnerConfig struct {
	Enabled bool

	Brokers []string
	Topic   string
	GroupID string

	SessionTimeout   time.Duration
	Heartbeat        time.Duration
	RebalanceTimeout time.Duration
	InitialOldest    bool

	DedupeSize int
}

func FromConfig(c config.JobsCfg) RunnerConfig {
	return RunnerConfig{
		Enabled:          c.Enabled,
		Brokers:          c.Brokers,
		Topic:            c.Topic,
		GroupID:          c.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		InitialOldest:    true,
		DedupeSize:       c.DedupeSize,
	}
}
