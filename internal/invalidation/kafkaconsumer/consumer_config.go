package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
}

// FromConfig builds the consumer config; brokers come from the job intake
// settings.
func FromConfig(inv config.InvalidationCfg, jobs config.JobsCfg) Config {
	return Config{
		Brokers:             jobs.Brokers,
		Topic:               inv.Topic,
		GroupID:             inv.GroupID,
		SessionTimeout:      30 * time.Second,
		Heartbeat:           3 * time.Second,
		RebalanceTimeout:    30 * time.Second,
		InitialOffsetOldest: true,
	}
}
