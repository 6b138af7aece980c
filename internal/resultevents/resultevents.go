// Package resultevents publishes finished heatmaps to Kafka.
package resultevents

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

// Event is the result of one scoring job. Error is set instead of Stats
// when the job failed.
type Event struct {
	JobID  string                `json:"job_id"`
	CaseID string                `json:"case_id,omitempty"`
	Kind   string                `json:"kind"`
	Stats  []model.TileStatistic `json:"stats,omitempty"`
	Error  string                `json:"error,omitempty"`
	TS     time.Time             `json:"ts"`
}

type Options struct {
	Logger    *slog.Logger
	Register  prometheus.Registerer
	QueueSize int
}

type Publisher struct {
	topic   string
	log     *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	results *prometheus.CounterVec
	stopped chan struct{}
	errsOut chan struct{}
}

func NewPublisher(brokers []string, topic string, opts Options) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.Compression = sarama.CompressionSnappy

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("resultevents: create async producer: %w", err)
	}
	return newWithProducer(prod, topic, opts), nil
}

func newWithProducer(prod sarama.AsyncProducer, topic string, opts Options) *Publisher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &Publisher{
		topic:   topic,
		log:     opts.Logger,
		events:  make(chan Event, opts.QueueSize),
		prod:    prod,
		results: newResultCounter(opts.Register),
		stopped: make(chan struct{}),
		errsOut: make(chan struct{}),
	}
	go p.pump()
	go p.drainErrors()
	return p
}

func newResultCounter(r prometheus.Registerer) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_events_total",
			Help: "Heatmap result events by outcome (queued, dropped, encode_error, produce_error).",
		},
		[]string{"result"},
	)
	if r != nil {
		r.MustRegister(c)
	}
	return c
}

func (p *Publisher) pump() {
	defer close(p.stopped)
	for ev := range p.events {
		b, err := json.Marshal(ev)
		if err != nil {
			p.results.WithLabelValues("encode_error").Inc()
			p.log.Error("result event encode failed", "job_id", ev.JobID, "err", err)
			continue
		}
		p.prod.Input() <- &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(ev.JobID),
			Value: sarama.ByteEncoder(b),
		}
	}
}

func (p *Publisher) drainErrors() {
	defer close(p.errsOut)
	for err := range p.prod.Errors() {
		if err != nil {
			p.results.WithLabelValues("produce_error").Inc()
			p.log.Error("result event produce failed", "err", err)
		}
	}
}

// Publish enqueues ev without blocking. It reports false when the queue is
// full and the event was dropped.
func (p *Publisher) Publish(ev Event) bool {
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
		p.results.WithLabelValues("queued").Inc()
		return true
	default:
		p.results.WithLabelValues("dropped").Inc()
		p.log.Warn("result queue full; dropping event", "job_id", ev.JobID)
		return false
	}
}

// Close flushes queued events and closes the producer. Publish must not be
// called afterwards.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped
	err := p.prod.Close()
	<-p.errsOut
	if err != nil {
		return fmt.Errorf("resultevents: close producer: %w", err)
	}
	return nil
}
