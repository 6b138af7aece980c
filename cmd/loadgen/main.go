package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
	"github.com/mohammed-shakir/spatial-heatmap/internal/invalidation"
	jobs "github.com/mohammed-shakir/spatial-heatmap/pkg/jobs/kafka"
)

type Config struct {
	Mode        string
	TargetURL   string
	Brokers     []string
	Topic       string
	Concurrency int
	Duration    time.Duration
	Jobs        int
	Datasets    []string
	Timeout     time.Duration
	Seed        int64
	Workload    Workload
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func loadConfig() (Config, error) {
	var (
		cfg      Config
		kind     string
		brokers  string
		datasets string
	)
	flag.StringVar(&cfg.Mode, "mode", "http", "http | kafka | invalidate")
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/v1/heatmap", "heatmap endpoint (http mode)")
	flag.StringVar(&brokers, "brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "kafka brokers")
	flag.StringVar(&cfg.Topic, "topic", "", "kafka topic (defaults per mode)")
	flag.IntVar(&cfg.Concurrency, "concurrency", 8, "concurrent http workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "http test duration")
	flag.IntVar(&cfg.Jobs, "jobs", 100, "jobs to produce (kafka mode)")
	flag.StringVar(&datasets, "datasets", "", "comma separated dataset ids (invalidate mode)")
	flag.DurationVar(&cfg.Timeout, "timeout", 10*time.Second, "per request timeout")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "random seed")
	flag.IntVar(&cfg.Workload.GridX, "grid-x", 32, "tiles along x")
	flag.IntVar(&cfg.Workload.GridY, "grid-y", 32, "tiles along y")
	flag.Float64Var(&cfg.Workload.Fill, "fill", 0.4, "fraction of tiles with matches")
	flag.IntVar(&cfg.Workload.MaxRows, "max-rows", 50, "max rows per tile")
	flag.IntVar(&cfg.Workload.ExtraFields, "extra-fields", 2, "filler fields per row")
	flag.StringVar(&kind, "kind", "jaccard", "score kind")
	flag.Parse()

	k, err := model.ParseScoreKind(kind)
	if err != nil {
		return cfg, err
	}
	cfg.Workload.Kind = k
	cfg.Brokers = splitCSV(brokers)
	cfg.Datasets = splitCSV(datasets)
	if cfg.Workload.GridX <= 0 || cfg.Workload.GridY <= 0 || cfg.Workload.MaxRows <= 0 {
		return cfg, fmt.Errorf("grid and max-rows must be positive")
	}
	if cfg.Topic == "" {
		cfg.Topic = getenv("KAFKA_JOBS_TOPIC", "heatmap-jobs")
		if cfg.Mode == "invalidate" {
			cfg.Topic = getenv("KAFKA_INVALIDATION_TOPIC", "dataset-invalidation")
		}
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case "http":
		err = runHTTP(ctx, cfg)
	case "kafka":
		err = runKafka(ctx, cfg)
	case "invalidate":
		err = runInvalidate(cfg)
	default:
		err = fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "loadgen:", err)
		os.Exit(1)
	}
}

type heatmapBody struct {
	Kind  model.ScoreKind       `json:"kind"`
	Tiles []model.PartitionTile `json:"tiles"`
	Lines []model.TileLines     `json:"lines"`
}

func runHTTP(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	client := &http.Client{Timeout: cfg.Timeout}
	tiles := cfg.Workload.Grid()

	var (
		mu   sync.Mutex
		lat  []time.Duration
		errs int
		wg   sync.WaitGroup
	)
	start := time.Now()
	for w := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(cfg.Seed + int64(w)))
			for ctx.Err() == nil {
				body, err := json.Marshal(heatmapBody{Kind: cfg.Workload.Kind, Tiles: tiles, Lines: cfg.Workload.Lines(r, tiles)})
				if err != nil {
					return
				}
				t0 := time.Now()
				err = post(ctx, client, cfg.TargetURL, body)
				d := time.Since(t0)
				if ctx.Err() != nil {
					return
				}
				mu.Lock()
				if err != nil {
					errs++
				} else {
					lat = append(lat, d)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return printJSON(summarize(lat, errs, time.Since(start)))
}

func post(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func newProducer(brokers []string) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return prod, nil
}

func runKafka(ctx context.Context, cfg Config) error {
	prod, err := newProducer(cfg.Brokers)
	if err != nil {
		return err
	}
	defer func() { _ = prod.Close() }()

	r := rand.New(rand.NewSource(cfg.Seed))
	tiles := cfg.Workload.Grid()
	caseID := fmt.Sprintf("loadgen-%d", cfg.Seed)

	var lat []time.Duration
	errs := 0
	start := time.Now()
	for i := range cfg.Jobs {
		if ctx.Err() != nil {
			break
		}
		job := jobs.ScoreJob{
			JobID:  fmt.Sprintf("%s-%06d", caseID, i),
			CaseID: caseID,
			Kind:   cfg.Workload.Kind,
			Tiles:  tiles,
			Lines:  cfg.Workload.Lines(r, tiles),
			TS:     time.Now().UTC(),
		}
		b, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("encode job: %w", err)
		}
		t0 := time.Now()
		_, _, err = prod.SendMessage(&sarama.ProducerMessage{
			Topic: cfg.Topic,
			Key:   sarama.StringEncoder(job.JobID),
			Value: sarama.ByteEncoder(b),
		})
		if err != nil {
			errs++
			continue
		}
		lat = append(lat, time.Since(t0))
	}
	return printJSON(summarize(lat, errs, time.Since(start)))
}

func runInvalidate(cfg Config) error {
	if len(cfg.Datasets) == 0 {
		return fmt.Errorf("invalidate mode needs -datasets")
	}
	ev := invalidation.Event{
		Version:  1,
		Op:       invalidation.OpUpdate,
		Datasets: cfg.Datasets,
		TS:       time.Now().UTC(),
		Source:   "loadgen",
	}
	if err := ev.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	prod, err := newProducer(cfg.Brokers)
	if err != nil {
		return err
	}
	defer func() { _ = prod.Close() }()

	part, off, err := prod.SendMessage(&sarama.ProducerMessage{Topic: cfg.Topic, Value: sarama.ByteEncoder(b)})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	fmt.Printf("invalidation sent: topic=%s partition=%d offset=%d datasets=%v\n", cfg.Topic, part, off, cfg.Datasets)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
