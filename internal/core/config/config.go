// Package config loads service configuration from the environment.
package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/spatial-heatmap/internal/core/model"
)

type SpaceCacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
}

type JobsCfg struct {
	Enabled      bool
	Brokers      []string
	Topic        string
	GroupID      string
	ResultsTopic string
	ResultsQueue int
	DedupeSize   int
}

// InvalidationCfg drives the consumer that evicts cached Spaces when a
// dataset changes. It shares the job brokers. GroupID must differ per
// replica; the default is suffixed with the host name.
type InvalidationCfg struct {
	Enabled bool
	Topic   string
	GroupID string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int

	Workers    int
	Partitions int
	ScoreKind  model.ScoreKind
	GeomIndex  int

	SpaceCache   SpaceCacheCfg
	Jobs         JobsCfg
	Invalidation InvalidationCfg
	Metrics      MetricsCfg
}

func FromEnv() Config {
	workers := getint("WORKERS", runtime.GOMAXPROCS(0))
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	partitions := getint("PARTITIONS", workers)
	if partitions <= 0 {
		partitions = workers
	}

	kind, err := model.ParseScoreKind(getenv("SCORE_KIND", "jaccard"))
	if err != nil {
		kind = model.Jaccard
	}

	geomIndex := getint("GEOM_INDEX", 1)
	if geomIndex < 0 {
		geomIndex = 1
	}

	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),

		Workers:    workers,
		Partitions: partitions,
		ScoreKind:  kind,
		GeomIndex:  geomIndex,

		SpaceCache: SpaceCacheCfg{
			Enabled:   getbool("SPACE_CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("SPACE_CACHE_TTL", 24*time.Hour),
			LRUSize:   getint("SPACE_CACHE_LRU_SIZE", 1024),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Jobs: JobsCfg{
			Enabled:      getbool("JOBS_ENABLED", false),
			Brokers:      split(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:        getenv("KAFKA_JOBS_TOPIC", "heatmap-jobs"),
			GroupID:      getenv("KAFKA_GROUP_ID", "heatmap-workers"),
			ResultsTopic: getenv("KAFKA_RESULTS_TOPIC", "heatmap-results"),
			ResultsQueue: getint("RESULTS_QUEUE", 256),
			DedupeSize:   getint("JOBS_DEDUPE_SIZE", 8192),
		},
		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Topic:   getenv("KAFKA_INVALIDATION_TOPIC", "dataset-invalidation"),
			GroupID: getenv("KAFKA_INVALIDATION_GROUP", instanceGroup("heatmap-space-invalidator")),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// instanceGroup suffixes prefix with the host name so every replica joins
// its own consumer group and sees every event.
func instanceGroup(prefix string) string {
	host, err := os.Hostname()
	if err != nil || strings.TrimSpace(host) == "" {
		return prefix + "-" + strconv.Itoa(os.Getpid())
	}
	return prefix + "-" + strings.TrimSpace(host)
}

// split a comma separated list, dropping blanks
func split(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if x := strings.TrimSpace(p); x != "" {
			out = append(out, x)
		}
	}
	return out
}
