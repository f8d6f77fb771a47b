// Package config loads process configuration from the environment, with an
// optional YAML file for matching tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration.
type Config struct {
	LogLevel string
	Server   Server
	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
	Matching Matching
}

// Server captures the ops HTTP server (/healthz, /metrics).
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// RedisConfig is empty-URL when Redis is not configured; the location
// store then falls back to memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	ConsumerGroup     string
	BootstrapTopics   bool
	Partitions        int32
	ReplicationFactor int16
	OutboxInterval    time.Duration
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Matching holds tunables for the matching core. Zero values mean "use the
// component default".
type Matching struct {
	StalenessThreshold      time.Duration            `yaml:"staleness_threshold"`
	CellDegrees             float64                  `yaml:"cell_degrees"`
	MinimumDonationInterval time.Duration            `yaml:"minimum_donation_interval"`
	MaxCandidates           int                      `yaml:"max_candidates"`
	Weights                 *Weights                 `yaml:"weights"`
	Policies                map[string]Policy        `yaml:"policies"`
	ResponseBudgets         map[string]time.Duration `yaml:"response_budgets"`
	SearchRetries           int                      `yaml:"search_retries"`
	SearchBackoff           time.Duration            `yaml:"search_backoff"`
	Retention               time.Duration            `yaml:"retention"`
}

type Weights struct {
	Distance      float64 `yaml:"distance"`
	Availability  float64 `yaml:"availability"`
	History       float64 `yaml:"history"`
	Compatibility float64 `yaml:"compatibility"`
	Urgency       float64 `yaml:"urgency"`
}

type Policy struct {
	InitialRadiusKm float64 `yaml:"initial_radius_km"`
	MaxRadiusKm     float64 `yaml:"max_radius_km"`
	ExpansionFactor float64 `yaml:"expansion_factor"`
	MaxSteps        int     `yaml:"max_steps"`
	MinPool         int     `yaml:"min_pool"`
}

// FromEnv builds the configuration from environment variables so main stays
// lean. MATCHING_CONFIG_FILE, when set, is read first and individual
// MATCHING_* variables override it.
func FromEnv() (Config, error) {
	var cfg Config
	var err error
	env := envReader{}

	cfg.LogLevel = env.str("LOG_LEVEL", "info")
	cfg.Server = Server{
		Addr:            env.str("HEMOLINK_ADDR", ":8080"),
		ShutdownTimeout: env.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     env.int("REDIS_POOL_SIZE", 10),
		MinIdleConns: env.int("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  env.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  env.duration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: env.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
	cfg.Postgres = PostgresConfig{
		DSN:             os.Getenv("DATABASE_URL"),
		MaxOpenConns:    env.int("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    env.int("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: env.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
	}
	cfg.Kafka = KafkaConfig{
		Brokers:           splitList(os.Getenv("KAFKA_BROKERS")),
		ClientID:          env.str("KAFKA_CLIENT_ID", "hemolink"),
		ConsumerGroup:     env.str("KAFKA_CONSUMER_GROUP", "hemolink-matching"),
		BootstrapTopics:   env.bool("KAFKA_BOOTSTRAP_TOPICS", true),
		Partitions:        int32(env.int("KAFKA_TOPIC_PARTITIONS", 6)),
		ReplicationFactor: int16(env.int("KAFKA_REPLICATION_FACTOR", 1)),
		OutboxInterval:    env.duration("OUTBOX_POLL_INTERVAL", time.Second),
	}

	if path := os.Getenv("MATCHING_CONFIG_FILE"); path != "" {
		if cfg.Matching, err = LoadMatchingFile(path); err != nil {
			return Config{}, err
		}
	}
	m := &cfg.Matching
	m.StalenessThreshold = env.duration("MATCHING_STALENESS_THRESHOLD", m.StalenessThreshold)
	m.CellDegrees = env.float("MATCHING_CELL_DEGREES", m.CellDegrees)
	m.MinimumDonationInterval = env.duration("MATCHING_MIN_DONATION_INTERVAL", m.MinimumDonationInterval)
	m.MaxCandidates = env.int("MATCHING_MAX_CANDIDATES", m.MaxCandidates)
	m.SearchRetries = env.int("MATCHING_SEARCH_RETRIES", m.SearchRetries)
	m.SearchBackoff = env.duration("MATCHING_SEARCH_BACKOFF", m.SearchBackoff)
	m.Retention = env.duration("MATCHING_RETENTION", m.Retention)

	if err := env.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadMatchingFile reads matching tunables from a YAML file.
func LoadMatchingFile(path string) (Matching, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matching{}, fmt.Errorf("read matching config: %w", err)
	}
	var m Matching
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Matching{}, fmt.Errorf("parse matching config %s: %w", path, err)
	}
	return m, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envReader collects the first parse error so FromEnv can report it once.
type envReader struct {
	first error
}

func (r *envReader) fail(key string, err error) {
	if r.first == nil {
		r.first = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *envReader) err() error {
	return r.first
}

func (r *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return d
}
