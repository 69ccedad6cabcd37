package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores settings shared by the HTTP service and the worker.
type Config struct {
	Port      int
	Storage   string
	DB        DB
	Redis     Redis
	Kafka     Kafka
	Maps      Maps
	Firebase  Firebase
	Dispatch  Dispatch
	Tracking  Tracking
	Notify    Notify
	RateLimit RateLimit
	Pprof     Pprof
	Log       Log
}

// DB is the postgres connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN builds a postgres connection string.
func (d DB) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Pass),
		Host:   d.Host + ":" + d.Port,
		Path:   d.Name,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	u.RawQuery = q.Encode()
	return u.String()
}

// Redis configures the position cache and the realtime broker.
// An empty URL selects in-process implementations.
type Redis struct {
	URL string
}

// Kafka configures the order events consumer.
type Kafka struct {
	Brokers     []string
	GroupID     string
	OrdersTopic string
}

// Maps configures the Google Maps geocoding and routing gateways.
type Maps struct {
	APIKey   string
	Region   string
	Language string
}

// Firebase configures push notifications.
type Firebase struct {
	ProjectID       string
	CredentialsFile string
}

// Dispatch is the assignment policy.
type Dispatch struct {
	MaxDistanceKm           float64
	MinRating               float64
	AcceptanceTimeout       time.Duration
	MaxReassignmentAttempts int
	NoCandidateRetryDelay   time.Duration
	MaxNoCandidateRetries   int
	OfferSweepInterval      time.Duration
	RecentWindow            time.Duration
}

// Tracking is the ping ingestion and ETA refresh policy.
type Tracking struct {
	PingInterval             time.Duration
	ETARefreshInterval       time.Duration
	ETARefreshDistanceMeters float64
}

// Notify configures bounded retries for notifications and publications.
type Notify struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RateLimit configures the HTTP token bucket limiter.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Pprof configures the debug server.
type Pprof struct {
	Enabled bool
	Addr    string
	User    string
	Pass    string
}

// Log configures the zap logger.
type Log struct {
	Env   string
	Level string
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := Defaults()
	r := &envReader{}

	cfg.Port = r.int("PORT", cfg.Port)
	cfg.Storage = r.str("STORAGE_DRIVER", cfg.Storage)

	cfg.DB.Host = r.str("POSTGRES_HOST", cfg.DB.Host)
	cfg.DB.Port = r.str("POSTGRES_PORT", cfg.DB.Port)
	cfg.DB.User = r.str("POSTGRES_USER", cfg.DB.User)
	cfg.DB.Pass = r.str("POSTGRES_PASSWORD", cfg.DB.Pass)
	cfg.DB.Name = r.str("POSTGRES_DB", cfg.DB.Name)

	cfg.Redis.URL = r.str("REDIS_URL", cfg.Redis.URL)

	cfg.Kafka.Brokers = r.list("KAFKA_BROKERS", cfg.Kafka.Brokers)
	cfg.Kafka.GroupID = r.str("KAFKA_GROUP_ID", cfg.Kafka.GroupID)
	cfg.Kafka.OrdersTopic = r.str("KAFKA_ORDERS_TOPIC", cfg.Kafka.OrdersTopic)

	cfg.Maps.APIKey = r.str("MAPS_API_KEY", cfg.Maps.APIKey)
	cfg.Maps.Region = r.str("MAPS_REGION", cfg.Maps.Region)
	cfg.Maps.Language = r.str("MAPS_LANGUAGE", cfg.Maps.Language)

	cfg.Firebase.ProjectID = r.str("FIREBASE_PROJECT_ID", cfg.Firebase.ProjectID)
	cfg.Firebase.CredentialsFile = r.str("FIREBASE_CREDENTIALS_FILE", cfg.Firebase.CredentialsFile)

	d := &cfg.Dispatch
	d.MaxDistanceKm = r.float("DISPATCH_MAX_DISTANCE_KM", d.MaxDistanceKm)
	d.MinRating = r.float("DISPATCH_MIN_RATING", d.MinRating)
	d.AcceptanceTimeout = r.seconds("DISPATCH_ACCEPTANCE_TIMEOUT_SECONDS", d.AcceptanceTimeout)
	d.MaxReassignmentAttempts = r.int("DISPATCH_MAX_REASSIGNMENT_ATTEMPTS", d.MaxReassignmentAttempts)
	d.NoCandidateRetryDelay = r.seconds("DISPATCH_NO_CANDIDATE_RETRY_SECONDS", d.NoCandidateRetryDelay)
	d.MaxNoCandidateRetries = r.int("DISPATCH_MAX_NO_CANDIDATE_RETRIES", d.MaxNoCandidateRetries)
	d.OfferSweepInterval = r.duration("DISPATCH_OFFER_SWEEP_INTERVAL", d.OfferSweepInterval)
	d.RecentWindow = r.duration("DISPATCH_RECENT_WINDOW", d.RecentWindow)

	t := &cfg.Tracking
	t.PingInterval = r.seconds("TRACKING_PING_INTERVAL_SECONDS", t.PingInterval)
	t.ETARefreshInterval = r.seconds("TRACKING_ETA_REFRESH_INTERVAL_SECONDS", t.ETARefreshInterval)
	t.ETARefreshDistanceMeters = r.float("TRACKING_ETA_REFRESH_DISTANCE_METERS", t.ETARefreshDistanceMeters)

	cfg.Notify.MaxAttempts = r.int("NOTIFY_MAX_ATTEMPTS", cfg.Notify.MaxAttempts)
	cfg.Notify.BaseDelay = r.duration("NOTIFY_BASE_DELAY", cfg.Notify.BaseDelay)
	cfg.Notify.MaxDelay = r.duration("NOTIFY_MAX_DELAY", cfg.Notify.MaxDelay)

	rl := &cfg.RateLimit
	rl.Enabled = r.bool("RATE_LIMIT_ENABLED", rl.Enabled)
	rl.Rate = r.float("RATE_LIMIT_RATE", rl.Rate)
	rl.Burst = r.int("RATE_LIMIT_BURST", rl.Burst)
	rl.TTL = r.duration("RATE_LIMIT_TTL", rl.TTL)
	rl.MaxBuckets = r.int("RATE_LIMIT_MAX_BUCKETS", rl.MaxBuckets)

	cfg.Pprof.Enabled = r.bool("PPROF_ENABLED", cfg.Pprof.Enabled)
	cfg.Pprof.Addr = r.str("PPROF_ADDR", cfg.Pprof.Addr)
	cfg.Pprof.User = r.str("PPROF_USER", cfg.Pprof.User)
	cfg.Pprof.Pass = r.str("PPROF_PASS", cfg.Pprof.Pass)

	cfg.Log.Env = r.str("LOG_ENV", cfg.Log.Env)
	cfg.Log.Level = r.str("LOG_LEVEL", cfg.Log.Level)

	if r.err != nil {
		return nil, r.err
	}

	fs := pflag.CommandLine
	fs.ParseErrorsWhitelist.UnknownFlags = true
	if fs.Lookup("port") == nil {
		fs.IntP("port", "p", cfg.Port, "port to listen on")
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if f := fs.Lookup("port"); f != nil && f.Changed {
		port, err := fs.GetInt("port")
		if err != nil {
			return nil, fmt.Errorf("parse flags: %w", err)
		}
		cfg.Port = port
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if _, err := strconv.Atoi(c.DB.Port); err != nil {
		return fmt.Errorf("invalid POSTGRES_PORT: %q", c.DB.Port)
	}
	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("invalid STORAGE_DRIVER: %q", c.Storage)
	}
	d := c.Dispatch
	if d.MaxDistanceKm <= 0 {
		return fmt.Errorf("invalid DISPATCH_MAX_DISTANCE_KM: %v", d.MaxDistanceKm)
	}
	if d.MinRating < 0 || d.MinRating > 5 {
		return fmt.Errorf("invalid DISPATCH_MIN_RATING: %v", d.MinRating)
	}
	if d.AcceptanceTimeout <= 0 {
		return fmt.Errorf("invalid DISPATCH_ACCEPTANCE_TIMEOUT_SECONDS: %v", d.AcceptanceTimeout)
	}
	if d.MaxReassignmentAttempts < 0 || d.MaxNoCandidateRetries < 0 {
		return fmt.Errorf("dispatch attempt limits must not be negative")
	}
	if c.Tracking.ETARefreshInterval <= 0 {
		return fmt.Errorf("invalid TRACKING_ETA_REFRESH_INTERVAL_SECONDS: %v", c.Tracking.ETARefreshInterval)
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("invalid NOTIFY_MAX_ATTEMPTS: %d", c.Notify.MaxAttempts)
	}
	return nil
}

// envReader collects the first parse error so Load can report it once.
type envReader struct{ err error }

func (r *envReader) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (r *envReader) fail(key, v string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (r *envReader) str(key, def string) string {
	if v, ok := r.lookup(key); ok {
		return v
	}
	return def
}

func (r *envReader) list(key string, def []string) []string {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *envReader) int(key string, def int) int {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return n
}

func (r *envReader) float(key string, def float64) float64 {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return f
}

func (r *envReader) bool(key string, def bool) bool {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return b
}

func (r *envReader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return d
}

func (r *envReader) seconds(key string, def time.Duration) time.Duration {
	v, ok := r.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, v, err)
		return def
	}
	return time.Duration(n) * time.Second
}
