package config

import "time"

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "myuser",
	Pass: "mypassword",
	Name: "dispatch_db",
}

var defaultKafka = Kafka{
	Brokers:     []string{"localhost:9092"},
	GroupID:     "courier-dispatch",
	OrdersTopic: "orders",
}

var defaultDispatch = Dispatch{
	MaxDistanceKm:           20,
	MinRating:               3.5,
	AcceptanceTimeout:       30 * time.Second,
	MaxReassignmentAttempts: 3,
	NoCandidateRetryDelay:   20 * time.Second,
	MaxNoCandidateRetries:   5,
	OfferSweepInterval:      10 * time.Second,
	RecentWindow:            2 * time.Hour,
}

var defaultTracking = Tracking{
	PingInterval:             30 * time.Second,
	ETARefreshInterval:       60 * time.Second,
	ETARefreshDistanceMeters: 500,
}

var defaultNotify = Notify{
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
	MaxDelay:    time.Second,
}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       5,
	Burst:      10,
	TTL:        time.Minute,
	MaxBuckets: 10000,
}

var defaultPprof = Pprof{
	Addr: "127.0.0.1:6060",
}

var defaultLog = Log{
	Env:   "production",
	Level: "info",
}

// Defaults returns a Config with every default applied.
func Defaults() Config {
	return Config{
		Port:      defaultPort,
		Storage:   StoragePostgres,
		DB:        defaultDB,
		Kafka:     DefaultKafka(),
		Dispatch:  defaultDispatch,
		Tracking:  defaultTracking,
		Notify:    defaultNotify,
		RateLimit: defaultRateLimit,
		Pprof:     defaultPprof,
		Log:       defaultLog,
	}
}

// DefaultPort returns the default port.
func DefaultPort() int {
	return defaultPort
}

// DefaultDB returns the default database settings.
func DefaultDB() DB {
	return defaultDB
}

// DefaultKafka returns the default kafka settings.
func DefaultKafka() Kafka {
	k := defaultKafka
	k.Brokers = append([]string(nil), defaultKafka.Brokers...)
	return k
}

// DefaultDispatch returns the default assignment policy.
func DefaultDispatch() Dispatch {
	return defaultDispatch
}

// DefaultTracking returns the default tracking policy.
func DefaultTracking() Tracking {
	return defaultTracking
}

// DefaultNotify returns the default notification retry settings.
func DefaultNotify() Notify {
	return defaultNotify
}
