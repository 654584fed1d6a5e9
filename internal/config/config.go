package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderGoogle = "google"
	ProviderMapbox = "mapbox"

	maxBatchSize = 1000
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	Provider          string
	GoogleAPIKey      string
	MapboxToken       string
	ProviderTimeout   time.Duration
	ProviderRateLimit float64
	ProviderBurst     int

	// DatabaseURL selects the SQL store; empty keeps everything in memory.
	DatabaseURL    string
	DBMaxOpenConns int

	Locale                string
	ProximityRadiusMeters float64

	AuditDelay           time.Duration
	AuditThresholdMeters float64

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaBrokers     []string
	KafkaQueryTopic  string
	KafkaResultTopic string
	KafkaDriftTopic  string
	KafkaGroupID     string

	BatchSize          int
	BatchFlushInterval time.Duration
}

var defaults = map[string]any{
	"GEOCODER_PROVIDER":       ProviderGoogle,
	"PROVIDER_TIMEOUT":        "5s",
	"PROVIDER_RATE_LIMIT":     10.0,
	"PROVIDER_BURST":          5,
	"DB_MAX_OPEN_CONNS":       20,
	"GEOCACHE_LOCALE":         "en",
	"PROXIMITY_RADIUS_METERS": 50.0,
	"AUDIT_DELAY":             "200ms",
	"AUDIT_THRESHOLD_METERS":  50.0,
	"HTTP_ADDR":               ":8080",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"SHUTDOWN_TIMEOUT":        "10s",
	"KAFKA_BROKERS":           "localhost:9092",
	"KAFKA_QUERY_TOPIC":       "geocode-queries",
	"KAFKA_RESULT_TOPIC":      "geocode-results",
	"KAFKA_DRIFT_TOPIC":       "geocode-drift",
	"KAFKA_GROUP_ID":          "geocache-warmer",
	"BATCH_SIZE":              50,
	"BATCH_FLUSH_INTERVAL":    "500ms",
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	providerTimeout, err := positiveDuration(v, "PROVIDER_TIMEOUT")
	if err != nil {
		return nil, err
	}
	auditDelay, err := duration(v, "AUDIT_DELAY")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := positiveDuration(v, "SHUTDOWN_TIMEOUT")
	if err != nil {
		return nil, err
	}
	flushInterval, err := positiveDuration(v, "BATCH_FLUSH_INTERVAL")
	if err != nil {
		return nil, err
	}

	rateLimit, err := positiveFloat(v, "PROVIDER_RATE_LIMIT")
	if err != nil {
		return nil, err
	}
	radius, err := positiveFloat(v, "PROXIMITY_RADIUS_METERS")
	if err != nil {
		return nil, err
	}
	threshold, err := positiveFloat(v, "AUDIT_THRESHOLD_METERS")
	if err != nil {
		return nil, err
	}

	burst, err := positiveInt(v, "PROVIDER_BURST")
	if err != nil {
		return nil, err
	}
	maxOpenConns, err := positiveInt(v, "DB_MAX_OPEN_CONNS")
	if err != nil {
		return nil, err
	}
	batchSize, err := positiveInt(v, "BATCH_SIZE")
	if err != nil {
		return nil, err
	}
	if batchSize > maxBatchSize {
		return nil, fmt.Errorf("invalid BATCH_SIZE: must be at most %d", maxBatchSize)
	}

	cfg := &Config{
		Provider:          strings.ToLower(strings.TrimSpace(v.GetString("GEOCODER_PROVIDER"))),
		GoogleAPIKey:      v.GetString("GOOGLE_MAPS_API_KEY"),
		MapboxToken:       v.GetString("MAPBOX_TOKEN"),
		ProviderTimeout:   providerTimeout,
		ProviderRateLimit: rateLimit,
		ProviderBurst:     burst,

		DatabaseURL:    v.GetString("DATABASE_URL"),
		DBMaxOpenConns: maxOpenConns,

		Locale:                strings.TrimSpace(v.GetString("GEOCACHE_LOCALE")),
		ProximityRadiusMeters: radius,

		AuditDelay:           auditDelay,
		AuditThresholdMeters: threshold,

		HTTPAddr:        v.GetString("HTTP_ADDR"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers:     parseBrokers(v.GetString("KAFKA_BROKERS")),
		KafkaQueryTopic:  v.GetString("KAFKA_QUERY_TOPIC"),
		KafkaResultTopic: v.GetString("KAFKA_RESULT_TOPIC"),
		KafkaDriftTopic:  v.GetString("KAFKA_DRIFT_TOPIC"),
		KafkaGroupID:     v.GetString("KAFKA_GROUP_ID"),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if cfg.Provider != ProviderGoogle && cfg.Provider != ProviderMapbox {
		return nil, fmt.Errorf("invalid GEOCODER_PROVIDER %q: want %s or %s", cfg.Provider, ProviderGoogle, ProviderMapbox)
	}
	if cfg.Locale == "" {
		return nil, errors.New("GEOCACHE_LOCALE is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaQueryTopic == "" {
		return nil, errors.New("KAFKA_QUERY_TOPIC is required")
	}
	if cfg.KafkaResultTopic == "" {
		return nil, errors.New("KAFKA_RESULT_TOPIC is required")
	}

	return cfg, nil
}

// RequireProviderCredentials reports a missing key for the selected provider.
// Commands that never call a provider skip it.
func (c *Config) RequireProviderCredentials() error {
	switch c.Provider {
	case ProviderGoogle:
		if c.GoogleAPIKey == "" {
			return errors.New("GOOGLE_MAPS_API_KEY is required when GEOCODER_PROVIDER is google")
		}
	case ProviderMapbox:
		if c.MapboxToken == "" {
			return errors.New("MAPBOX_TOKEN is required when GEOCODER_PROVIDER is mapbox")
		}
	}
	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v.GetString(key))
	}
	return d, nil
}

func positiveDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := duration(v, key)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

// viper's GetInt and GetFloat64 turn garbage into zero, so numbers are parsed here.
func positiveFloat(v *viper.Viper, key string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v.GetString(key))
	}
	return f, nil
}

func positiveInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v.GetString(key))
	}
	return n, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
