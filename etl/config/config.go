package config

import (
	"time"

	"github.com/alapierre/go-factus-etl/etl/batch"
	"github.com/alapierre/go-factus-etl/etl/util"
	"github.com/alapierre/go-factus-etl/factus"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the worker
type Config struct {
	KafkaBrokers     []string
	KafkaIngestTopic string
	KafkaGroupID     string
	KafkaDLQTopic    string

	DatabaseURL string
	RedisURL    string
	EventsQueue string

	FactusEnv         factus.Environment
	FactusBaseURL     string
	FactusCredentials factus.Credentials
	FactusTimeout     time.Duration

	RetryBaseDelay time.Duration
	HTTPAddr       string
	LogLevel       string
}

// Load reads configuration from environment variables, an optional .env file
// is loaded first.
func Load() (*Config, error) {
	// in production variables are set directly, a missing .env is fine
	_ = godotenv.Load()

	cfg := &Config{
		KafkaBrokers:     util.GetListEnv("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
		KafkaIngestTopic: util.GetEnv("KAFKA_INGEST_TOPIC", "invoice.ingest.v1"),
		KafkaGroupID:     util.GetEnv("KAFKA_GROUP_ID", "invoice-etl-v1"),
		DatabaseURL:      util.GetEnv("DATABASE_URL", ""),
		RedisURL:         util.GetEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		EventsQueue:      util.GetEnv("EVENTS_QUEUE", "invoice-events"),
		FactusCredentials: factus.Credentials{
			Email:        util.GetEnv("FACTUS_EMAIL", ""),
			Password:     util.GetEnv("FACTUS_PASSWORD", ""),
			ClientID:     util.GetEnv("FACTUS_CLIENT_ID", ""),
			ClientSecret: util.GetEnv("FACTUS_CLIENT_SECRET", ""),
		},
		FactusTimeout:  util.GetDurationEnv("FACTUS_TIMEOUT", factus.DefaultTimeout),
		RetryBaseDelay: util.GetDurationEnv("RETRY_BASE_DELAY", batch.DefaultRetryBaseDelay),
		HTTPAddr:       util.GetEnv("HTTP_ADDR", ":8080"),
		LogLevel:       util.GetEnv("LOG_LEVEL", "info"),
	}
	cfg.KafkaDLQTopic = util.GetEnv("KAFKA_DLQ_TOPIC", cfg.KafkaIngestTopic+".dlq")

	if err := cfg.FactusEnv.UnmarshalText([]byte(util.GetEnv("FACTUS_ENV", "sandbox"))); err != nil {
		return nil, err
	}
	cfg.FactusBaseURL = util.GetEnv("FACTUS_BASE_URL", cfg.FactusEnv.BaseURL())

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	return cfg, nil
}
