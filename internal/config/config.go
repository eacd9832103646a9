// Package config is a minimal environment-backed configuration loader
// used by cmd/eventcore's bootstrap.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the runtime values the eventcore service needs.
type Config struct {
	DatabaseURL string // DATABASE_URL
	ListenAddr  string // LISTEN_ADDR (default :8080)

	// Outbox publish worker
	OutboxBatchSize      int           // OUTBOX_BATCH_SIZE (default 10)
	OutboxPollInterval   time.Duration // OUTBOX_POLL_INTERVAL_MS (default 3s)
	OutboxMaxConcurrency int           // OUTBOX_MAX_CONCURRENCY (default 5)
	OutboxMaxAttempts    int           // OUTBOX_MAX_ATTEMPTS (default 6)

	// Subscriptions
	SubscriptionBatchSize    int           // SUBSCRIPTION_BATCH_SIZE (default 100)
	SubscriptionPollInterval time.Duration // SUBSCRIPTION_POLL_INTERVAL_MS (default 500ms)

	// Kafka
	KafkaBrokers []string // KAFKA_BROKERS (comma-separated)
	KafkaTopic   string   // KAFKA_TOPIC

	// S3 archival
	ArchiveBucket string // ARCHIVE_BUCKET
	ArchivePrefix string // ARCHIVE_PREFIX

	// Admin API auth
	AdminBearerSecret string // ADMIN_BEARER_SECRET
	AdminWriteScope   string // ADMIN_WRITE_SCOPE (default "eventcore:admin")
}

// LoadFromEnv reads config values from environment variables, applying
// the defaults documented on Config's fields.
func LoadFromEnv() *Config {
	cfg := &Config{
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ListenAddr:        os.Getenv("LISTEN_ADDR"),
		KafkaTopic:        os.Getenv("KAFKA_TOPIC"),
		ArchiveBucket:     os.Getenv("ARCHIVE_BUCKET"),
		ArchivePrefix:     os.Getenv("ARCHIVE_PREFIX"),
		AdminBearerSecret: os.Getenv("ADMIN_BEARER_SECRET"),
		AdminWriteScope:   os.Getenv("ADMIN_WRITE_SCOPE"),
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.AdminWriteScope == "" {
		cfg.AdminWriteScope = "eventcore:admin"
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	cfg.OutboxBatchSize = intEnv("OUTBOX_BATCH_SIZE", 10)
	cfg.OutboxMaxConcurrency = intEnv("OUTBOX_MAX_CONCURRENCY", 5)
	cfg.OutboxMaxAttempts = intEnv("OUTBOX_MAX_ATTEMPTS", 6)
	cfg.OutboxPollInterval = msEnv("OUTBOX_POLL_INTERVAL_MS", 3*time.Second)

	cfg.SubscriptionBatchSize = intEnv("SUBSCRIPTION_BATCH_SIZE", 100)
	cfg.SubscriptionPollInterval = msEnv("SUBSCRIPTION_POLL_INTERVAL_MS", 500*time.Millisecond)

	return cfg
}

func intEnv(name string, def int) int {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func msEnv(name string, def time.Duration) time.Duration {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
