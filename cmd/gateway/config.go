package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"provider-gateway/provider/infra"

	"github.com/joho/godotenv"
)

type config struct {
	listenAddr  string
	logLevel    string
	logFormat   string
	serviceName string

	providerURL     string
	providerAPIKey  string
	providerTimeout time.Duration

	redisAddr     string
	redisPassword string
	redisDB       int
	keyPrefix     string

	policyFile string
	policy     infra.Policy

	callTimeout        time.Duration
	refundOnReject     bool
	quotaFailClosed    bool
	usageRetention     time.Duration
	concurrencyMax     int
	concurrencyTimeout time.Duration

	alertChannel  string
	alertBuffer   int
	kafkaBrokers  []string
	kafkaTopic    string
	otlpEndpoint  string
	metricsEnable bool
}

func readConfig() (config, error) {
	// .env é opcional; variáveis já exportadas têm precedência
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.logFormat = getenvDefault("LOG_FORMAT", "json")
	cfg.serviceName = getenvDefault("SERVICE_NAME", "provider-gateway")

	cfg.providerURL = strings.TrimSpace(os.Getenv("PROVIDER_BASE_URL"))
	cfg.providerAPIKey = os.Getenv("PROVIDER_API_KEY")
	cfg.providerTimeout = getenvDurationDefault("PROVIDER_HTTP_TIMEOUT", 10*time.Second)

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.keyPrefix = getenvDefault("REDIS_KEY_PREFIX", "pgw")

	cfg.policy = infra.DefaultPolicy()
	cfg.policyFile = os.Getenv("POLICY_FILE")
	if cfg.policyFile != "" {
		p, err := infra.LoadPolicyFile(cfg.policyFile, cfg.policy)
		if err != nil {
			return config{}, err
		}
		cfg.policy = p
	}
	if getenvIsSet("RATE_SHARED_PER_MIN") {
		cfg.policy.RateLimit.SharedLimit = getenvIntDefault("RATE_SHARED_PER_MIN", cfg.policy.RateLimit.SharedLimit)
	}
	if getenvIsSet("RATE_RESERVED_PER_MIN") {
		cfg.policy.RateLimit.ReservedLimit = getenvIntDefault("RATE_RESERVED_PER_MIN", cfg.policy.RateLimit.ReservedLimit)
	}

	cfg.callTimeout = getenvDurationDefault("CALL_TIMEOUT", 15*time.Second)
	cfg.refundOnReject = getenvBoolDefault("QUOTA_REFUND_ON_REJECT", false)
	cfg.quotaFailClosed = getenvBoolDefault("QUOTA_FAIL_CLOSED", false)
	cfg.usageRetention = getenvDurationDefault("USAGE_RETENTION", 7*24*time.Hour)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 100)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 0)

	cfg.alertChannel = getenvDefault("ALERT_REDIS_CHANNEL", "pgw:quota-alerts")
	cfg.alertBuffer = getenvIntDefault("ALERT_BUFFER", 256)
	cfg.kafkaBrokers = getenvList("KAFKA_BROKERS")
	cfg.kafkaTopic = getenvDefault("KAFKA_ALERT_TOPIC", "quota-alerts")
	cfg.otlpEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.metricsEnable = getenvBoolDefault("METRICS_ENABLED", true)

	if cfg.providerURL == "" {
		return config{}, errors.New("PROVIDER_BASE_URL is required")
	}
	if cfg.providerAPIKey == "" {
		return config{}, errors.New("PROVIDER_API_KEY is required")
	}
	if cfg.policy.RateLimit.SharedLimit <= 0 {
		return config{}, errors.New("shared rate limit must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return config{}, errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if cfg.usageRetention <= 0 {
		return config{}, errors.New("USAGE_RETENTION must be > 0")
	}
	return cfg, nil
}
