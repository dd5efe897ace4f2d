package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"provider-gateway/provider"
	"provider-gateway/provider/application"
	"provider-gateway/provider/domain"
	"provider-gateway/provider/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logrus.New()

	cfg, err := readConfig()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}
	configureLogger(log, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := setupTracing(ctx, cfg.otlpEndpoint, cfg.serviceName)
	if err != nil {
		log.WithError(err).Fatal("tracing setup error")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})
	defer func() { _ = rdb.Close() }()

	pingCtx, pingCancel := context.WithTimeout(ctx, 2*time.Second)
	err = rdb.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		// o gateway sobe mesmo assim: rate limit e quota falham abertos
		log.WithError(err).Warn("redis ping failed, starting degraded")
	}
	store := infra.NewRedisCounterStore(rdb, infra.WithKeyPrefix(cfg.keyPrefix))

	upstream, err := infra.NewHTTPProvider(cfg.providerURL, cfg.providerAPIKey,
		infra.WithHTTPClient(&http.Client{Timeout: cfg.providerTimeout}),
	)
	if err != nil {
		log.WithError(err).Fatal("provider client error")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := infra.NewPromObserver("pgw", reg)

	sinks := infra.MultiAlertSink{
		infra.LogAlertSink{Log: log},
		infra.NewRedisAlertSink(rdb, cfg.alertChannel),
		prom,
	}
	var kafkaSink *infra.KafkaAlertSink
	if len(cfg.kafkaBrokers) > 0 {
		kafkaSink = infra.NewKafkaAlertSink(cfg.kafkaBrokers, cfg.kafkaTopic)
		sinks = append(sinks, kafkaSink)
	}
	alerts := infra.NewAsyncAlertDispatcher(sinks, cfg.alertBuffer, infra.WithAlertLogger(log))

	usage := application.UsageTracker{
		Store:     store,
		Retention: cfg.usageRetention,
		Observers: []domain.UsageObserver{prom},
		Log:       log,
	}
	gw := &application.Gateway{
		Provider: upstream,
		Cache:    application.ResponseCache{Store: store, TTLs: cfg.policy.TTLs, Log: log},
		Quota: application.QuotaManager{
			Store:      store,
			Tiers:      cfg.policy.Tiers,
			Alerts:     alerts,
			FailClosed: cfg.quotaFailClosed,
			Log:        log,
		},
		Limiter:        application.RateLimiter{Store: store, Policy: cfg.policy.RateLimit, Log: log},
		Retry:          application.RetryController{Log: log},
		RetryConfig:    cfg.policy.Retry,
		Usage:          usage,
		CallTimeout:    cfg.callTimeout,
		RefundOnReject: cfg.refundOnReject,
		Log:            log,
	}

	rc := provider.RouterConfig{
		Gateway: gw,
		Ready:   store.Ping,
		Concurrency: provider.ConcurrencyOptions{
			Max:            cfg.concurrencyMax,
			AcquireTimeout: cfg.concurrencyTimeout,
			Observer:       prom,
		},
		MaxUsageWindow: cfg.usageRetention,
		Log:            log,
	}
	if cfg.metricsEnable {
		rc.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
	}

	srv := &http.Server{
		Addr:              cfg.listenAddr,
		Handler:           provider.NewRouter(rc),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.callTimeout + 5*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	rl := cfg.policy.RateLimit
	log.WithFields(logrus.Fields{
		"addr":          cfg.listenAddr,
		"provider":      cfg.providerURL,
		"redis":         cfg.redisAddr,
		"policy_file":   cfg.policyFile,
		"shared":        rl.SharedLimit,
		"reserved":      rl.ReservedLimit,
		"background":    rl.BackgroundLimit,
		"window":        rl.Window.String(),
		"kafka_brokers": len(cfg.kafkaBrokers),
		"tracing":       cfg.otlpEndpoint != "",
	}).Info("gateway listening")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if aerr := alerts.Close(shutdownCtx); aerr != nil {
			log.WithError(aerr).Warn("alert queue not drained")
		}
		if kafkaSink != nil {
			_ = kafkaSink.Close()
		}
		_ = shutdownTracing(shutdownCtx)
		return err
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server error")
	}
	log.Info("gateway stopped")
}

func configureLogger(log *logrus.Logger, cfg config) {
	if cfg.logFormat == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, err := logrus.ParseLevel(cfg.logLevel)
	if err != nil {
		log.WithField("level", cfg.logLevel).Warn("invalid LOG_LEVEL, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}
