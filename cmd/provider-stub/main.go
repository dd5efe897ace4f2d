package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"provider-gateway/provider/infra"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// provider-stub é um provedor falso para desenvolvimento local e testes de carga.
func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info")); err == nil {
		log.SetLevel(lvl)
	}

	apiKey := os.Getenv("PROVIDER_API_KEY")
	if apiKey == "" {
		log.Fatal("PROVIDER_API_KEY is required")
	}
	rps := getenvFloat("STUB_RPS", 1)
	burst := int(getenvFloat("STUB_BURST", 60))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	buckets := infra.NewLocalBucketStore(rps, burst)
	buckets.StartJanitor(ctx)

	s := &stub{
		apiKey:   apiKey,
		buckets:  buckets,
		failRate: getenvFloat("STUB_FAIL_RATE", 0),
		latency:  getenvDuration("STUB_LATENCY", 0),
		rand:     defaultRand,
		now:      time.Now,
		log:      log,
	}

	addr := getenv("LISTEN_ADDR", ":8081")
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.WithFields(logrus.Fields{"addr": addr, "rps": rps, "burst": burst}).Info("provider stub listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Fatal("server error")
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(k), 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(k string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(k))
	if err != nil {
		return def
	}
	return d
}
