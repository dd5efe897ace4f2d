package provider

import (
	"context"
	"net/http"
	"time"

	"provider-gateway/provider/application"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RouterConfig configura o router HTTP do gateway.
type RouterConfig struct {
	Gateway  *application.Gateway
	CallerFn CallerFunc

	// Metrics é servido em /metrics quando não nulo (ex: promhttp.HandlerFor).
	Metrics http.Handler
	// Ready é consultado por /ready (ex: ping no Redis).
	Ready func(ctx context.Context) error

	Concurrency ConcurrencyOptions
	// MaxUsageWindow limita ?window do endpoint de uso (normalmente a retenção do log).
	MaxUsageWindow time.Duration

	Log logrus.FieldLogger
	Now func() time.Time
}

// NewRouter monta as rotas da API e o painel administrativo.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.CallerFn == nil {
		cfg.CallerFn = DefaultCallerFunc()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	h := &Handler{
		gw:       cfg.Gateway,
		callerFn: cfg.CallerFn,
		maxWin:   cfg.MaxUsageWindow,
		log:      cfg.Log,
		now:      cfg.Now,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(cfg.Log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Ready != nil {
			if err := cfg.Ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	if cfg.Concurrency.Log == nil {
		cfg.Concurrency.Log = cfg.Log
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(ConcurrencyMiddleware(cfg.Concurrency))

		r.Get("/properties/{id}", h.GetProperty)
		r.Get("/properties/{id}/valuation", h.GetValuation)
		r.Get("/markets/{zip}", h.GetMarket)
		r.Get("/listings", h.SearchListings)
	})

	r.Route("/admin/accounts/{account}", func(r chi.Router) {
		r.Get("/usage", h.GetUsage)
		r.Get("/quota", h.GetQuota)
	})

	return r
}

func requestLogger(log logrus.FieldLogger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			log.WithFields(logrus.Fields{
				"request_id":  requestID(r),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("http request")
		})
	}
}
