package main

import (
	"encoding/json"
	"hash/fnv"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"provider-gateway/provider/infra"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// stub imita o provedor externo: exige X-API-Key, aplica token-bucket por
// chave (429 + Retry-After) e devolve payloads v1 determinísticos por id.
type stub struct {
	apiKey   string
	buckets  *infra.LocalBucketStore
	failRate float64
	latency  time.Duration
	rand     func() float64
	now      func() time.Time
	log      logrus.FieldLogger
}

func (s *stub) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.auth, s.limit, s.chaos)
	r.Get("/v1/properties/{id}", s.property)
	r.Get("/v1/properties/{id}/valuation", s.valuation)
	r.Get("/v1/markets/{zip}", s.market)
	r.Get("/v1/listings/search", s.listings)
	return r
}

func (s *stub) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *stub) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := s.buckets.Take(r.Header.Get("X-API-Key"))
		if !ok {
			secs := int((wait + time.Second - 1) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			s.log.WithField("path", r.URL.Path).Debug("stub throttled request")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// chaos injeta latência e 503 aleatórios.
func (s *stub) chaos(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-r.Context().Done():
				return
			}
		}
		if s.failRate > 0 && s.rand() < s.failRate {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "upstream unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// seed gera números estáveis por id.
func seed(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

func missing(id string) bool { return strings.HasPrefix(id, "missing") }

func address(n uint64, zip string) map[string]any {
	if zip == "" {
		zip = strconv.Itoa(10000 + int(n%89999))
	}
	return map[string]any{
		"line1": strconv.Itoa(int(n%9000)+100) + " Main St",
		"city":  "Springfield",
		"state": "il",
		"zip":   zip,
	}
}

func (s *stub) property(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if missing(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "property not found"})
		return
	}
	n := seed(id)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            id,
		"address":       address(n, ""),
		"property_type": []string{"single_family", "condo", "townhouse"}[n%3],
		"beds":          int(n%5) + 1,
		"baths":         float64(n%4) + 1.5,
		"sqft":          900 + int(n%3000),
		"lot_sqft":      2000 + int(n%8000),
		"year_built":    1950 + int(n%70),
		"last_sale": map[string]any{
			"price": 150000 + int64(n%900000),
			"date":  s.now().AddDate(-int(n%10)-1, 0, 0).Format("2006-01-02"),
		},
	})
}

func (s *stub) valuation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if missing(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "property not found"})
		return
	}
	n := seed(id)
	est := 200000 + int64(n%800000)
	writeJSON(w, http.StatusOK, map[string]any{
		"property_id": id,
		"value": map[string]any{
			"estimate": est,
			"low":      est * 9 / 10,
			"high":     est * 11 / 10,
		},
		"confidence": 0.6 + float64(n%40)/100,
		"valued_at":  s.now().UTC().Format(time.RFC3339),
	})
}

func (s *stub) market(w http.ResponseWriter, r *http.Request) {
	zip := chi.URLParam(r, "zip")
	n := seed(zip)
	writeJSON(w, http.StatusOK, map[string]any{
		"zip":                zip,
		"median_sale_price":  250000 + int64(n%500000),
		"median_rent":        1200 + int64(n%2500),
		"avg_days_on_market": 10 + int(n%80),
		"active_inventory":   50 + int(n%400),
		"yoy_price_change":   float64(int(n%200)-50) / 1000,
		"as_of":              s.now().UTC().Format("2006-01-02"),
	})
}

func (s *stub) listings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	zip, city := q.Get("zip"), q.Get("city")
	if zip == "" && city == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "zip or city required"})
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	minPrice, _ := strconv.ParseInt(q.Get("min_price"), 10, 64)
	status := q.Get("status")
	if status == "" {
		status = "active"
	}

	base := seed(zip + "|" + city)
	results := make([]map[string]any, 0, limit)
	for i := 0; i < limit; i++ {
		n := base + uint64(i)*7919
		price := 150000 + int64(n%900000)
		if price < minPrice {
			price = minPrice + int64(n%50000)
		}
		results = append(results, map[string]any{
			"listing_id":  "L" + strconv.FormatUint(n%1_000_000, 10),
			"property_id": "P" + strconv.FormatUint(n%10_000_000, 10),
			"address":     address(n, zip),
			"price":       price,
			"status":      status,
			"beds":        int(n%5) + 1,
			"baths":       float64(n%3) + 1,
			"sqft":        800 + int(n%2500),
			"listed_at":   s.now().Add(-time.Duration(n%720) * time.Hour).UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func defaultRand() float64 { return rand.Float64() }
