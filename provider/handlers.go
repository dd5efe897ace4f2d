package provider

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"provider-gateway/provider/application"
	"provider-gateway/provider/domain"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// DefaultUsageWindow vale quando ?window não é informado.
const DefaultUsageWindow = time.Hour

// Handler traduz requisições HTTP para chamadas do Gateway.
type Handler struct {
	gw       *application.Gateway
	callerFn CallerFunc
	maxWin   time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

func (h *Handler) client(w http.ResponseWriter, r *http.Request) (*application.AccountClient, Caller, bool) {
	c, err := h.callerFn(r)
	if err != nil {
		writeError(w, r, err, h.now())
		return nil, Caller{}, false
	}
	return h.gw.ForAccount(c.AccountID, c.Tier), c, true
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v any, err error) {
	if err != nil {
		if StatusFor(err) >= http.StatusInternalServerError {
			h.log.WithError(err).WithField("request_id", requestID(r)).Warn("gateway call failed")
		}
		writeError(w, r, err, h.now())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetProperty trata GET /v1/properties/{id}
func (h *Handler) GetProperty(w http.ResponseWriter, r *http.Request) {
	ac, c, ok := h.client(w, r)
	if !ok {
		return
	}
	v, err := ac.FetchProperty(r.Context(), chi.URLParam(r, "id"), application.WithPriority(c.Priority))
	h.respond(w, r, v, err)
}

// GetValuation trata GET /v1/properties/{id}/valuation
func (h *Handler) GetValuation(w http.ResponseWriter, r *http.Request) {
	ac, c, ok := h.client(w, r)
	if !ok {
		return
	}
	v, err := ac.FetchValuation(r.Context(), chi.URLParam(r, "id"), application.WithPriority(c.Priority))
	h.respond(w, r, v, err)
}

// GetMarket trata GET /v1/markets/{zip}
func (h *Handler) GetMarket(w http.ResponseWriter, r *http.Request) {
	ac, c, ok := h.client(w, r)
	if !ok {
		return
	}
	v, err := ac.FetchMarketData(r.Context(), chi.URLParam(r, "zip"), application.WithPriority(c.Priority))
	h.respond(w, r, v, err)
}

// ListingsResponse envolve o resultado da busca.
type ListingsResponse struct {
	Count    int                 `json:"count"`
	Listings []domain.ListingDTO `json:"listings"`
}

// SearchListings trata GET /v1/listings?zip=...&min_price=...
func (h *Handler) SearchListings(w http.ResponseWriter, r *http.Request) {
	ac, c, ok := h.client(w, r)
	if !ok {
		return
	}
	criteria, err := parseCriteria(r)
	if err != nil {
		writeError(w, r, err, h.now())
		return
	}
	v, err := ac.SearchListings(r.Context(), criteria, application.WithPriority(c.Priority))
	if v == nil {
		v = []domain.ListingDTO{}
	}
	h.respond(w, r, ListingsResponse{Count: len(v), Listings: v}, err)
}

func parseCriteria(r *http.Request) (domain.ListingCriteria, error) {
	q := r.URL.Query()
	c := domain.ListingCriteria{
		Zip:    strings.TrimSpace(q.Get("zip")),
		City:   strings.TrimSpace(q.Get("city")),
		State:  strings.TrimSpace(q.Get("state")),
		Status: strings.TrimSpace(q.Get("status")),
	}
	ints := []struct {
		name string
		dst  *int64
	}{
		{"min_price", &c.MinPrice},
		{"max_price", &c.MaxPrice},
	}
	for _, f := range ints {
		if s := q.Get(f.name); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return c, domain.NewValidationError("invalid " + f.name)
			}
			*f.dst = v
		}
	}
	for name, dst := range map[string]*int{"min_beds": &c.MinBeds, "limit": &c.Limit} {
		if s := q.Get(name); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return c, domain.NewValidationError("invalid " + name)
			}
			*dst = v
		}
	}
	return c, nil
}

// adminClient usa a conta da URL e o plano de ?tier (padrão standard).
func (h *Handler) adminClient(w http.ResponseWriter, r *http.Request) (*application.AccountClient, bool) {
	acct := chi.URLParam(r, "account")
	if err := domain.ValidateID("account id", acct); err != nil {
		writeError(w, r, err, h.now())
		return nil, false
	}
	tier, err := domain.ParseTier(r.URL.Query().Get("tier"))
	if err != nil {
		writeError(w, r, err, h.now())
		return nil, false
	}
	return h.gw.ForAccount(acct, tier), true
}

// GetUsage trata GET /admin/accounts/{account}/usage?window=1h
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.adminClient(w, r)
	if !ok {
		return
	}
	win := DefaultUsageWindow
	if s := r.URL.Query().Get("window"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			writeError(w, r, domain.NewValidationError("invalid window "+strconv.Quote(s)), h.now())
			return
		}
		win = d
	}
	if h.maxWin > 0 && win > h.maxWin {
		writeError(w, r, domain.NewValidationError("window beyond usage retention"), h.now())
		return
	}
	m, err := ac.UsageMetrics(r.Context(), win)
	h.respond(w, r, m, err)
}

// GetQuota trata GET /admin/accounts/{account}/quota
func (h *Handler) GetQuota(w http.ResponseWriter, r *http.Request) {
	ac, ok := h.adminClient(w, r)
	if !ok {
		return
	}
	st, err := ac.QuotaStatus(r.Context())
	h.respond(w, r, st, err)
}
