package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"provider-gateway/provider/domain"
)

const (
	defaultAPIKeyHeader = "X-API-Key"
	defaultMaxBody      = 4 << 20
)

// HTTPProvider é a chamada crua ao provedor de dados imobiliários.
//
// Cada resposta é validada contra o schema do endpoint (gjson) antes de ser
// decodificada nas estruturas v1 e normalizada em DTO. Status HTTP nunca
// sobem crus: viram *domain.Error da taxonomia.
type HTTPProvider struct {
	baseURL      *url.URL
	apiKey       string
	apiKeyHeader string
	client       *http.Client
	maxBody      int64
	now          func() time.Time
}

type HTTPProviderOption func(*HTTPProvider)

func WithHTTPClient(c *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) { p.client = c }
}

func WithAPIKeyHeader(h string) HTTPProviderOption {
	return func(p *HTTPProvider) {
		if h = strings.TrimSpace(h); h != "" {
			p.apiKeyHeader = h
		}
	}
}

func WithMaxBody(n int64) HTTPProviderOption {
	return func(p *HTTPProvider) { p.maxBody = n }
}

func WithProviderClock(now func() time.Time) HTTPProviderOption {
	return func(p *HTTPProvider) { p.now = now }
}

func NewHTTPProvider(baseURL, apiKey string, opts ...HTTPProviderOption) (*HTTPProvider, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid provider base url %q", baseURL)
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, &domain.Error{Kind: domain.KindAuthentication, Message: "provider api key is empty"}
	}
	p := &HTTPProvider{
		baseURL:      u,
		apiKey:       apiKey,
		apiKeyHeader: defaultAPIKeyHeader,
		client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		},
		maxBody: defaultMaxBody,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) FetchProperty(ctx context.Context, id string) (domain.PropertyDTO, error) {
	var w wirePropertyV1
	if err := p.get(ctx, "/v1/properties/"+url.PathEscape(id), nil, propertySchemaV1, &w); err != nil {
		return domain.PropertyDTO{}, err
	}
	return w.normalize()
}

func (p *HTTPProvider) FetchValuation(ctx context.Context, propertyID string) (domain.ValuationDTO, error) {
	var w wireValuationV1
	if err := p.get(ctx, "/v1/properties/"+url.PathEscape(propertyID)+"/valuation", nil, valuationSchemaV1, &w); err != nil {
		return domain.ValuationDTO{}, err
	}
	return w.normalize()
}

func (p *HTTPProvider) FetchMarketData(ctx context.Context, zip string) (domain.MarketDataDTO, error) {
	var w wireMarketV1
	if err := p.get(ctx, "/v1/markets/"+url.PathEscape(zip), nil, marketSchemaV1, &w); err != nil {
		return domain.MarketDataDTO{}, err
	}
	return w.normalize()
}

func (p *HTTPProvider) SearchListings(ctx context.Context, c domain.ListingCriteria) ([]domain.ListingDTO, error) {
	q := url.Values{}
	for k, v := range c.Params() {
		q.Set(k, v)
	}
	var w wireListingsV1
	if err := p.get(ctx, "/v1/listings/search", q, listingsSchemaV1, &w); err != nil {
		return nil, err
	}
	return w.normalize()
}

func (p *HTTPProvider) get(ctx context.Context, path string, q url.Values, sch schema, out any) error {
	u := *p.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &domain.Error{Kind: domain.KindValidation, Message: "build provider request", Cause: err}
	}
	req.Header.Set(p.apiKeyHeader, p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody+1))
	if err != nil {
		return classifyTransportError(ctx, err)
	}

	if err := p.statusError(resp, body); err != nil {
		return err
	}
	if int64(len(body)) > p.maxBody {
		return &domain.Error{Kind: domain.KindSchema, Message: fmt.Sprintf("%s: body above %d bytes", sch.name, p.maxBody)}
	}
	if err := sch.validate(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &domain.Error{Kind: domain.KindSchema, Message: sch.name + ": decode", Cause: err}
	}
	return nil
}

func (p *HTTPProvider) statusError(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	msg := snippet(body)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return &domain.Error{Kind: domain.KindAuthentication, Message: msg, StatusCode: code}
	case code == http.StatusNotFound:
		return &domain.Error{Kind: domain.KindNotFound, Message: msg, StatusCode: code}
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return &domain.Error{Kind: domain.KindValidation, Message: msg, StatusCode: code}
	case code == http.StatusTooManyRequests:
		return &domain.Error{
			Kind:       domain.KindRateLimited,
			Message:    "provider rate limit",
			StatusCode: code,
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), p.now()),
		}
	case code >= 500:
		return &domain.Error{Kind: domain.KindProvider, Message: msg, StatusCode: code}
	default:
		return &domain.Error{Kind: domain.KindProvider, Message: "unexpected status: " + msg, StatusCode: code}
	}
}

// ParseRetryAfter aceita segundos ou HTTP-date. Valor inválido vira 0.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return domain.NewTimeoutError(ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &domain.Error{Kind: domain.KindTimeout, Message: "provider request timed out", Cause: err}
	}
	return &domain.Error{Kind: domain.KindNetwork, Message: "provider request failed", Cause: err}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "...(truncated)"
	}
	return s
}
