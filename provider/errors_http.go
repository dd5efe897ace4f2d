package provider

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"provider-gateway/provider/domain"
)

// ErrorResponse é o corpo JSON de erro.
type ErrorResponse struct {
	Error     string              `json:"error"`
	Message   string              `json:"message,omitempty"`
	RequestID string              `json:"request_id,omitempty"`
	Quota     *domain.QuotaStatus `json:"quota,omitempty"`
}

// StatusFor traduz a taxonomia de erros para status HTTP.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindRateLimited, domain.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindAuthentication, domain.KindSchema, domain.KindProvider, domain.KindNetwork:
		// problema entre o gateway e o provedor, não do chamador
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// retryAfter devolve o header Retry-After adequado ao erro (0 = sem header).
func retryAfter(err error, now time.Time) time.Duration {
	if d, ok := domain.RetryAfterOf(err); ok {
		return d
	}
	var e *domain.Error
	if errors.As(err, &e) {
		switch {
		case e.Kind == domain.KindRateLimited:
			return time.Second
		case e.Kind == domain.KindQuotaExceeded && e.Quota != nil:
			return e.Quota.PeriodEnd.Sub(now)
		}
	}
	return 0
}

func writeError(w http.ResponseWriter, r *http.Request, err error, now time.Time) {
	status := StatusFor(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", formatInt(retryAfterSeconds(retryAfter(err, now))))
	}

	resp := ErrorResponse{
		Error:     domain.KindOf(err).String(),
		Message:   err.Error(),
		RequestID: requestID(r),
	}
	var e *domain.Error
	if errors.As(err, &e) {
		resp.Quota = e.Quota
	}
	if status == http.StatusInternalServerError {
		resp.Message = "an internal error occurred"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
