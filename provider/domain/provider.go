package domain

import "context"

// Provider é a chamada crua ao provedor, já validada por schema e normalizada.
//
// Erros devolvidos devem ser *Error da taxonomia (RateLimited com RetryAfter,
// Schema, NotFound...), para que o retry controller consiga classificá-los.
type Provider interface {
	FetchProperty(ctx context.Context, id string) (PropertyDTO, error)
	FetchValuation(ctx context.Context, propertyID string) (ValuationDTO, error)
	FetchMarketData(ctx context.Context, zip string) (MarketDataDTO, error)
	SearchListings(ctx context.Context, c ListingCriteria) ([]ListingDTO, error)
}
