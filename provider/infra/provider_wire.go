package infra

import (
	"strings"
	"time"

	"provider-gateway/provider/domain"
)

// Estruturas do payload v1 do provedor. Só existem aqui: o resto do código
// enxerga os DTOs de domain.

type wireAddressV1 struct {
	Line1 string `json:"line1"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

type wirePropertyV1 struct {
	ID           string        `json:"id"`
	Address      wireAddressV1 `json:"address"`
	PropertyType string        `json:"property_type"`
	Beds         int           `json:"beds"`
	Baths        float64       `json:"baths"`
	SqFt         int           `json:"sqft"`
	LotSqFt      int           `json:"lot_sqft"`
	YearBuilt    int           `json:"year_built"`
	LastSale     *struct {
		Price int64  `json:"price"`
		Date  string `json:"date"`
	} `json:"last_sale"`
}

type wireValuationV1 struct {
	PropertyID string `json:"property_id"`
	Value      struct {
		Estimate int64 `json:"estimate"`
		Low      int64 `json:"low"`
		High     int64 `json:"high"`
	} `json:"value"`
	Confidence float64 `json:"confidence"`
	ValuedAt   string  `json:"valued_at"`
}

type wireMarketV1 struct {
	Zip             string  `json:"zip"`
	MedianSalePrice int64   `json:"median_sale_price"`
	MedianRent      int64   `json:"median_rent"`
	AvgDaysOnMarket int     `json:"avg_days_on_market"`
	ActiveInventory int     `json:"active_inventory"`
	YoYPriceChange  float64 `json:"yoy_price_change"`
	AsOf            string  `json:"as_of"`
}

type wireListingV1 struct {
	ListingID  string        `json:"listing_id"`
	PropertyID string        `json:"property_id"`
	Address    wireAddressV1 `json:"address"`
	Price      int64         `json:"price"`
	Status     string        `json:"status"`
	Beds       int           `json:"beds"`
	Baths      float64       `json:"baths"`
	SqFt       int           `json:"sqft"`
	ListedAt   string        `json:"listed_at"`
}

type wireListingsV1 struct {
	Results []wireListingV1 `json:"results"`
	Total   int             `json:"total"`
}

func (a wireAddressV1) normalize() domain.Address {
	return domain.Address{
		Line1: strings.TrimSpace(a.Line1),
		City:  strings.TrimSpace(a.City),
		State: strings.ToUpper(strings.TrimSpace(a.State)),
		Zip:   strings.TrimSpace(a.Zip),
	}
}

// parseTime aceita RFC3339 ou só a data (o provedor manda os dois).
func parseTime(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Time{}, &domain.Error{Kind: domain.KindSchema, Message: field + ": unparseable time " + s}
}

func (w wirePropertyV1) normalize() (domain.PropertyDTO, error) {
	dto := domain.PropertyDTO{
		ID:           w.ID,
		Address:      w.Address.normalize(),
		PropertyType: strings.ToLower(w.PropertyType),
		Bedrooms:     w.Beds,
		Bathrooms:    w.Baths,
		SquareFeet:   w.SqFt,
		LotSizeSqFt:  w.LotSqFt,
		YearBuilt:    w.YearBuilt,
	}
	if w.LastSale != nil {
		dto.LastSalePrice = w.LastSale.Price
		if w.LastSale.Date != "" {
			t, err := parseTime("last_sale.date", w.LastSale.Date)
			if err != nil {
				return domain.PropertyDTO{}, err
			}
			dto.LastSaleDate = &t
		}
	}
	return dto, nil
}

func (w wireValuationV1) normalize() (domain.ValuationDTO, error) {
	at, err := parseTime("valued_at", w.ValuedAt)
	if err != nil {
		return domain.ValuationDTO{}, err
	}
	if w.Value.Low > w.Value.Estimate || w.Value.Estimate > w.Value.High {
		return domain.ValuationDTO{}, &domain.Error{Kind: domain.KindSchema, Message: "valuation range does not contain estimate"}
	}
	return domain.ValuationDTO{
		PropertyID: w.PropertyID,
		Estimate:   w.Value.Estimate,
		Low:        w.Value.Low,
		High:       w.Value.High,
		Confidence: w.Confidence,
		ValuedAt:   at,
	}, nil
}

func (w wireMarketV1) normalize() (domain.MarketDataDTO, error) {
	at, err := parseTime("as_of", w.AsOf)
	if err != nil {
		return domain.MarketDataDTO{}, err
	}
	return domain.MarketDataDTO{
		Zip:            w.Zip,
		MedianPrice:    w.MedianSalePrice,
		MedianRent:     w.MedianRent,
		DaysOnMarket:   w.AvgDaysOnMarket,
		InventoryCount: w.ActiveInventory,
		PriceChangeYoY: w.YoYPriceChange,
		AsOf:           at,
	}, nil
}

func (w wireListingsV1) normalize() ([]domain.ListingDTO, error) {
	out := make([]domain.ListingDTO, 0, len(w.Results))
	for _, l := range w.Results {
		at, err := parseTime("listed_at", l.ListedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ListingDTO{
			ID:         l.ListingID,
			PropertyID: l.PropertyID,
			Address:    l.Address.normalize(),
			ListPrice:  l.Price,
			Status:     strings.ToLower(l.Status),
			Bedrooms:   l.Beds,
			Bathrooms:  l.Baths,
			SquareFeet: l.SqFt,
			ListedAt:   at,
		})
	}
	return out, nil
}
