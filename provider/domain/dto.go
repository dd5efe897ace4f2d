package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DTOs normalizados devolvidos aos chamadores. São eles (e não o payload
// cru do provedor) que vão para o cache.

type Address struct {
	Line1 string `json:"line1"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

type PropertyDTO struct {
	ID            string     `json:"id"`
	Address       Address    `json:"address"`
	PropertyType  string     `json:"property_type"`
	Bedrooms      int        `json:"bedrooms"`
	Bathrooms     float64    `json:"bathrooms"`
	SquareFeet    int        `json:"square_feet"`
	LotSizeSqFt   int        `json:"lot_size_sqft,omitempty"`
	YearBuilt     int        `json:"year_built,omitempty"`
	LastSalePrice int64      `json:"last_sale_price,omitempty"`
	LastSaleDate  *time.Time `json:"last_sale_date,omitempty"`
}

type ValuationDTO struct {
	PropertyID string    `json:"property_id"`
	Estimate   int64     `json:"estimate"`
	Low        int64     `json:"low"`
	High       int64     `json:"high"`
	Confidence float64   `json:"confidence"`
	ValuedAt   time.Time `json:"valued_at"`
}

type MarketDataDTO struct {
	Zip            string    `json:"zip"`
	MedianPrice    int64     `json:"median_price"`
	MedianRent     int64     `json:"median_rent"`
	DaysOnMarket   int       `json:"days_on_market"`
	InventoryCount int       `json:"inventory_count"`
	PriceChangeYoY float64   `json:"price_change_yoy"`
	AsOf           time.Time `json:"as_of"`
}

type ListingDTO struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	Address    Address   `json:"address"`
	ListPrice  int64     `json:"list_price"`
	Status     string    `json:"status"`
	Bedrooms   int       `json:"bedrooms"`
	Bathrooms  float64   `json:"bathrooms"`
	SquareFeet int       `json:"square_feet"`
	ListedAt   time.Time `json:"listed_at"`
}

// ListingCriteria são os filtros de busca de anúncios.
type ListingCriteria struct {
	Zip      string
	City     string
	State    string
	MinPrice int64
	MaxPrice int64
	MinBeds  int
	Status   string
	Limit    int
}

const MaxListingLimit = 200

var (
	zipRe        = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	idRe         = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	listingState = map[string]bool{"": true, "active": true, "pending": true, "sold": true}
)

// ValidateID rejeita identificadores vazios ou com caracteres fora de [A-Za-z0-9_-].
func ValidateID(field, id string) error {
	if !idRe.MatchString(strings.TrimSpace(id)) {
		return NewValidationError(fmt.Sprintf("invalid %s %q", field, id))
	}
	return nil
}

func ValidateZip(zip string) error {
	if !zipRe.MatchString(strings.TrimSpace(zip)) {
		return NewValidationError(fmt.Sprintf("invalid zip %q", zip))
	}
	return nil
}

// Validate exige ao menos um filtro de localização.
func (c ListingCriteria) Validate() error {
	if strings.TrimSpace(c.Zip) == "" && strings.TrimSpace(c.City) == "" {
		return NewValidationError("listing search needs zip or city")
	}
	if c.Zip != "" {
		if err := ValidateZip(c.Zip); err != nil {
			return err
		}
	}
	if c.City != "" && strings.TrimSpace(c.State) == "" {
		return NewValidationError("listing search by city needs state")
	}
	if c.MinPrice < 0 || c.MaxPrice < 0 || c.MinBeds < 0 || c.Limit < 0 {
		return NewValidationError("listing criteria must not be negative")
	}
	if c.MaxPrice > 0 && c.MinPrice > c.MaxPrice {
		return NewValidationError("min_price greater than max_price")
	}
	if c.Limit > MaxListingLimit {
		return NewValidationError(fmt.Sprintf("limit above %d", MaxListingLimit))
	}
	if !listingState[strings.ToLower(strings.TrimSpace(c.Status))] {
		return NewValidationError(fmt.Sprintf("unknown listing status %q", c.Status))
	}
	return nil
}

// Normalized apara os campos de texto e põe o status em minúsculas. É o
// valor que segue para o provedor e para a chave de cache.
func (c ListingCriteria) Normalized() ListingCriteria {
	c.Zip = strings.TrimSpace(c.Zip)
	c.City = strings.TrimSpace(c.City)
	c.State = strings.TrimSpace(c.State)
	c.Status = strings.ToLower(strings.TrimSpace(c.Status))
	return c
}

// Params devolve os filtros como mapa (só os preenchidos). Usado como
// query string do provedor e como assinatura da chave de cache.
func (c ListingCriteria) Params() map[string]string {
	p := map[string]string{}
	put := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			p[k] = v
		}
	}
	putInt := func(k string, v int64) {
		if v > 0 {
			p[k] = strconv.FormatInt(v, 10)
		}
	}
	put("zip", c.Zip)
	put("city", c.City)
	put("state", c.State)
	put("status", c.Status)
	putInt("min_price", c.MinPrice)
	putInt("max_price", c.MaxPrice)
	putInt("min_beds", int64(c.MinBeds))
	putInt("limit", int64(c.Limit))
	return p
}
