package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// CacheType é a classe de volatilidade do dado. Cada classe mapeia para um TTL.
type CacheType int

const (
	CachePropertyRecord CacheType = iota
	CacheMarketData
	CacheListing
	CacheValuation
)

func (c CacheType) String() string {
	switch c {
	case CachePropertyRecord:
		return "property_record"
	case CacheMarketData:
		return "market_data"
	case CacheListing:
		return "listing"
	case CacheValuation:
		return "valuation"
	default:
		return fmt.Sprintf("cache_type(%d)", int(c))
	}
}

// TTLPolicy centraliza a política de staleness: o TTL é escolhido pelo tipo,
// nunca pelo chamador.
type TTLPolicy map[CacheType]time.Duration

func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		CachePropertyRecord: 24 * time.Hour,
		CacheMarketData:     1800 * time.Second,
		CacheListing:        5 * time.Minute,
		CacheValuation:      time.Hour,
	}
}

// TTL retorna 0 para tipos desconhecidos (não cacheia).
func (p TTLPolicy) TTL(c CacheType) time.Duration {
	return p[c]
}

// CacheSchemaVersion muda sempre que o formato dos DTOs muda.
// Entradas gravadas com outra versão são tratadas como miss.
const CacheSchemaVersion = 1

// CacheEntry é o envelope gravado no store. Value é o JSON do DTO normalizado.
type CacheEntry struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	StoredAt      time.Time       `json:"stored_at"`
	TTLSeconds    int64           `json:"ttl_seconds"`
	SchemaVersion int             `json:"schema_version"`
}
