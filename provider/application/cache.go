package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"provider-gateway/provider/domain"

	"github.com/sirupsen/logrus"
)

// ResponseCache guarda DTOs normalizados por assinatura de requisição.
//
// O TTL vem do CacheType via TTLPolicy. A expiração do store é a única
// fonte de verdade: entrada presente é válida, ausente é miss.
type ResponseCache struct {
	Store domain.CounterStore
	TTLs  domain.TTLPolicy
	Log   logrus.FieldLogger
	Now   func() time.Time
}

func (c ResponseCache) withDefaults() ResponseCache {
	if c.TTLs == nil {
		c.TTLs = domain.DefaultTTLPolicy()
	}
	if c.Log == nil {
		c.Log = discardLogger()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// foldedParams são os parâmetros cujo valor o provedor trata sem distinguir
// maiúsculas. Identificadores ficam fora: são opacos.
var foldedParams = map[string]bool{
	"zip":    true,
	"city":   true,
	"state":  true,
	"status": true,
}

// CanonicalParams normaliza os parâmetros: chaves e valores aparados, chaves
// em minúsculas, vazios descartados, ordenado por chave. O valor só vira
// minúscula nos parâmetros de foldedParams.
func CanonicalParams(params map[string]string) string {
	norm := make(map[string]string, len(params))
	keys := make([]string, 0, len(params))
	for k, v := range params {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if foldedParams[k] {
			v = strings.ToLower(v)
		}
		if k == "" || v == "" {
			continue
		}
		if _, dup := norm[k]; !dup {
			keys = append(keys, k)
		}
		norm[k] = v
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(norm[k])
	}
	return b.String()
}

// CacheKey = cache:{conta}:{operação}:{sha256(params canônicos)}.
func CacheKey(accountID string, op domain.Operation, params map[string]string) string {
	sum := sha256.Sum256([]byte(string(op) + "?" + CanonicalParams(params)))
	return fmt.Sprintf("cache:%s:%s:%s", accountID, op, hex.EncodeToString(sum[:]))
}

// Get devolve (entrada, true) num hit. Falha do store vira miss.
func (c ResponseCache) Get(ctx context.Context, accountID string, op domain.Operation, params map[string]string) (domain.CacheEntry, bool) {
	c = c.withDefaults()
	key := CacheKey(accountID, op, params)

	raw, err := c.Store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrKeyNotFound) {
			c.Log.WithError(err).WithField("op", string(op)).Warn("cache read failed, treating as miss")
		}
		return domain.CacheEntry{}, false
	}

	var ent domain.CacheEntry
	if err := json.Unmarshal(raw, &ent); err != nil {
		c.Log.WithError(err).WithField("op", string(op)).Warn("cache entry unreadable, treating as miss")
		return domain.CacheEntry{}, false
	}
	if ent.SchemaVersion != domain.CacheSchemaVersion || ent.Key != key {
		return domain.CacheEntry{}, false
	}
	return ent, true
}

// Set grava value (o DTO) com o TTL do cacheType. TTL zero não cacheia.
func (c ResponseCache) Set(ctx context.Context, accountID string, op domain.Operation, params map[string]string, value any, cacheType domain.CacheType) error {
	c = c.withDefaults()
	ttl := c.TTLs.TTL(cacheType)
	if ttl <= 0 {
		return nil
	}

	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	key := CacheKey(accountID, op, params)
	ent := domain.CacheEntry{
		Key:           key,
		Value:         body,
		StoredAt:      c.Now().UTC(),
		TTLSeconds:    int64(ttl / time.Second),
		SchemaVersion: domain.CacheSchemaVersion,
	}
	raw, err := json.Marshal(ent)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return c.Store.Set(ctx, key, raw, ttl)
}

// Decode desserializa o valor de uma entrada no tipo do DTO.
func Decode[T any](ent domain.CacheEntry) (T, error) {
	var v T
	if err := json.Unmarshal(ent.Value, &v); err != nil {
		return v, fmt.Errorf("decode cache value: %w", err)
	}
	return v, nil
}
