package domain

import (
	"context"
	"time"
)

// CounterStore é o store remoto compartilhado por todas as instâncias.
//
// Todo estado entre chamadas (janelas de rate limit, contadores de quota,
// entradas de cache, flags de alerta, log de uso) vive aqui. Cada operação
// é atômica por chave; nenhuma transação multi-chave é necessária.
//
// Erros de conectividade devem ser embrulhados em ErrStoreUnavailable.
// Chave ausente em Get retorna ErrKeyNotFound.
type CounterStore interface {
	// IncrWithExpiry soma by na chave. O primeiro incremento (ou uma chave
	// sem expiração) define ttl; os seguintes só somam. Retorna o valor
	// pós-incremento e o TTL restante.
	IncrWithExpiry(ctx context.Context, key string, by int64, ttl time.Duration) (int64, time.Duration, error)
	// DecrBy subtrai by sem mexer na expiração.
	DecrBy(ctx context.Context, key string, by int64) (int64, error)

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX grava só se a chave não existir. Retorna true se gravou.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// ZAdd adiciona member com score e renova a expiração da chave (ttl > 0).
	ZAdd(ctx context.Context, key string, score float64, member []byte, ttl time.Duration) error
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([][]byte, error)
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) (int64, error)
}
