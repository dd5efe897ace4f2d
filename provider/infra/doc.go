// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore: counter store compartilhado via github.com/redis/go-redis/v9
//   - MemoryCounterStore: mesmo contrato em memória, para testes e desenvolvimento
//   - HTTPProvider: cliente do provedor de dados imobiliários com validação de schema (gjson)
//   - sinks de alerta (log, Redis pub/sub, Kafka) e o observer Prometheus
//   - LocalBucketStore: token bucket por chave usando golang.org/x/time/rate
package infra
