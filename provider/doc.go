// Package provider expõe o gateway do provedor de dados imobiliários via HTTP.
//
// Organização:
//
//   - domain: tipos, erros e contratos (Provider, CounterStore, AlertSink, SlotPool)
//   - application: rate limiter, quota, cache, retry, uso e o pipeline (Gateway)
//   - infra: adapters (Redis, memória, cliente HTTP do provedor, Kafka, Prometheus)
//
// Este pacote só traduz HTTP para chamadas do Gateway e erros tipados para
// status codes.
package provider
