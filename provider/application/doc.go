// Package application contém os casos de uso do gateway de provedor:
// rate limiter, quota manager, cache de respostas, retry controller,
// usage tracker e o pipeline que compõe tudo em volta da chamada crua.
//
// Ele depende apenas do pacote domain (contratos) e não conhece net/http
// nem Redis. Ex.: RateLimiter.Admit(ctx, conta, prioridade) retorna um
// RateLimitResult; Gateway.ForAccount(...).FetchProperty(ctx, id) roda o
// pipeline inteiro.
package application
