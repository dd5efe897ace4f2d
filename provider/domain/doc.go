// Package domain define contratos e tipos de domínio do gateway de provedor
// (rate limit, quota, cache, retry e telemetria de uso).
//
// Este pacote não depende de net/http, de Redis nem de implementações concretas.
// A intenção é permitir testes de unidade puros e desacoplar as regras
// do pipeline de detalhes de infraestrutura.
package domain
