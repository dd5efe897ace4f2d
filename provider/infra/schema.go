package infra

import (
	"fmt"
	"strings"

	"provider-gateway/provider/domain"

	"github.com/tidwall/gjson"
)

// fieldKind é o tipo JSON esperado num caminho gjson.
type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindObject
	kindArray
)

func (k fieldKind) String() string {
	switch k {
	case kindString:
		return "string"
	case kindNumber:
		return "number"
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	}
	return "unknown"
}

type field struct {
	path     string
	kind     fieldKind
	optional bool
}

// schema é o contrato mínimo de um endpoint: caminhos obrigatórios com tipo.
// items valida cada elemento do array em itemsPath.
type schema struct {
	name      string
	fields    []field
	itemsPath string
	items     []field
}

func req(path string, k fieldKind) field { return field{path: path, kind: k} }
func opt(path string, k fieldKind) field { return field{path: path, kind: k, optional: true} }

var (
	propertySchemaV1 = schema{
		name: "property.v1",
		fields: []field{
			req("id", kindString),
			req("address", kindObject),
			req("address.line1", kindString),
			req("address.city", kindString),
			req("address.state", kindString),
			req("address.zip", kindString),
			req("property_type", kindString),
			req("beds", kindNumber),
			req("baths", kindNumber),
			req("sqft", kindNumber),
			opt("lot_sqft", kindNumber),
			opt("year_built", kindNumber),
			opt("last_sale", kindObject),
			opt("last_sale.price", kindNumber),
			opt("last_sale.date", kindString),
		},
	}

	valuationSchemaV1 = schema{
		name: "valuation.v1",
		fields: []field{
			req("property_id", kindString),
			req("value", kindObject),
			req("value.estimate", kindNumber),
			req("value.low", kindNumber),
			req("value.high", kindNumber),
			req("confidence", kindNumber),
			req("valued_at", kindString),
		},
	}

	marketSchemaV1 = schema{
		name: "market.v1",
		fields: []field{
			req("zip", kindString),
			req("median_sale_price", kindNumber),
			req("median_rent", kindNumber),
			req("avg_days_on_market", kindNumber),
			req("active_inventory", kindNumber),
			opt("yoy_price_change", kindNumber),
			req("as_of", kindString),
		},
	}

	listingsSchemaV1 = schema{
		name:      "listings.v1",
		fields:    []field{req("results", kindArray)},
		itemsPath: "results",
		items: []field{
			req("listing_id", kindString),
			req("property_id", kindString),
			req("address", kindObject),
			req("address.line1", kindString),
			req("address.city", kindString),
			req("address.state", kindString),
			req("address.zip", kindString),
			req("price", kindNumber),
			req("status", kindString),
			req("beds", kindNumber),
			req("baths", kindNumber),
			req("sqft", kindNumber),
			req("listed_at", kindString),
		},
	}
)

// validate devolve um *domain.Error KindSchema descrevendo todas as violações.
func (s schema) validate(body []byte) error {
	if !gjson.ValidBytes(body) {
		return &domain.Error{Kind: domain.KindSchema, Message: s.name + ": body is not valid JSON"}
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return &domain.Error{Kind: domain.KindSchema, Message: s.name + ": body is not a JSON object"}
	}

	problems := checkFields(root, s.fields, "")
	if s.itemsPath != "" {
		for i, item := range root.Get(s.itemsPath).Array() {
			problems = append(problems, checkFields(item, s.items, fmt.Sprintf("%s.%d.", s.itemsPath, i))...)
		}
	}
	if len(problems) > 0 {
		return &domain.Error{Kind: domain.KindSchema, Message: s.name + ": " + strings.Join(problems, "; ")}
	}
	return nil
}

func checkFields(node gjson.Result, fields []field, prefix string) []string {
	var problems []string
	for _, f := range fields {
		v := node.Get(f.path)
		if !v.Exists() || v.Type == gjson.Null {
			if !f.optional {
				problems = append(problems, prefix+f.path+" missing")
			}
			continue
		}
		if !matches(v, f.kind) {
			problems = append(problems, fmt.Sprintf("%s%s want %s", prefix, f.path, f.kind))
		}
	}
	return problems
}

func matches(v gjson.Result, k fieldKind) bool {
	switch k {
	case kindString:
		return v.Type == gjson.String
	case kindNumber:
		return v.Type == gjson.Number
	case kindObject:
		return v.IsObject()
	case kindArray:
		return v.IsArray()
	}
	return false
}
