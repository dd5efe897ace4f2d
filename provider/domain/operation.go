package domain

// Operation identifica uma operação tipada do gateway.
type Operation string

const (
	OpFetchProperty   Operation = "fetch_property"
	OpFetchValuation  Operation = "fetch_valuation"
	OpFetchMarketData Operation = "fetch_market_data"
	OpSearchListings  Operation = "search_listings"
)

// OperationSpec diz quanto a operação custa e por quanto tempo o resultado vale.
type OperationSpec struct {
	Op        Operation
	CostUnits int64
	CacheType CacheType
}

var operationSpecs = map[Operation]OperationSpec{
	OpFetchProperty:   {Op: OpFetchProperty, CostUnits: 1, CacheType: CachePropertyRecord},
	OpFetchValuation:  {Op: OpFetchValuation, CostUnits: 2, CacheType: CacheValuation},
	OpFetchMarketData: {Op: OpFetchMarketData, CostUnits: 1, CacheType: CacheMarketData},
	OpSearchListings:  {Op: OpSearchListings, CostUnits: 3, CacheType: CacheListing},
}

// SpecFor retorna a especificação da operação; ok=false se desconhecida.
func SpecFor(op Operation) (OperationSpec, bool) {
	s, ok := operationSpecs[op]
	return s, ok
}
