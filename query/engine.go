// Package query answers filtered point-in-time lookups over the price store.
package query

import (
	"slices"

	"crypto-prices-relay/store"
)

type Source interface {
	Snapshot() store.Snapshot
}

// Filter selects records; nil fields match everything.
type Filter struct {
	Pair     *string `json:"pair"`
	Exchange *string `json:"exchange"`
}

// Record is one query result. Without an exchange filter it carries the full
// per-exchange map, otherwise a single exchange and price.
type Record struct {
	Pair      string             `json:"pair"`
	Exchanges map[string]float64 `json:"exchanges,omitempty"`
	Exchange  string             `json:"exchange,omitempty"`
	Price     *float64           `json:"price,omitempty"`
}

type Engine struct {
	source Source
}

func NewEngine(source Source) *Engine {
	return &Engine{source: source}
}

// Query returns matching records ordered by pair. No match yields an empty
// slice, never an error.
func (e *Engine) Query(f Filter) []Record {
	snap := e.source.Snapshot()

	var pairs []string
	if f.Pair != nil {
		if _, ok := snap[*f.Pair]; ok {
			pairs = []string{*f.Pair}
		}
	} else {
		pairs = make([]string, 0, len(snap))
		for pair := range snap {
			pairs = append(pairs, pair)
		}
		slices.Sort(pairs)
	}

	records := make([]Record, 0, len(pairs))
	for _, pair := range pairs {
		prices := snap[pair]
		if f.Exchange == nil {
			records = append(records, Record{Pair: pair, Exchanges: prices})
			continue
		}
		price, ok := prices[*f.Exchange]
		if !ok {
			continue
		}
		records = append(records, Record{Pair: pair, Exchange: *f.Exchange, Price: &price})
	}
	return records
}
