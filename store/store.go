// Package store keeps the latest mid-price per canonical pair and exchange.
package store

import (
	"context"
	"sync"

	"crypto-prices-relay/exchanges"
)

// Snapshot is a point-in-time copy of the store: pair -> exchange -> price.
type Snapshot map[string]map[string]float64

type Store struct {
	prices      map[string]map[string]float64
	mappings    map[string]map[string]string // exchange -> pair -> last native symbol
	pricesMutex sync.RWMutex
}

func New() *Store {
	return &Store{
		prices:   make(map[string]map[string]float64),
		mappings: make(map[string]map[string]string),
	}
}

// Upsert records price as the latest value for (pair, exchange).
func (s *Store) Upsert(pair, exchange string, price float64) {
	s.pricesMutex.Lock()
	s.upsertLocked(pair, exchange, price)
	s.pricesMutex.Unlock()
}

func (s *Store) upsertLocked(pair, exchange string, price float64) {
	if s.prices[pair] == nil {
		s.prices[pair] = make(map[string]float64)
	}
	s.prices[pair][exchange] = price
}

// Apply upserts the tick's price and remembers its native symbol.
func (s *Store) Apply(t exchanges.Tick) {
	if t.Pair == "" || t.Exchange == "" {
		return
	}
	s.pricesMutex.Lock()
	defer s.pricesMutex.Unlock()

	s.upsertLocked(t.Pair, t.Exchange, t.Price)
	if t.Native != "" {
		if s.mappings[t.Exchange] == nil {
			s.mappings[t.Exchange] = make(map[string]string)
		}
		s.mappings[t.Exchange][t.Pair] = t.Native
	}
}

// Consume applies ticks in arrival order until ctx is done or ticks is closed.
// It is meant to be the only writer of the store.
func (s *Store) Consume(ctx context.Context, ticks <-chan exchanges.Tick) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ticks:
			if !ok {
				return
			}
			s.Apply(t)
		}
	}
}

func (s *Store) Snapshot() Snapshot {
	s.pricesMutex.RLock()
	defer s.pricesMutex.RUnlock()

	snap := make(Snapshot, len(s.prices))
	for pair, prices := range s.prices {
		cp := make(map[string]float64, len(prices))
		for exchange, price := range prices {
			cp[exchange] = price
		}
		snap[pair] = cp
	}
	return snap
}

// Mapping returns the last native symbol an exchange used for pair.
func (s *Store) Mapping(exchange, pair string) (string, bool) {
	s.pricesMutex.RLock()
	defer s.pricesMutex.RUnlock()
	native, ok := s.mappings[exchange][pair]
	return native, ok
}

// Len returns the number of pairs with at least one price.
func (s *Store) Len() int {
	s.pricesMutex.RLock()
	defer s.pricesMutex.RUnlock()
	return len(s.prices)
}
