package exchanges

import (
	"context"
	"errors"
)

const (
	Binance = "binance"
	Kraken  = "kraken"
)

var (
	ErrDirectoryUnavailable = errors.New("kraken pair directory unavailable")
	ErrMalformedFrame       = errors.New("malformed frame")
)

// Tick is a single exchange's latest mid-price for a canonical pair.
type Tick struct {
	Pair     string
	Native   string
	Exchange string
	Price    float64
}

// Feed is a long-running exchange stream. Run blocks until ctx is cancelled
// or the feed fails; ticks are delivered in receipt order.
type Feed interface {
	Name() string
	Run(ctx context.Context, ticks chan<- Tick) error
}

// Observer receives ingestion events. A nil Observer is allowed everywhere.
type Observer interface {
	TickReceived(exchange string)
	TickDropped(exchange, reason string)
	Reconnect(exchange, kind string)
}

type nopObserver struct{}

func (nopObserver) TickReceived(string)        {}
func (nopObserver) TickDropped(string, string) {}
func (nopObserver) Reconnect(string, string)   {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}

func send(ctx context.Context, ticks chan<- Tick, t Tick) error {
	select {
	case ticks <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
