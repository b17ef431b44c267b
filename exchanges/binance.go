package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const DefaultBinanceURL = "wss://stream.binance.com:9443/ws/!ticker@arr"

// BinanceTicker is one record of the !ticker@arr aggregate stream.
type BinanceTicker struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	BestBid   string `json:"b"`
	BestAsk   string `json:"a"`
}

// BinanceFeed streams the all-symbols ticker array. It does not reconnect on
// its own: a disconnect or an unparseable frame ends Run with an error.
type BinanceFeed struct {
	url      string
	dialer   *websocket.Dialer
	observer Observer
	logger   *slog.Logger
}

func NewBinanceFeed(url string, handshakeTimeout time.Duration, observer Observer, logger *slog.Logger) *BinanceFeed {
	if url == "" {
		url = DefaultBinanceURL
	}
	return &BinanceFeed{
		url:      url,
		dialer:   newDialer(handshakeTimeout),
		observer: observerOrNop(observer),
		logger:   logger.With(slog.String("exchange", Binance)),
	}
}

func (f *BinanceFeed) Name() string { return Binance }

func (f *BinanceFeed) Run(ctx context.Context, ticks chan<- Tick) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("binance dial: %w", err)
	}
	stop := closeOnDone(ctx, conn)
	defer stop()

	f.logger.Info("connected to Binance ticker stream", slog.String("url", f.url))

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance read: %w", err)
		}

		parsed, err := ParseBinanceFrame(message)
		if err != nil {
			return err
		}
		for _, t := range parsed {
			f.observer.TickReceived(Binance)
			if err := send(ctx, ticks, t); err != nil {
				return err
			}
		}
	}
}

// ParseBinanceFrame decodes one !ticker@arr frame into ticks. Any record with
// an unparseable price fails the whole frame.
func ParseBinanceFrame(message []byte) ([]Tick, error) {
	var tickers []BinanceTicker
	if err := json.Unmarshal(message, &tickers); err != nil {
		return nil, fmt.Errorf("%w: binance: %v", ErrMalformedFrame, err)
	}

	parsed := make([]Tick, 0, len(tickers))
	for _, ticker := range tickers {
		if ticker.Symbol == "" {
			return nil, fmt.Errorf("%w: binance: record without symbol", ErrMalformedFrame)
		}
		price, err := MidPrice(ticker.BestBid, ticker.BestAsk)
		if err != nil {
			return nil, fmt.Errorf("binance %s: %w", ticker.Symbol, err)
		}
		parsed = append(parsed, Tick{
			Pair:     NormalizeBinance(ticker.Symbol),
			Native:   ticker.Symbol,
			Exchange: Binance,
			Price:    price,
		})
	}
	return parsed, nil
}
