package exchanges

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const DefaultKrakenURL = "wss://ws.kraken.com"

type KrakenSubscription struct {
	Name string `json:"name"`
}

type KrakenSubscribeMessage struct {
	Event        string             `json:"event"`
	Pair         []string           `json:"pair"`
	Subscription KrakenSubscription `json:"subscription"`
}

// KrakenTicker is the payload object of a v1 ticker frame:
// [channelID, {"a": [...], "b": [...], ...}, "ticker", "ETH/USDT"]
type KrakenTicker struct {
	Ask []decimal.Decimal `json:"a"`
	Bid []decimal.Decimal `json:"b"`
}

// Backoff computes the reconnect delay after consecutive disconnects:
// min(Max, 2^attempt * Unit).
type Backoff struct {
	Unit time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Unit
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= b.Max {
			return b.Max
		}
	}
	return min(d, b.Max)
}

type KrakenConfig struct {
	URL              string
	BatchSize        int
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	Backoff          Backoff
	// RetryDelay is used after failures that are not disconnects.
	RetryDelay time.Duration
	// StableAfter resets the backoff attempt counter when a connection lived
	// at least this long. Zero keeps counting for the whole process lifetime.
	StableAfter time.Duration
}

func DefaultKrakenConfig() KrakenConfig {
	return KrakenConfig{
		URL:              DefaultKrakenURL,
		BatchSize:        50,
		PingInterval:     20 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		Backoff:          Backoff{Unit: time.Second, Max: 30 * time.Second},
		RetryDelay:       5 * time.Second,
		StableAfter:      time.Minute,
	}
}

type KrakenFeed struct {
	cfg       KrakenConfig
	directory *PairDirectory
	dialer    *websocket.Dialer
	observer  Observer
	logger    *slog.Logger
}

func NewKrakenFeed(cfg KrakenConfig, directory *PairDirectory, observer Observer, logger *slog.Logger) *KrakenFeed {
	if cfg.URL == "" {
		cfg.URL = DefaultKrakenURL
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &KrakenFeed{
		cfg:       cfg,
		directory: directory,
		dialer:    newDialer(cfg.HandshakeTimeout),
		observer:  observerOrNop(observer),
		logger:    logger.With(slog.String("exchange", Kraken)),
	}
}

func (f *KrakenFeed) Name() string { return Kraken }

// Run loads the pair directory, then keeps a subscribed ticker stream open
// until ctx is cancelled. Only a directory failure ends Run with an error.
func (f *KrakenFeed) Run(ctx context.Context, ticks chan<- Tick) error {
	dir, err := f.directory.Get(ctx)
	if err != nil {
		return fmt.Errorf("kraken: %w", err)
	}
	batches := Chunk(dir.WSNames(), f.cfg.BatchSize)

	attempt := 0
	for {
		res := f.session(ctx, dir, batches, ticks)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var delay time.Duration
		if res.streamed && isDisconnect(res.err) {
			if f.cfg.StableAfter > 0 && res.uptime >= f.cfg.StableAfter {
				attempt = 0
			}
			attempt++
			delay = f.cfg.Backoff.Delay(attempt)
			f.observer.Reconnect(Kraken, "disconnect")
			f.logger.Warn("Kraken stream closed",
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", delay),
				slog.Duration("uptime", res.uptime),
				slog.Any("error", res.err))
		} else {
			delay = f.cfg.RetryDelay
			f.observer.Reconnect(Kraken, "error")
			f.logger.Error("Kraken stream error",
				slog.Duration("retry_in", delay),
				slog.Any("error", res.err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

type sessionResult struct {
	streamed bool
	uptime   time.Duration
	err      error
}

func (f *KrakenFeed) session(ctx context.Context, dir *Directory, batches [][]string, ticks chan<- Tick) sessionResult {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return sessionResult{err: fmt.Errorf("kraken dial: %w", err)}
	}
	stop := closeOnDone(ctx, conn)
	defer stop()

	connectedAt := time.Now()
	result := func(err error) sessionResult {
		return sessionResult{streamed: true, uptime: time.Since(connectedAt), err: err}
	}

	for _, batch := range batches {
		msg := KrakenSubscribeMessage{
			Event:        "subscribe",
			Pair:         batch,
			Subscription: KrakenSubscription{Name: "ticker"},
		}
		if err := conn.WriteJSON(msg); err != nil {
			return result(fmt.Errorf("kraken subscribe: %w", err))
		}
	}
	f.logger.Info("connected to Kraken ticker stream",
		slog.Int("pairs", dir.Len()),
		slog.Int("batches", len(batches)))

	stopPing := keepAlive(conn, f.cfg.PingInterval)
	defer stopPing()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return result(err)
		}

		t, ok, err := ParseKrakenFrame(message, dir)
		if err != nil {
			return result(err)
		}
		if !ok {
			continue
		}
		if t.Pair == "" {
			f.observer.TickDropped(Kraken, "unknown_pair")
			continue
		}
		f.observer.TickReceived(Kraken)
		if err := send(ctx, ticks, t); err != nil {
			return result(err)
		}
	}
}

// ParseKrakenFrame extracts a tick from a ticker frame. ok is false for any
// other frame shape (subscription status, heartbeats, system events). A ticker
// for a wsname missing from dir is returned with ok set and an empty Pair.
func ParseKrakenFrame(message []byte, dir *Directory) (t Tick, ok bool, err error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(message, &frame); err != nil {
		if !json.Valid(message) {
			return Tick{}, false, fmt.Errorf("%w: kraken: %v", ErrMalformedFrame, err)
		}
		return Tick{}, false, nil
	}
	if len(frame) <= 1 {
		return Tick{}, false, nil
	}

	payload := frame[1]
	if len(payload) == 0 || payload[0] != '{' {
		return Tick{}, false, nil
	}
	var wsName string
	if err := json.Unmarshal(frame[len(frame)-1], &wsName); err != nil {
		return Tick{}, false, nil
	}

	var ticker KrakenTicker
	if err := json.Unmarshal(payload, &ticker); err != nil {
		return Tick{}, false, fmt.Errorf("%w: kraken %s: %v", ErrMalformedFrame, wsName, err)
	}
	if len(ticker.Bid) == 0 || len(ticker.Ask) == 0 {
		return Tick{}, false, nil
	}

	t = Tick{
		Native:   wsName,
		Exchange: Kraken,
		Price:    midPrice(ticker.Bid[0], ticker.Ask[0]),
	}
	if pair, found := NormalizeKraken(wsName, dir); found {
		t.Pair = pair
	}
	return t, true, nil
}
