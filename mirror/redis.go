// Package mirror copies the latest prices into Redis so other processes can
// read them without a websocket. Only the current value of each cell is kept.
package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"crypto-prices-relay/store"

	"github.com/redis/go-redis/v9"
)

type Source interface {
	Snapshot() store.Snapshot
}

type RedisMirror struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

func NewRedisMirror(client *redis.Client, prefix string, logger *slog.Logger) *RedisMirror {
	return &RedisMirror{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

// Key returns the hash holding every exchange price of pair.
func Key(prefix, pair string) string {
	return fmt.Sprintf("%s:%s", prefix, pair)
}

// Flush writes snap with one HSET per pair in a single pipeline.
func (m *RedisMirror) Flush(ctx context.Context, snap store.Snapshot) error {
	if len(snap) == 0 {
		return nil
	}
	pipe := m.client.Pipeline()
	for pair, prices := range snap {
		fields := make([]any, 0, 2*len(prices))
		for exchange, price := range prices {
			fields = append(fields, exchange, strconv.FormatFloat(price, 'f', -1, 64))
		}
		pipe.HSet(ctx, Key(m.prefix, pair), fields...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mirror flush: %w", err)
	}
	return nil
}

// Run flushes the source every interval until ctx is done. Flush failures are
// logged and retried on the next tick.
func (m *RedisMirror) Run(ctx context.Context, source Source, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Flush(ctx, source.Snapshot()); err != nil && ctx.Err() == nil {
				m.logger.Warn("redis mirror flush failed", slog.Any("error", err))
			}
		}
	}
}
