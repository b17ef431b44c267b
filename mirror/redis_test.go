package mirror

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"crypto-prices-relay/exchanges"
	"crypto-prices-relay/store"

	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	if got := Key("prices", "ETHUSDT"); got != "prices:ETHUSDT" {
		t.Errorf("Expected prices:ETHUSDT, got %s", got)
	}
}

func TestFlushEmptySnapshotIsNoop(t *testing.T) {
	// The client points nowhere: an empty flush must not touch the network.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	m := NewRedisMirror(client, "prices", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := m.Flush(context.Background(), store.Snapshot{}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestFlushLive(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	prefix := "prices-test-" + time.Now().Format("150405.000000")
	s := store.New()
	s.Upsert("ETHUSDT", exchanges.Binance, 3000.0)
	s.Upsert("ETHUSDT", exchanges.Kraken, 2999.5)

	m := NewRedisMirror(client, prefix, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := m.Flush(ctx, s.Snapshot()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	defer client.Del(ctx, Key(prefix, "ETHUSDT"))

	got, err := client.HGetAll(ctx, Key(prefix, "ETHUSDT")).Result()
	if err != nil {
		t.Fatal(err)
	}
	if got[exchanges.Binance] != "3000" || got[exchanges.Kraken] != "2999.5" {
		t.Errorf("Unexpected hash %v", got)
	}
}
