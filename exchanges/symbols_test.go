package exchanges

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNormalizeBinance(t *testing.T) {
	tests := map[string]string{
		"ETH_USDT": "ETHUSDT",
		"ETHUSDT":  "ETHUSDT",
		"eth_usdt": "ETHUSDT",
		"A_B_C":    "ABC",
	}
	for in, want := range tests {
		first := NormalizeBinance(in)
		second := NormalizeBinance(in)
		if first != want {
			t.Errorf("NormalizeBinance(%q): expected %s, got %s", in, want, first)
		}
		if first != second {
			t.Errorf("NormalizeBinance(%q) is not deterministic: %s vs %s", in, first, second)
		}
	}
}

func TestMidPrice(t *testing.T) {
	price, err := MidPrice("2999.00", "3001.00")
	if err != nil {
		t.Fatal(err)
	}
	if price != 3000.0 {
		t.Errorf("Expected 3000.0, got %f", price)
	}

	price, err = MidPrice("0.1", "0.2")
	if err != nil {
		t.Fatal(err)
	}
	if price != 0.15 {
		t.Errorf("Expected exact decimal mid 0.15, got %v", price)
	}

	if _, err := MidPrice("abc", "1"); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("Expected ErrMalformedFrame, got %v", err)
	}
}

func TestChunk(t *testing.T) {
	items := make([]string, 120)
	for i := range items {
		items[i] = fmt.Sprintf("P%03d/USD", i)
	}

	batches := Chunk(items, 50)

	sizes := []int{}
	for _, b := range batches {
		sizes = append(sizes, len(b))
	}
	if fmt.Sprint(sizes) != "[50 50 20]" {
		t.Fatalf("Expected batch sizes [50 50 20], got %v", sizes)
	}

	seen := map[string]bool{}
	i := 0
	for _, b := range batches {
		for _, item := range b {
			if seen[item] {
				t.Errorf("Duplicate item %s", item)
			}
			seen[item] = true
			if item != items[i] {
				t.Errorf("Expected %s at position %d, got %s", items[i], i, item)
			}
			i++
		}
	}
	if len(seen) != len(items) {
		t.Errorf("Expected %d items, got %d", len(items), len(seen))
	}

	if Chunk(nil, 50) != nil {
		t.Error("Expected no batches for empty input")
	}
	if got := Chunk([]string{"a"}, 50); len(got) != 1 || len(got[0]) != 1 {
		t.Errorf("Expected single batch, got %v", got)
	}
}

func TestChunkBatchesDoNotAlias(t *testing.T) {
	items := []string{"a", "b", "c"}
	batches := Chunk(items, 2)

	batches[0] = append(batches[0], "x")
	if items[2] != "c" {
		t.Errorf("Expected appending to a batch not to overwrite the source, got %v", items)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := Backoff{Unit: time.Second, Max: 30 * time.Second}

	for n := 1; n <= 10; n++ {
		want := time.Duration(min(30, 1<<n)) * time.Second
		if got := b.Delay(n); got != want {
			t.Errorf("Delay(%d): expected %s, got %s", n, want, got)
		}
	}
	if got := b.Delay(1000); got != 30*time.Second {
		t.Errorf("Expected cap for large attempts, got %s", got)
	}
	if got := b.Delay(0); got != time.Second {
		t.Errorf("Expected one unit for attempt 0, got %s", got)
	}
}

func TestNormalizeKraken(t *testing.T) {
	dir := NewDirectory(map[string]string{"ETH/USDT": "ETHUSDT"})

	if pair, ok := NormalizeKraken("ETH/USDT", dir); !ok || pair != "ETHUSDT" {
		t.Errorf("Expected ETHUSDT, got %q (found=%v)", pair, ok)
	}
	if _, ok := NormalizeKraken("DOGE/EUR", dir); ok {
		t.Error("Expected unknown wsname to be unresolved")
	}
	if _, ok := NormalizeKraken("ETH/USDT", nil); ok {
		t.Error("Expected nothing to resolve before the directory is loaded")
	}
}
