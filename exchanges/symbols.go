package exchanges

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// NormalizeBinance converts a Binance symbol to its canonical pair key.
// ETH_USDT -> ETHUSDT
func NormalizeBinance(symbol string) string {
	return strings.ToUpper(strings.ReplaceAll(symbol, "_", ""))
}

// NormalizeKraken resolves a Kraken wsname through the pair directory. ok is
// false when the wsname is unknown or the directory is not loaded yet.
func NormalizeKraken(wsName string, dir *Directory) (pair string, ok bool) {
	return dir.Canonical(wsName)
}

// MidPrice returns (bid + ask) / 2 for the decimal strings sent by exchanges.
func MidPrice(bid, ask string) (float64, error) {
	b, err := decimal.NewFromString(bid)
	if err != nil {
		return 0, fmt.Errorf("%w: bid %q: %v", ErrMalformedFrame, bid, err)
	}
	a, err := decimal.NewFromString(ask)
	if err != nil {
		return 0, fmt.Errorf("%w: ask %q: %v", ErrMalformedFrame, ask, err)
	}
	return midPrice(b, a), nil
}

func midPrice(bid, ask decimal.Decimal) float64 {
	mid, _ := bid.Add(ask).Div(two).Float64()
	return mid
}

// Chunk splits items into consecutive batches of at most size elements.
func Chunk(items []string, size int) [][]string {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	batches := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end:end])
	}
	return batches
}
