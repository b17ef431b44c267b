package exchanges

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const assetPairsPath = "/0/public/AssetPairs"

// Directory maps Kraken websocket pair names (wsname, e.g. "ETH/USDT") to the
// pair codes used as canonical keys. It never changes once built.
type Directory struct {
	pairs   map[string]string
	wsNames []string
}

func NewDirectory(pairs map[string]string) *Directory {
	d := &Directory{
		pairs:   make(map[string]string, len(pairs)),
		wsNames: make([]string, 0, len(pairs)),
	}
	for wsName, code := range pairs {
		d.pairs[wsName] = code
		d.wsNames = append(d.wsNames, wsName)
	}
	slices.Sort(d.wsNames)
	return d
}

// Canonical resolves a Kraken wsname to its canonical pair key.
func (d *Directory) Canonical(wsName string) (string, bool) {
	if d == nil {
		return "", false
	}
	code, ok := d.pairs[wsName]
	return code, ok
}

// WSNames returns every known wsname in lexicographic order.
func (d *Directory) WSNames() []string {
	return slices.Clone(d.wsNames)
}

func (d *Directory) Len() int {
	return len(d.pairs)
}

type assetPairsResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		WSName string `json:"wsname"`
	} `json:"result"`
}

// PairDirectory fetches the Kraken tradable pair directory once and caches it
// for the lifetime of the process. Failed fetches are not cached.
type PairDirectory struct {
	client *resty.Client
	logger *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	dir   *Directory
}

func NewPairDirectory(restURL string, timeout time.Duration, logger *slog.Logger) *PairDirectory {
	client := resty.New().
		SetBaseURL(strings.TrimRight(restURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &PairDirectory{
		client: client,
		logger: logger,
	}
}

func (p *PairDirectory) cached() *Directory {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dir
}

// Get returns the cached directory, fetching it on first use. Concurrent
// first callers share one request.
func (p *PairDirectory) Get(ctx context.Context) (*Directory, error) {
	if dir := p.cached(); dir != nil {
		return dir, nil
	}

	// The shared fetch must not die with whichever caller happened to start it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan("asset-pairs", func() (interface{}, error) {
		if dir := p.cached(); dir != nil {
			return dir, nil
		}
		dir, err := p.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.dir = dir
		p.mu.Unlock()
		return dir, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Directory), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *PairDirectory) fetch(ctx context.Context) (*Directory, error) {
	var body assetPairsResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get(assetPairsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %s", ErrDirectoryUnavailable, resp.Status())
	}
	if len(body.Error) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryUnavailable, strings.Join(body.Error, "; "))
	}

	pairs := make(map[string]string, len(body.Result))
	for code, info := range body.Result {
		if info.WSName == "" {
			continue
		}
		pairs[info.WSName] = code
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: empty result", ErrDirectoryUnavailable)
	}

	p.logger.Info("kraken pair directory loaded", slog.Int("pairs", len(pairs)))
	return NewDirectory(pairs), nil
}
