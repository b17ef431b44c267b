package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crypto-prices-relay/config"
	"crypto-prices-relay/exchanges"

	"github.com/gin-gonic/gin"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.EagerStart = false
	cfg.Server.ShutdownTimeout = time.Second
	cfg.Redis.Addr = ""
	return cfg
}

func TestBuildFeeds(t *testing.T) {
	cfg := testConfig(t)

	feeds := buildFeeds(cfg, nil, discardLogger)
	if len(feeds) != 2 {
		t.Fatalf("Expected 2 feeds, got %d", len(feeds))
	}
	if feeds[0].Name() != exchanges.Binance || feeds[1].Name() != exchanges.Kraken {
		t.Errorf("Expected binance then kraken, got %s, %s", feeds[0].Name(), feeds[1].Name())
	}

	cfg.Binance.Enabled = false
	feeds = buildFeeds(cfg, nil, discardLogger)
	if len(feeds) != 1 || feeds[0].Name() != exchanges.Kraken {
		t.Errorf("Expected only kraken, got %v", feeds)
	}
}

func TestKrakenConfigMapping(t *testing.T) {
	cfg := testConfig(t)
	kc := krakenConfig(cfg.Kraken)

	if kc.URL != cfg.Kraken.WSURL {
		t.Errorf("Expected url %s, got %s", cfg.Kraken.WSURL, kc.URL)
	}
	if kc.BatchSize != 50 {
		t.Errorf("Expected batch size 50, got %d", kc.BatchSize)
	}
	if kc.Backoff.Delay(10) != 30*time.Second {
		t.Errorf("Expected backoff capped at 30s, got %s", kc.Backoff.Delay(10))
	}
	if kc.StableAfter != time.Minute {
		t.Errorf("Expected stable_after 1m, got %s", kc.StableAfter)
	}
}

func TestAppRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	app := NewApp(cfg, discardLogger)

	ts := httptest.NewServer(app.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var health struct {
		Status string `json:"status"`
		Feeds  []struct {
			Name    string `json:"name"`
			Running bool   `json:"running"`
		} `json:"feeds"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || len(health.Feeds) != 2 {
		t.Errorf("Unexpected health %+v", health)
	}
	for _, f := range health.Feeds {
		if f.Running {
			t.Errorf("Expected %s not to run before the first client", f.Name)
		}
	}
	if app.supervisor.Started() {
		t.Error("Expected ingestion to stay idle without eager start")
	}

	mresp, err := http.Get(ts.URL + cfg.Metrics.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	if !strings.Contains(string(body), "prices_relay_pairs") {
		t.Errorf("Expected the pairs gauge in /metrics output")
	}
}

func TestAppWithoutMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false
	app := NewApp(cfg, discardLogger)

	ts := httptest.NewServer(app.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + cfg.Metrics.Path)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for metrics when disabled, got %d", resp.StatusCode)
	}
}

func TestAppRunStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	app := NewApp(testConfig(t), discardLogger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected clean shutdown, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
