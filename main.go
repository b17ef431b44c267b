package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crypto-prices-relay/config"
	"crypto-prices-relay/exchanges"
	"crypto-prices-relay/logging"
	"crypto-prices-relay/metrics"
	"crypto-prices-relay/mirror"
	"crypto-prices-relay/query"
	"crypto-prices-relay/server"
	"crypto-prices-relay/store"
	"crypto-prices-relay/supervisor"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// App is the wired process: ingestion, the price store and the serving side.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	supervisor *supervisor.Supervisor
	server     *server.Server
	handler    http.Handler
	redis      *redis.Client
	mirror     *mirror.RedisMirror
}

func loggingConfig(c config.LogConfig) logging.Config {
	return logging.Config{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		FilePath:   c.FilePath,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

func krakenConfig(c config.KrakenConfig) exchanges.KrakenConfig {
	return exchanges.KrakenConfig{
		URL:              c.WSURL,
		BatchSize:        c.BatchSize,
		PingInterval:     c.PingInterval,
		HandshakeTimeout: c.HandshakeTimeout,
		Backoff:          exchanges.Backoff{Unit: c.BackoffUnit, Max: c.MaxBackoff},
		RetryDelay:       c.RetryDelay,
		StableAfter:      c.StableAfter,
	}
}

// buildFeeds returns the enabled feeds, Binance first.
func buildFeeds(cfg *config.Config, observer exchanges.Observer, logger *slog.Logger) []exchanges.Feed {
	var feeds []exchanges.Feed
	if cfg.Binance.Enabled {
		feeds = append(feeds, exchanges.NewBinanceFeed(cfg.Binance.URL, cfg.Binance.HandshakeTimeout, observer, logger))
	}
	if cfg.Kraken.Enabled {
		directory := exchanges.NewPairDirectory(cfg.Kraken.RESTURL, cfg.Kraken.RESTTimeout, logger)
		feeds = append(feeds, exchanges.NewKrakenFeed(krakenConfig(cfg.Kraken), directory, observer, logger))
	}
	return feeds
}

func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	prices := store.New()

	// Interface values stay nil when metrics are off.
	var (
		observer      exchanges.Observer
		queryRecorder query.Recorder
		feedRecorder  supervisor.Recorder
		metricsRoute  http.Handler
	)
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.New(reg, prices.Len)
		observer, queryRecorder, feedRecorder = m, m, m
		metricsRoute = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	sup := supervisor.New(supervisor.Config{
		IsolateFeeds: cfg.Supervisor.IsolateFeeds,
		RestartDelay: cfg.Supervisor.RestartDelay,
		Buffer:       cfg.Supervisor.Buffer,
	}, prices, buildFeeds(cfg, observer, logger), feedRecorder, logger)

	responder := query.NewResponder(query.NewEngine(prices), queryRecorder)
	srv := server.New(sup, responder, logger)

	app := &App{
		cfg:        cfg,
		logger:     logger,
		store:      prices,
		supervisor: sup,
		server:     srv,
		handler: srv.Handler(server.Routes{
			WSPath:      cfg.Server.Path,
			MetricsPath: cfg.Metrics.Path,
			Metrics:     metricsRoute,
		}),
	}

	if cfg.Redis.Addr != "" {
		app.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.mirror = mirror.NewRedisMirror(app.redis, cfg.Redis.Prefix, logger)
	}
	return app
}

// Run serves until ctx is cancelled, then shuts the server and the feeds down.
func (a *App) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: a.handler,
	}

	if a.cfg.Server.EagerStart {
		a.supervisor.EnsureRunning()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server starting",
			slog.String("addr", a.cfg.Server.Addr),
			slog.String("path", a.cfg.Server.Path))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		a.supervisor.Stop()
		if a.redis != nil {
			a.redis.Close()
		}
		return err
	})

	if a.mirror != nil {
		g.Go(func() error {
			a.mirror.Run(gctx, a.store, a.cfg.Redis.Interval)
			return nil
		})
	}

	return g.Wait()
}

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, json or toml)")
	eager := flag.Bool("eager", true, "start exchange feeds at boot instead of on the first client")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "eager" {
			cfg.Server.EagerStart = *eager
		}
	})

	logger, err := logging.New(loggingConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	gin.SetMode(cfg.Server.Mode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewApp(cfg, logger).Run(ctx); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
