// Package supervisor runs the exchange feeds for the lifetime of the process.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crypto-prices-relay/exchanges"

	"golang.org/x/sync/errgroup"
)

// Sink owns the price store and applies ticks received on a channel.
type Sink interface {
	Consume(ctx context.Context, ticks <-chan exchanges.Tick)
}

type Recorder interface {
	FeedRestarted(exchange string)
}

type Config struct {
	// IsolateFeeds restarts a failed feed on its own. When false the first
	// failure cancels every other feed.
	IsolateFeeds bool
	RestartDelay time.Duration
	// Buffer is the capacity of the channel between feeds and the store.
	Buffer int
}

type FeedStatus struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

type Supervisor struct {
	cfg      Config
	sink     Sink
	feeds    []exchanges.Feed
	recorder Recorder
	logger   *slog.Logger

	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	mu     sync.Mutex
	status map[string]*FeedStatus
	err    error
}

func New(cfg Config, sink Sink, feeds []exchanges.Feed, recorder Recorder, logger *slog.Logger) *Supervisor {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	status := make(map[string]*FeedStatus, len(feeds))
	for _, f := range feeds {
		status[f.Name()] = &FeedStatus{Name: f.Name()}
	}
	return &Supervisor{
		cfg:      cfg,
		sink:     sink,
		feeds:    feeds,
		recorder: recorder,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		status:   status,
	}
}

// EnsureRunning starts ingestion on the first call; later calls are no-ops.
// The feeds run on the supervisor's own context, not the caller's.
func (s *Supervisor) EnsureRunning() {
	s.once.Do(s.start)
}

func (s *Supervisor) start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	ticks := make(chan exchanges.Tick, s.cfg.Buffer)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sink.Consume(s.ctx, ticks)
	}()

	s.logger.Info("starting feeds",
		slog.Int("feeds", len(s.feeds)),
		slog.Bool("isolated", s.cfg.IsolateFeeds))

	if s.cfg.IsolateFeeds {
		for _, feed := range s.feeds {
			s.wg.Add(1)
			go func(feed exchanges.Feed) {
				defer s.wg.Done()
				s.runIsolated(feed, ticks)
			}(feed)
		}
		return
	}

	g, gctx := errgroup.WithContext(s.ctx)
	for _, feed := range s.feeds {
		feed := feed
		g.Go(func() error {
			s.setRunning(feed.Name())
			err := feed.Run(gctx, ticks)
			s.setStopped(feed.Name(), err, false)
			return err
		})
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := g.Wait()
		if err == nil || s.ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.logger.Error("ingestion stopped", slog.Any("error", err))
	}()
}

func (s *Supervisor) runIsolated(feed exchanges.Feed, ticks chan<- exchanges.Tick) {
	name := feed.Name()
	logger := s.logger.With(slog.String("exchange", name))
	for {
		s.setRunning(name)
		err := feed.Run(s.ctx, ticks)
		if s.ctx.Err() != nil {
			s.setStopped(name, nil, false)
			return
		}

		s.setStopped(name, err, true)
		if s.recorder != nil {
			s.recorder.FeedRestarted(name)
		}
		logger.Error("feed stopped, restarting",
			slog.Duration("retry_in", s.cfg.RestartDelay),
			slog.Any("error", err))

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(s.cfg.RestartDelay):
		}
	}
}

func (s *Supervisor) setRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[name].Running = true
}

func (s *Supervisor) setStopped(name string, err error, restart bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[name]
	st.Running = false
	if restart {
		st.Restarts++
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		st.LastError = err.Error()
	}
}

// Stop cancels every feed and waits until their connections are released.
func (s *Supervisor) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Supervisor) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Err reports the failure that stopped ingestion in non-isolated mode.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Status returns the state of each feed in registration order.
func (s *Supervisor) Status() []FeedStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FeedStatus, 0, len(s.feeds))
	for _, f := range s.feeds {
		out = append(out, *s.status[f.Name()])
	}
	return out
}
