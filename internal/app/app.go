// Package app wires all ccoli subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates the assistant brain and
// validates configuration, Run accepts device connections and drives the
// proactive tick loop, and Shutdown tears everything down in order.
//
// For testing, inject mock providers through the [Providers] struct and use
// functional options ([WithListener], [WithBrain], etc.) for the rest.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwhan-dev/ccoli/internal/agent"
	"github.com/jwhan-dev/ccoli/internal/brain"
	"github.com/jwhan-dev/ccoli/internal/config"
	"github.com/jwhan-dev/ccoli/internal/health"
	"github.com/jwhan-dev/ccoli/internal/observe"
	"github.com/jwhan-dev/ccoli/internal/robot"
	"github.com/jwhan-dev/ccoli/internal/session"
	"github.com/jwhan-dev/ccoli/internal/wire"
	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/provider/stt"
	"github.com/jwhan-dev/ccoli/pkg/provider/tts"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

const (
	// acceptBackoff is the pause after a failed Accept before retrying.
	acceptBackoff = time.Second

	// tickInterval is how often the brain is polled for timers, reminders,
	// and proactive messages.
	tickInterval = 15 * time.Second
)

// Providers holds the model backends the server runs on. All three are
// required. Populated by main.go from the config.
type Providers struct {
	Chat        llm.Chat
	Transcriber stt.Transcriber
	Synthesizer tts.Synthesizer
}

// App owns all subsystem lifetimes: the TCP listener, per-device sessions,
// the assistant brain, and the auxiliary HTTP endpoint.
type App struct {
	cfg       *config.Config
	providers *Providers
	catalog   []config.CatalogEntry
	mode      types.Mode
	log       *slog.Logger

	brain    *brain.Brain
	counters *observe.Counters
	metrics  *observe.Metrics

	listener net.Listener
	httpSrv  *http.Server

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	wg       sync.WaitGroup

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCatalog replaces the built-in voice command catalog.
func WithCatalog(entries []config.CatalogEntry) Option {
	return func(a *App) { a.catalog = entries }
}

// WithBrain injects an assistant brain instead of creating one from config.
func WithBrain(b *brain.Brain) Option {
	return func(a *App) { a.brain = b }
}

// WithListener injects a pre-bound listener instead of binding from config.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithCounters injects the cumulative counters backing the shutdown banner.
func WithCounters(c *observe.Counters) Option {
	return func(a *App) { a.counters = c }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go; the brain is built from config unless injected.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		sessions:  make(map[*session.Session]struct{}),
		metrics:   observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.catalog == nil {
		a.catalog = config.DefaultCatalog()
	}
	if a.counters == nil {
		a.counters = observe.NewCounters()
	}

	mode, err := types.ParseMode(cfg.Server.InitialMode)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.mode = mode

	if a.brain == nil {
		if err := a.initBrain(); err != nil {
			return nil, fmt.Errorf("app: init brain: %w", err)
		}
	}

	return a, nil
}

// initBrain assembles the assistant brain from config. Features without
// configuration (weather key, news feed) are simply absent.
func (a *App) initBrain() error {
	memory, err := brain.NewMemory(a.cfg.Memory.Dir, a.providers.Chat, a.cfg.Memory.RefreshEvery, a.log)
	if err != nil {
		return err
	}
	scheduler, err := brain.NewScheduler(filepath.Join(a.cfg.Memory.Dir, "schedule.json"), a.log)
	if err != nil {
		return err
	}

	opts := brain.Options{
		Personality: a.cfg.Assistant.Personality,
		Memory:      memory,
		Scheduler:   scheduler,
		Logger:      a.log,
	}
	if a.cfg.Weather.APIKey != "" {
		opts.Weather = brain.NewWeather(a.cfg.Weather.APIKey, a.cfg.Weather.Lat, a.cfg.Weather.Lon)
	}
	if a.cfg.Assistant.NewsFeed != "" {
		opts.RSS = brain.NewRSS(a.cfg.Assistant.NewsFeed)
	}
	if a.cfg.Assistant.Proactive {
		opts.Proactive = brain.NewProactive(a.cfg.Assistant.ProactiveInterval())
	}

	a.brain = brain.New(a.cfg.Assistant.Name, opts)
	return nil
}

// Counters returns the cumulative statistics for the shutdown banner.
func (a *App) Counters() *observe.Counters {
	return a.counters
}

// Addr returns the bound listener address, or "" before Run.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// Run binds the listener, starts the auxiliary HTTP endpoint and the brain
// tick loop, and accepts device connections until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.listener == nil {
		addr := net.JoinHostPort(a.cfg.Server.Host, strconv.Itoa(a.cfg.Server.Port))
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("app: listen: %w", err)
		}
		a.listener = l
	}
	a.log.Info("listening for devices", "addr", a.listener.Addr().String())

	// Accept has no context form; closing the listener is what unblocks it
	// when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = a.listener.Close() })
	defer stop()

	if a.cfg.Metrics.Addr != "" {
		a.startHTTP()
	}

	var loops sync.WaitGroup
	loops.Add(1)
	go func() {
		defer loops.Done()
		a.tickLoop(ctx)
	}()

	a.acceptLoop(ctx)
	loops.Wait()
	return ctx.Err()
}

// acceptLoop accepts device connections until the listener closes or ctx is
// cancelled. Transient accept errors back off instead of spinning.
func (a *App) acceptLoop(ctx context.Context) {
	for {
		c, err := a.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			a.log.Error("accept failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(acceptBackoff):
			}
			continue
		}

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.serve(ctx, c)
		}()
	}
}

// serve runs one device connection to completion.
func (a *App) serve(ctx context.Context, c net.Conn) {
	conn := wire.NewConn(c,
		wire.WithReadTimeout(a.cfg.Connection.SocketTimeout()),
		wire.WithMaxTimeouts(a.cfg.Connection.MaxTimeouts),
	)
	sess := a.newSession(conn)

	a.mu.Lock()
	a.sessions[sess] = struct{}{}
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.sessions, sess)
		a.mu.Unlock()
	}()

	sess.Run(ctx)
}

// newSession assembles the mode adapters, dispatcher, and session for one
// accepted connection.
func (a *App) newSession(conn *wire.Conn) *session.Session {
	r := robot.New(a.providers.Chat, a.catalog, a.log)

	agentOpts := []agent.Option{
		agent.WithPersonality(a.cfg.Assistant.Personality),
		agent.WithHistoryTurns(a.cfg.Assistant.HistoryTurns),
		agent.WithMaxChunks(a.cfg.TTS.MaxChunks),
		agent.WithLogger(a.log),
	}
	if a.brain != nil {
		agentOpts = append(agentOpts, agent.WithBrain(a.brain))
	}
	ag := agent.New(a.providers.Chat, a.providers.Synthesizer, a.cfg.Assistant.Name, agentOpts...)

	d := session.NewDispatcher(a.mode, r, ag, conn, a.log)
	if a.brain != nil {
		d.SetEmotionSource(a.brain)
	}

	return session.New(conn, session.Options{
		Transcriber: a.providers.Transcriber,
		Dispatcher:  d,
		MaxAudio:    time.Duration(a.cfg.Audio.MaxSeconds) * time.Second,
		QueueSize:   a.cfg.Queue.MaxSize,
		GetTimeout:  a.cfg.Queue.GetTimeout(),
		Counters:    a.counters,
		Logger:      a.log,
	})
}

// tickLoop polls the brain for expired timers, due reminders, and proactive
// messages, speaking each through an idle session.
func (a *App) tickLoop(ctx context.Context) {
	if a.brain == nil {
		return
	}
	t := time.NewTicker(tickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, line := range a.brain.Tick() {
				a.speakIdle(ctx, line)
			}
		}
	}
}

// speakIdle plays an unprompted line through the first session whose turn
// pipeline is idle. A line with no idle listener is dropped rather than
// queued: barging into a turn in flight is worse than staying quiet.
func (a *App) speakIdle(ctx context.Context, line string) {
	a.mu.Lock()
	var target *session.Session
	for sess := range a.sessions {
		if !sess.Gate().Busy() {
			target = sess
			break
		}
	}
	a.mu.Unlock()

	if target == nil {
		a.log.Debug("no idle session for unprompted speech", "line", line)
		return
	}
	a.log.Info("speaking unprompted", "line", line)
	target.Dispatcher().Speak(ctx, line)
}

// startHTTP serves health probes and Prometheus metrics on the auxiliary
// address.
func (a *App) startHTTP() {
	a.httpSrv = &http.Server{
		Addr:    a.cfg.Metrics.Addr,
		Handler: a.httpHandler(),
	}
	go func() {
		a.log.Info("metrics endpoint up", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics endpoint failed", "err", err)
		}
	}()
}

// httpHandler builds the auxiliary HTTP routes: /healthz, /readyz, /metrics.
// Readiness checks are attached for every provider that exposes a probe.
func (a *App) httpHandler() http.Handler {
	var checkers []health.Checker
	if h, ok := a.providers.Chat.(health.LLMHealth); ok {
		checkers = append(checkers, health.LLMChecker(h))
	}
	if r, ok := a.providers.Transcriber.(health.Readiness); ok {
		checkers = append(checkers, health.STTChecker(r))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return observe.Middleware(a.metrics)(mux)
}

// Shutdown closes the listener, drains sessions, and stops the auxiliary
// endpoint and the brain. It respects the context deadline: sessions still
// running when ctx expires are abandoned and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down")

		if a.listener != nil {
			_ = a.listener.Close()
		}
		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				a.log.Warn("metrics endpoint shutdown error", "err", err)
			}
		}

		done := make(chan struct{})
		go func() {
			a.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.log.Warn("shutdown deadline exceeded with sessions still open")
			shutdownErr = ctx.Err()
		}

		if a.brain != nil {
			a.brain.Close()
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
