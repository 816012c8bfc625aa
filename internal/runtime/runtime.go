package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/23f2000792/tambola/internal/audiocache"
	"github.com/23f2000792/tambola/internal/bus"
	"github.com/23f2000792/tambola/internal/caller"
	"github.com/23f2000792/tambola/internal/config"
	"github.com/23f2000792/tambola/internal/natsserver"
	"github.com/23f2000792/tambola/internal/playback"
	"github.com/23f2000792/tambola/internal/session"
	"github.com/23f2000792/tambola/internal/store"
	"github.com/23f2000792/tambola/internal/tts"
)

// Runtime assembles the daemon: embedded bus, session store, synchronizer,
// caller service, audio pipeline and the HTTP health/metrics surface.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	busClient   *bus.Client
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busClient, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer busClient.Close()
	r.busClient = busClient

	st, err := store.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer st.Close()

	sessions := session.NewService(st, busClient, r.logger)

	synth, err := newSynthesizer(r.cfg.TTS)
	if err != nil {
		return fmt.Errorf("failed to build synthesizer: %w", err)
	}
	player, err := newPlayer(r.cfg.Playback)
	if err != nil {
		return fmt.Errorf("failed to build player: %w", err)
	}
	sched := playback.NewScheduler(player, r.logger)
	cache := audiocache.New(r.logger)

	drawCaller := caller.New(r.cfg.Caller, r.cfg.Game, r.cfg.TTS,
		sessions, cache, synth, sched, busClient, r.logger)
	callerSvc := caller.NewService(ctx, r.cfg.Caller, r.cfg.Game,
		drawCaller, sessions, busClient, r.logger)
	if err := callerSvc.Start(); err != nil {
		return fmt.Errorf("failed to start caller service: %w", err)
	}
	defer callerSvc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("session", r.cfg.Game.DefaultSession),
		slog.Int("range", r.cfg.Game.MaxNumber))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	sched.Cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func newSynthesizer(cfg config.TTSConfig) (tts.Synthesizer, error) {
	switch cfg.Mode {
	case "exec":
		return tts.NewExecSynth(cfg.Command)
	default:
		return tts.NewMockSynth(), nil
	}
}

func newPlayer(cfg config.PlaybackConfig) (playback.Player, error) {
	if !cfg.Enabled {
		return playback.NewMockPlayer(), nil
	}
	switch cfg.Mode {
	case "exec":
		return playback.NewExecPlayer(cfg.Command)
	default:
		return playback.NewMockPlayer(), nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
