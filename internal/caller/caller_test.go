package caller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/23f2000792/tambola/internal/audiocache"
	"github.com/23f2000792/tambola/internal/bus"
	"github.com/23f2000792/tambola/internal/config"
	"github.com/23f2000792/tambola/internal/playback"
	"github.com/23f2000792/tambola/internal/protocol"
	"github.com/23f2000792/tambola/internal/session"
	"github.com/23f2000792/tambola/internal/store"
	"github.com/23f2000792/tambola/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: server.RANDOM_PORT})
	if err != nil {
		t.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server did not start")
	}
	t.Cleanup(ns.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{ns.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

type fixture struct {
	caller   *Caller
	sessions *session.Service
	synth    *tts.MockSynth
	player   *playback.MockPlayer
	bus      *bus.Client
}

func newFixture(t *testing.T, maxNumber int) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), config.StoreConfig{Mode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	busClient := startBus(t)
	sessions := session.NewService(st, busClient, newLogger())

	synth := tts.NewMockSynth()
	synth.Delay = 0
	player := playback.NewMockPlayer()
	sched := playback.NewScheduler(player, newLogger())
	cache := audiocache.New(newLogger())

	cfg := config.Default()
	cfg.Game.MaxNumber = maxNumber

	c := New(cfg.Caller, cfg.Game, cfg.TTS, sessions, cache, synth, sched, busClient, newLogger())
	return &fixture{caller: c, sessions: sessions, synth: synth, player: player, bus: busClient}
}

// secondCaller builds another controller sharing the same session service and
// bus, with its own liveness guard, cache and playback chain.
func (f *fixture) secondCaller(t *testing.T, maxNumber int) *Caller {
	t.Helper()
	cfg := config.Default()
	cfg.Game.MaxNumber = maxNumber
	sched := playback.NewScheduler(playback.NewMockPlayer(), newLogger())
	synth := tts.NewMockSynth()
	synth.Delay = 0
	return New(cfg.Caller, cfg.Game, cfg.TTS, f.sessions, audiocache.New(newLogger()), synth, sched, f.bus, newLogger())
}

func TestCallNextDrawsCommitsAndPlays(t *testing.T) {
	f := newFixture(t, 90)
	ctx := context.Background()

	events := make(chan protocol.CallEvent, 1)
	sub, err := f.bus.Conn().Subscribe(protocol.SubjectCallCompleted, func(msg *nats.Msg) {
		var evt protocol.CallEvent
		if json.Unmarshal(msg.Data, &evt) == nil {
			events <- evt
		}
	})
	if err != nil {
		t.Fatalf("subscribe events: %v", err)
	}
	defer sub.Unsubscribe()

	result, err := f.caller.CallNext(ctx, "game-1")
	if err != nil {
		t.Fatalf("call next: %v", err)
	}
	if result.Number < 1 || result.Number > 90 {
		t.Fatalf("number %d outside range", result.Number)
	}
	if !result.HadAudio {
		t.Fatal("expected audio for successful synthesis")
	}
	if len(result.Snapshot.CalledNumbers) != 1 {
		t.Fatalf("expected one called number, got %v", result.Snapshot.CalledNumbers)
	}
	if result.Snapshot.CurrentNumber == nil || *result.Snapshot.CurrentNumber != result.Number {
		t.Fatalf("current number must equal the drawn number")
	}
	if got := len(f.player.Played()); got != 1 {
		t.Fatalf("expected one playback, got %d", got)
	}
	if got := len(f.synth.Calls()); got != 1 {
		t.Fatalf("expected one synthesis call, got %d", got)
	}

	select {
	case evt := <-events:
		if evt.Number != result.Number || !evt.HadAudio {
			t.Fatalf("unexpected completion event %+v", evt)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no completion event published")
	}
}

func TestCallUntilGameOver(t *testing.T) {
	const max = 10
	f := newFixture(t, max)
	ctx := context.Background()

	seen := make(map[int]bool)
	for i := 0; i < max; i++ {
		result, err := f.caller.CallNext(ctx, "game-1")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if seen[result.Number] {
			t.Fatalf("duplicate number %d", result.Number)
		}
		seen[result.Number] = true
	}

	if _, err := f.caller.CallNext(ctx, "game-1"); !errors.Is(err, ErrGameOver) {
		t.Fatalf("expected ErrGameOver, got %v", err)
	}

	snap, err := f.sessions.Snapshot(ctx, "game-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != max {
		t.Fatalf("game over must leave state unchanged, got %d numbers", len(snap.CalledNumbers))
	}
}

func TestSynthesisFailureDegrades(t *testing.T) {
	f := newFixture(t, 90)
	f.synth.Err = errors.New("synthesis service unavailable")

	result, err := f.caller.CallNext(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("the draw must survive a synthesis failure, got %v", err)
	}
	if result.HadAudio {
		t.Fatal("expected had_audio=false on synthesis failure")
	}
	if len(result.Snapshot.CalledNumbers) != 1 {
		t.Fatal("the number must still be committed")
	}
	if got := len(f.player.Played()); got != 0 {
		t.Fatalf("no audio should play on failure, played %d", got)
	}
}

func TestCachedAudioSkipsSynthesis(t *testing.T) {
	// A one-number range makes the redraw deterministic after reset.
	f := newFixture(t, 1)
	ctx := context.Background()

	first, err := f.caller.CallNext(ctx, "game-1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Number != 1 || !first.HadAudio {
		t.Fatalf("unexpected first result %+v", first)
	}

	if _, err := f.caller.Reset(ctx, "game-1"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	second, err := f.caller.CallNext(ctx, "game-1")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !second.HadAudio {
		t.Fatal("expected cached audio")
	}
	if got := len(f.synth.Calls()); got != 1 {
		t.Fatalf("expected a single synthesis across games, got %d", got)
	}
	if got := len(f.player.Played()); got != 2 {
		t.Fatalf("expected two playbacks, got %d", got)
	}
}

func TestCallInFlightGuard(t *testing.T) {
	f := newFixture(t, 90)
	f.player.Delay = 300 * time.Millisecond

	done := make(chan error, 1)
	go func() {
		_, err := f.caller.CallNext(context.Background(), "game-1")
		done <- err
	}()
	time.Sleep(100 * time.Millisecond)

	if _, err := f.caller.CallNext(context.Background(), "game-1"); !errors.Is(err, ErrCallInFlight) {
		t.Fatalf("expected ErrCallInFlight, got %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("first call failed: %v", err)
	}
}

func TestConcurrentCallersNeverDuplicate(t *testing.T) {
	const max = 30
	f := newFixture(t, max)
	other := f.secondCaller(t, max)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, c := range []*Caller{f.caller, other} {
		wg.Add(1)
		go func(c *Caller) {
			defer wg.Done()
			for {
				_, err := c.CallNext(ctx, "game-1")
				switch {
				case err == nil:
				case errors.Is(err, ErrGameOver):
					return
				case errors.Is(err, store.ErrConflict):
					// transient, re-read and try again
				default:
					t.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(c)
	}
	wg.Wait()

	snap, err := f.sessions.Snapshot(ctx, "game-1")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.CalledNumbers) != max {
		t.Fatalf("expected %d numbers, got %d", max, len(snap.CalledNumbers))
	}
	seen := make(map[int]bool)
	for _, n := range snap.CalledNumbers {
		if seen[n] {
			t.Fatalf("duplicate %d in committed sequence %v", n, snap.CalledNumbers)
		}
		if n < 1 || n > max {
			t.Fatalf("number %d outside range", n)
		}
		seen[n] = true
	}
}

func TestResetClearsStateAndStopsAudio(t *testing.T) {
	f := newFixture(t, 90)
	ctx := context.Background()

	if _, err := f.caller.CallNext(ctx, "game-1"); err != nil {
		t.Fatalf("call: %v", err)
	}

	snap, err := f.caller.Reset(ctx, "game-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if len(snap.CalledNumbers) != 0 || snap.CurrentNumber != nil {
		t.Fatalf("expected empty state, got %+v", snap)
	}

	// Idempotent: a second reset is equivalent.
	again, err := f.caller.Reset(ctx, "game-1")
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if len(again.CalledNumbers) != 0 || again.CurrentNumber != nil {
		t.Fatalf("expected empty state after repeated reset, got %+v", again)
	}
}
