package caller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/23f2000792/tambola/internal/audio"
	"github.com/23f2000792/tambola/internal/audiocache"
	"github.com/23f2000792/tambola/internal/bus"
	"github.com/23f2000792/tambola/internal/config"
	"github.com/23f2000792/tambola/internal/draw"
	"github.com/23f2000792/tambola/internal/playback"
	"github.com/23f2000792/tambola/internal/protocol"
	"github.com/23f2000792/tambola/internal/session"
	"github.com/23f2000792/tambola/internal/store"
	"github.com/23f2000792/tambola/internal/tts"
)

var (
	// ErrGameOver means every number has been called. A terminal,
	// user-visible condition rather than a fault.
	ErrGameOver = errors.New("game over: all numbers have been called")

	// ErrCallInFlight rejects overlapping draws from the same controller.
	ErrCallInFlight = errors.New("a call is already in progress")
)

// Result describes one completed draw.
type Result struct {
	Number   int
	HadAudio bool
	Snapshot protocol.Snapshot
}

// Caller orchestrates one "call next number" operation: pick, commit,
// resolve audio, play. The commit is the authoritative fact; everything after
// it degrades rather than rolling back.
type Caller struct {
	cfg      config.CallerConfig
	game     config.GameConfig
	ttsCfg   config.TTSConfig
	sessions *session.Service
	cache    *audiocache.Cache
	synth    tts.Synthesizer
	sched    *playback.Scheduler
	bus      *bus.Client
	voice    tts.Voice
	inflight atomic.Bool
	logger   *slog.Logger

	draws         metric.Int64Counter
	conflicts     metric.Int64Counter
	synthFailures metric.Int64Counter
}

func New(cfg config.CallerConfig, game config.GameConfig, ttsCfg config.TTSConfig,
	sessions *session.Service, cache *audiocache.Cache, synth tts.Synthesizer,
	sched *playback.Scheduler, busClient *bus.Client, log *slog.Logger) *Caller {

	meter := otel.Meter("tambola/caller")
	draws, _ := meter.Int64Counter("tambola_draws_total",
		metric.WithDescription("Numbers successfully committed"))
	conflicts, _ := meter.Int64Counter("tambola_draw_conflicts_total",
		metric.WithDescription("Commit attempts lost to a concurrent controller"))
	synthFailures, _ := meter.Int64Counter("tambola_announcement_failures_total",
		metric.WithDescription("Draws that completed without audio"))

	return &Caller{
		cfg:           cfg,
		game:          game,
		ttsCfg:        ttsCfg,
		sessions:      sessions,
		cache:         cache,
		synth:         synth,
		sched:         sched,
		bus:           busClient,
		voice:         tts.SelectVoice(context.Background(), synth, ttsCfg.Voices),
		logger:        log.With(slog.String("component", "caller")),
		draws:         draws,
		conflicts:     conflicts,
		synthFailures: synthFailures,
	}
}

// CallNext draws the next number for a session. At most one call runs per
// controller at a time; concurrent controllers coordinate only through the
// session commit.
func (c *Caller) CallNext(ctx context.Context, sessionID string) (Result, error) {
	if !c.inflight.CompareAndSwap(false, true) {
		return Result{}, ErrCallInFlight
	}
	defer c.inflight.Store(false)

	snap, err := c.sessions.Snapshot(ctx, sessionID)
	if err != nil {
		c.publishEvent(protocol.SubjectCallFailed, protocol.CallEvent{SessionID: sessionID, Reason: err.Error()})
		return Result{}, err
	}
	if len(snap.CalledNumbers) >= c.game.MaxNumber {
		c.publishEvent(protocol.SubjectGameOver, protocol.CallEvent{SessionID: sessionID})
		return Result{}, ErrGameOver
	}

	c.publishEvent(protocol.SubjectCallStarted, protocol.CallEvent{SessionID: sessionID})

	number, committed, err := c.pickAndCommit(ctx, sessionID, snap)
	if err != nil {
		if errors.Is(err, ErrGameOver) {
			c.publishEvent(protocol.SubjectGameOver, protocol.CallEvent{SessionID: sessionID})
		} else {
			c.publishEvent(protocol.SubjectCallFailed, protocol.CallEvent{SessionID: sessionID, Reason: err.Error()})
		}
		return Result{}, err
	}
	c.draws.Add(ctx, 1)

	hadAudio := c.announce(ctx, number)
	if !hadAudio {
		c.synthFailures.Add(ctx, 1)
	}

	c.publishEvent(protocol.SubjectCallCompleted, protocol.CallEvent{
		SessionID: sessionID,
		Number:    number,
		HadAudio:  hadAudio,
	})
	if len(committed.CalledNumbers) >= c.game.MaxNumber {
		c.publishEvent(protocol.SubjectGameOver, protocol.CallEvent{SessionID: sessionID})
	}

	c.logger.Info("number called",
		slog.String("session", sessionID),
		slog.Int("number", number),
		slog.Bool("had_audio", hadAudio))

	return Result{Number: number, HadAudio: hadAudio, Snapshot: committed}, nil
}

// pickAndCommit retries the pick+commit cycle a bounded number of times,
// re-reading the latest drawn set after each conflict. Picking from a stale
// view and writing blindly would let two controllers commit the same number;
// the commit's check-and-append plus this retry loop closes that race.
func (c *Caller) pickAndCommit(ctx context.Context, sessionID string, snap protocol.Snapshot) (int, protocol.Snapshot, error) {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		number, err := draw.Pick(snap.CalledNumbers, c.game.MaxNumber, nil)
		if err != nil {
			if errors.Is(err, draw.ErrExhausted) {
				return 0, protocol.Snapshot{}, ErrGameOver
			}
			return 0, protocol.Snapshot{}, err
		}

		committed, err := c.sessions.Commit(ctx, sessionID, number)
		if err == nil {
			return number, committed, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return 0, protocol.Snapshot{}, err
		}

		c.conflicts.Add(ctx, 1)
		c.logger.Debug("commit conflict, retrying pick",
			slog.String("session", sessionID),
			slog.Int("number", number),
			slog.Int("attempt", attempt+1))

		snap, err = c.sessions.Snapshot(ctx, sessionID)
		if err != nil {
			return 0, protocol.Snapshot{}, err
		}
		if len(snap.CalledNumbers) >= c.game.MaxNumber {
			return 0, protocol.Snapshot{}, ErrGameOver
		}
	}
	return 0, protocol.Snapshot{}, fmt.Errorf("%w after %d attempts", store.ErrConflict, c.cfg.MaxAttempts)
}

// announce resolves and plays the audio for a committed number. Failures
// leave the draw standing; the caller reports had_audio=false and the game
// continues.
func (c *Caller) announce(ctx context.Context, number int) bool {
	actx, cancel := context.WithTimeout(ctx, time.Duration(c.ttsCfg.TimeoutMS)*time.Millisecond)
	defer cancel()

	err := c.sched.Announce(actx, func(rctx context.Context) (audio.Clip, error) {
		return c.cache.Resolve(rctx, number, func(fctx context.Context) (audio.Clip, error) {
			text := draw.Announcement(number)
			if text == "" {
				return audio.Clip{}, tts.ErrEmptyText
			}
			return c.synth.Synthesize(fctx, tts.Request{
				Text:     text,
				Language: c.voice.Language,
				Voice:    c.voice.Name,
			})
		})
	})
	if err == nil {
		return true
	}

	c.logger.Warn("announcement failed, number stands without audio",
		slog.Int("number", number),
		slog.String("error", err.Error()))
	if c.ttsCfg.FallbackBeep {
		if perr := c.sched.Play(ctx, audio.FallbackBeep()); perr != nil {
			c.logger.Warn("fallback beep failed", slog.String("error", perr.Error()))
		}
	}
	return false
}

// Reset starts a new game: any active announcement stops and the session is
// atomically cleared for every observer.
func (c *Caller) Reset(ctx context.Context, sessionID string) (protocol.Snapshot, error) {
	c.sched.Cancel()
	snap, err := c.sessions.Reset(ctx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	c.publishEvent(protocol.SubjectGameReset, protocol.CallEvent{SessionID: sessionID})
	return snap, nil
}

func (c *Caller) publishEvent(subject string, evt protocol.CallEvent) {
	evt.Timestamp = time.Now().UTC()
	data, err := json.Marshal(evt)
	if err != nil {
		c.logger.Warn("failed to marshal event", slog.String("error", err.Error()))
		return
	}
	if err := c.bus.Conn().Publish(subject, data); err != nil {
		c.logger.Warn("failed to publish event",
			slog.String("subject", subject),
			slog.String("error", err.Error()))
	}
}
