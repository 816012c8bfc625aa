package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/23f2000792/tambola/internal/audio"
)

// State is the scheduler position: Idle, Requesting (awaiting audio
// resolution) or Playing.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// ErrNoAudio is returned when playback is requested with an empty clip.
var ErrNoAudio = errors.New("no audio to play")

// Player renders one clip and blocks until it finishes or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, clip audio.Clip) error
}

// Scheduler sequences announcement playback one clip at a time. Starting a
// new playback stops the active one first; Cancel is idempotent and valid
// from any state.
type Scheduler struct {
	mu     sync.Mutex
	player Player
	log    *slog.Logger
	state  State
	cancel context.CancelFunc
	gen    uint64
}

func NewScheduler(player Player, log *slog.Logger) *Scheduler {
	return &Scheduler{
		player: player,
		log:    log.With(slog.String("component", "playback")),
	}
}

// State reports the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Play renders one clip, stopping any active playback first.
func (s *Scheduler) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return ErrNoAudio
	}
	cctx, gen := s.acquire(ctx, StatePlaying)
	defer s.release(gen)
	return s.player.Play(cctx, clip)
}

// Announce resolves a clip and then plays it. The scheduler sits in
// Requesting while resolve runs, so cancellation reaches a slow synthesis
// just like it reaches live playback.
func (s *Scheduler) Announce(ctx context.Context, resolve func(context.Context) (audio.Clip, error)) error {
	cctx, gen := s.acquire(ctx, StateRequesting)
	defer s.release(gen)

	clip, err := resolve(cctx)
	if err != nil {
		return err
	}
	if clip.Empty() {
		return ErrNoAudio
	}
	s.transition(gen, StatePlaying)
	return s.player.Play(cctx, clip)
}

// Cancel stops any in-flight request or playback and returns the scheduler
// to Idle. Safe to call repeatedly and from any state.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.state = StateIdle
}

// acquire stops the active session, if any, and installs a new one.
func (s *Scheduler) acquire(parent context.Context, st State) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.gen++
	s.state = st
	return ctx, s.gen
}

// transition moves the session to a new state unless it was superseded.
func (s *Scheduler) transition(gen uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.state = st
}

// release returns the session to Idle unless a newer one took over.
func (s *Scheduler) release(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateIdle
}
