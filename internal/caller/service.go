package caller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/23f2000792/tambola/internal/bus"
	"github.com/23f2000792/tambola/internal/config"
	"github.com/23f2000792/tambola/internal/protocol"
	"github.com/23f2000792/tambola/internal/session"
)

// Service exposes the caller over the bus so remote controllers (CLI, UI
// glue) can drive draws with request/reply messages.
type Service struct {
	cfg      config.CallerConfig
	game     config.GameConfig
	caller   *Caller
	sessions *session.Service
	bus      *bus.Client
	logger   *slog.Logger

	subCall  *nats.Subscription
	subReset *nats.Subscription
	subSnap  *nats.Subscription
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(parent context.Context, cfg config.CallerConfig, game config.GameConfig,
	c *Caller, sessions *session.Service, busClient *bus.Client, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		game:     game,
		caller:   c,
		sessions: sessions,
		bus:      busClient,
		logger:   log.With(slog.String("component", "caller-service")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subCall, err := s.bus.Conn().Subscribe(protocol.SubjectCallNext, s.handleCall)
	if err != nil {
		return err
	}
	s.subCall = subCall

	subReset, err := s.bus.Conn().Subscribe(protocol.SubjectReset, s.handleReset)
	if err != nil {
		subCall.Drain()
		return err
	}
	s.subReset = subReset

	subSnap, err := s.bus.Conn().Subscribe(protocol.SubjectSnapshot, s.handleSnapshot)
	if err != nil {
		subCall.Drain()
		subReset.Drain()
		return err
	}
	s.subSnap = subSnap
	return nil
}

func (s *Service) Close() {
	s.cancel()
	for _, sub := range []*nats.Subscription{s.subCall, s.subReset, s.subSnap} {
		if sub != nil {
			_ = sub.Drain()
		}
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || (s.subCall != nil && s.subReset != nil && s.subSnap != nil)
}

func (s *Service) sessionID(requested string) string {
	if requested != "" {
		return requested
	}
	return s.game.DefaultSession
}

func (s *Service) handleCall(msg *nats.Msg) {
	var req protocol.CallRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode call request", slogError(err))
		return
	}
	sessionID := s.sessionID(req.SessionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		result, err := s.caller.CallNext(s.ctx, sessionID)
		reply := protocol.CallResult{SessionID: sessionID}
		switch {
		case errors.Is(err, ErrGameOver):
			reply.GameOver = true
			reply.Error = err.Error()
		case err != nil:
			reply.Error = err.Error()
		default:
			reply.Number = result.Number
			reply.HadAudio = result.HadAudio
		}
		s.respond(msg, reply)
	}()
}

func (s *Service) handleReset(msg *nats.Msg) {
	var req protocol.ResetRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode reset request", slogError(err))
		return
	}
	sessionID := s.sessionID(req.SessionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		reply := protocol.CallResult{SessionID: sessionID}
		if _, err := s.caller.Reset(s.ctx, sessionID); err != nil {
			reply.Error = err.Error()
		}
		s.respond(msg, reply)
	}()
}

func (s *Service) handleSnapshot(msg *nats.Msg) {
	var req protocol.SnapshotRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode snapshot request", slogError(err))
		return
	}
	snap, err := s.sessions.Snapshot(s.ctx, s.sessionID(req.SessionID))
	if err != nil {
		s.logger.Warn("snapshot request failed", slogError(err))
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("failed to marshal snapshot", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond to snapshot request", slogError(err))
	}
}

func (s *Service) respond(msg *nats.Msg, reply protocol.CallResult) {
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
