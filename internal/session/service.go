package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/23f2000792/tambola/internal/bus"
	"github.com/23f2000792/tambola/internal/protocol"
	"github.com/23f2000792/tambola/internal/store"
)

// Service is the draw-state synchronizer. The store arbitrates ordering for
// the shared session document; the bus pushes each committed snapshot to
// every connected observer.
type Service struct {
	store  *store.Store
	bus    *bus.Client
	logger *slog.Logger
}

func NewService(st *store.Store, busClient *bus.Client, log *slog.Logger) *Service {
	return &Service{
		store:  st,
		bus:    busClient,
		logger: log.With(slog.String("component", "session")),
	}
}

// Snapshot returns the current session document, initializing empty state on
// first access.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (protocol.Snapshot, error) {
	return s.store.Snapshot(ctx, sessionID)
}

// Commit appends a number to the session, atomically verifying it was not
// already called, then pushes the new snapshot to all subscribers.
// A concurrent duplicate surfaces as store.ErrConflict; callers re-read and
// retry the pick.
func (s *Service) Commit(ctx context.Context, sessionID string, number int) (protocol.Snapshot, error) {
	snap, err := s.store.Append(ctx, sessionID, number)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	s.publish(snap)
	return snap, nil
}

// Reset atomically replaces the session with empty state and pushes the
// result to all subscribers. Resetting an already empty session is a no-op
// apart from the revision bump.
func (s *Service) Reset(ctx context.Context, sessionID string) (protocol.Snapshot, error) {
	snap, err := s.store.Reset(ctx, sessionID)
	if err != nil {
		return protocol.Snapshot{}, err
	}
	s.publish(snap)
	return snap, nil
}

func (s *Service) publish(snap protocol.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Warn("failed to marshal snapshot", slog.String("error", err.Error()))
		return
	}
	// Publish failures are non-fatal: the commit stands and observers
	// converge on the next delivered snapshot.
	if err := s.bus.Conn().Publish(protocol.StateSubject(snap.SessionID), data); err != nil {
		s.logger.Warn("failed to publish snapshot",
			slog.String("session", snap.SessionID),
			slog.String("error", err.Error()))
	}
}

// Subscribe delivers a monotonic stream of session snapshots, starting with
// the current (or freshly initialized) state and then every committed
// change, until ctx is cancelled. Stale or duplicate revisions are dropped.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan protocol.Snapshot, error) {
	updates := make(chan protocol.Snapshot, 16)
	sub, err := s.bus.Conn().Subscribe(protocol.StateSubject(sessionID), func(msg *nats.Msg) {
		var snap protocol.Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			s.logger.Warn("failed to decode snapshot", slog.String("error", err.Error()))
			return
		}
		select {
		case updates <- snap:
		default:
			s.logger.Warn("slow subscriber, dropping snapshot", slog.String("session", sessionID))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe session state: %w", err)
	}

	initial, err := s.store.Snapshot(ctx, sessionID)
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	out := make(chan protocol.Snapshot, 16)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()

		last := int64(-1)
		deliver := func(snap protocol.Snapshot) bool {
			if snap.Revision <= last {
				return true
			}
			select {
			case out <- snap:
				last = snap.Revision
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !deliver(initial) {
			return
		}
		for {
			select {
			case snap := <-updates:
				if !deliver(snap) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
