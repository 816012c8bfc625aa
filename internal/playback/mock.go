package playback

import (
	"context"
	"sync"
	"time"

	"github.com/23f2000792/tambola/internal/audio"
)

// MockPlayer records played clips instead of rendering audio.
type MockPlayer struct {
	Delay time.Duration
	Err   error

	mu     sync.Mutex
	played []audio.Clip
}

func NewMockPlayer() *MockPlayer {
	return &MockPlayer{}
}

func (m *MockPlayer) Play(ctx context.Context, clip audio.Clip) error {
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	m.mu.Lock()
	m.played = append(m.played, clip)
	err := m.Err
	m.mu.Unlock()
	return err
}

// Played returns the clips rendered so far.
func (m *MockPlayer) Played() []audio.Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]audio.Clip(nil), m.played...)
}
