package tts

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/23f2000792/tambola/internal/audio"
)

// MockSynth fabricates clips without calling a real backend.
type MockSynth struct {
	Delay time.Duration
	Err   error

	mu    sync.Mutex
	calls []Request
}

func NewMockSynth() *MockSynth {
	return &MockSynth{Delay: 10 * time.Millisecond}
}

func (m *MockSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Clip{}, ErrEmptyText
	}
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		case <-time.After(m.Delay):
		}
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.Err
	m.mu.Unlock()

	if err != nil {
		return audio.Clip{}, err
	}
	return audio.Clip{MediaType: "audio/wav", Data: []byte(req.Text)}, nil
}

func (m *MockSynth) Voices(ctx context.Context) ([]Voice, error) {
	return []Voice{
		{Language: "en-IN", Name: "en-IN-Wavenet-C"},
		{Language: "en-US", Name: "en-US-Standard-A"},
		{Language: "en-GB", Name: "en-GB-Standard-B"},
	}, nil
}

// Calls returns the synthesize requests observed so far.
func (m *MockSynth) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
