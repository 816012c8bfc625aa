package tts

import (
	"context"
	"errors"

	"github.com/23f2000792/tambola/internal/audio"
)

// Request contains parameters to synthesize one announcement.
type Request struct {
	Text     string
	Language string
	Voice    string
}

// Voice identifies one synthesis voice offered by a backend.
type Voice struct {
	Language string
	Name     string
}

// Synthesizer is the contract for producing announcement audio. Backends are
// treated as unreliable and potentially slow; callers must never block a
// draw commit on the outcome.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (audio.Clip, error)
}

// VoiceLister is optionally implemented by backends that can enumerate their
// available voices.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// ErrEmptyText is returned when there is nothing to speak.
var ErrEmptyText = errors.New("no text to synthesize")
