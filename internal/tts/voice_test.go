package tts

import (
	"context"
	"errors"
	"testing"

	"github.com/23f2000792/tambola/internal/audio"
	"github.com/23f2000792/tambola/internal/config"
)

type listlessSynth struct{}

func (listlessSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	return audio.Clip{}, errors.New("not implemented")
}

func TestSelectVoiceFirstAvailableWins(t *testing.T) {
	synth := NewMockSynth()
	prefs := []config.VoicePreference{
		{Language: "hi-IN"},
		{Language: "en-US", Voice: "en-US-Standard-A"},
		{Language: "en-GB"},
	}
	v := SelectVoice(context.Background(), synth, prefs)
	if v.Name != "en-US-Standard-A" {
		t.Fatalf("expected en-US-Standard-A, got %+v", v)
	}
}

func TestSelectVoiceLanguageOnlyPreference(t *testing.T) {
	synth := NewMockSynth()
	v := SelectVoice(context.Background(), synth, []config.VoicePreference{{Language: "en-GB"}})
	if v.Language != "en-GB" || v.Name != "en-GB-Standard-B" {
		t.Fatalf("expected the en-GB voice, got %+v", v)
	}
}

func TestSelectVoiceDefaultWhenNothingMatches(t *testing.T) {
	synth := NewMockSynth()
	v := SelectVoice(context.Background(), synth, []config.VoicePreference{{Language: "fr-FR"}})
	if v != DefaultVoice {
		t.Fatalf("expected default voice, got %+v", v)
	}
}

func TestSelectVoiceWithoutLister(t *testing.T) {
	v := SelectVoice(context.Background(), listlessSynth{}, []config.VoicePreference{{Language: "en-IN", Voice: "custom"}})
	if v.Language != "en-IN" || v.Name != "custom" {
		t.Fatalf("expected first preference passthrough, got %+v", v)
	}
}

func TestSelectVoiceEmptyChain(t *testing.T) {
	if v := SelectVoice(context.Background(), NewMockSynth(), nil); v != DefaultVoice {
		t.Fatalf("expected default voice, got %+v", v)
	}
}

func TestMockSynthEmptyText(t *testing.T) {
	if _, err := NewMockSynth().Synthesize(context.Background(), Request{Text: "  "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}
