package tts

import (
	"context"

	"github.com/23f2000792/tambola/internal/config"
)

// DefaultVoice is used when no preference can be satisfied.
var DefaultVoice = Voice{Language: "en-IN", Name: "en-IN-Wavenet-C"}

// SelectVoice walks the configured preference chain and picks the first entry
// the backend can serve. Backends that cannot enumerate voices get the first
// preference as-is; an empty chain yields DefaultVoice.
func SelectVoice(ctx context.Context, synth Synthesizer, prefs []config.VoicePreference) Voice {
	if len(prefs) == 0 {
		return DefaultVoice
	}

	lister, ok := synth.(VoiceLister)
	if !ok {
		return voiceFromPref(prefs[0])
	}
	available, err := lister.Voices(ctx)
	if err != nil || len(available) == 0 {
		return voiceFromPref(prefs[0])
	}

	for _, pref := range prefs {
		for _, v := range available {
			if pref.Language != "" && pref.Language != v.Language {
				continue
			}
			if pref.Voice != "" && pref.Voice != v.Name {
				continue
			}
			return v
		}
	}
	return DefaultVoice
}

func voiceFromPref(pref config.VoicePreference) Voice {
	v := Voice{Language: pref.Language, Name: pref.Voice}
	if v.Language == "" {
		v.Language = DefaultVoice.Language
	}
	return v
}
