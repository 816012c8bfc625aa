package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Clip is a self-describing encoded audio payload.
type Clip struct {
	MediaType string `json:"media_type"`
	Data      []byte `json:"data"`
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

// DataURI renders the clip in the data: URI form used on client boundaries.
func (c Clip) DataURI() string {
	if c.Empty() {
		return ""
	}
	return fmt.Sprintf("data:%s;base64,%s", c.MediaType, base64.StdEncoding.EncodeToString(c.Data))
}

// ParseDataURI decodes a data: URI back into a Clip.
func ParseDataURI(uri string) (Clip, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Clip{}, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Clip{}, errors.New("malformed data URI")
	}
	mediaType, found := strings.CutSuffix(meta, ";base64")
	if !found {
		return Clip{}, errors.New("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Clip{}, fmt.Errorf("decode data URI payload: %w", err)
	}
	return Clip{MediaType: mediaType, Data: data}, nil
}

// A minimal silent WAV served when synthesis fails and the fallback beep is
// enabled, so the draw still produces an audible cue boundary.
const fallbackBeepBase64 = "UklGRiQAAABXQVZFZm10IBAAAAABAAEARKwAAIhYAQACABAAZGF0YQAAAAA="

// FallbackBeep returns the built-in replacement clip.
func FallbackBeep() Clip {
	data, err := base64.StdEncoding.DecodeString(fallbackBeepBase64)
	if err != nil {
		// The constant is well-formed; this cannot happen at runtime.
		panic(err)
	}
	return Clip{MediaType: "audio/wav", Data: data}
}
