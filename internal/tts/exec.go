package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/23f2000792/tambola/internal/audio"
)

type execSynth struct {
	cmd []string
	mu  sync.Mutex
}

type execRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

type execResponse struct {
	MediaType   string `json:"media_type"`
	AudioBase64 string `json:"audio_base64"`
	Error       string `json:"error,omitempty"`
}

// NewExecSynth adapts an external speech command into a Synthesizer. The
// command receives a JSON request on stdin and must answer with a single
// JSON line carrying the encoded audio.
func NewExecSynth(command string) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Clip{}, ErrEmptyText
	}

	// One synthesis process at a time; the audio cache dedupes per number
	// above this layer.
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{Text: req.Text, Language: req.Language, Voice: req.Voice})
	if err != nil {
		return audio.Clip{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = strings.NewReader(string(payload))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return audio.Clip{}, err
	}
	if err := cmd.Start(); err != nil {
		return audio.Clip{}, err
	}

	var resp execResponse
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return audio.Clip{}, fmt.Errorf("decode tts response: %w", err)
		}
		break
	}
	if err := cmd.Wait(); err != nil {
		return audio.Clip{}, fmt.Errorf("tts command failed: %w", err)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return audio.Clip{}, scanErr
	}
	if resp.Error != "" {
		return audio.Clip{}, fmt.Errorf("tts backend: %s", resp.Error)
	}
	if resp.AudioBase64 == "" {
		return audio.Clip{}, fmt.Errorf("tts backend returned no audio")
	}
	data, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("decode tts audio: %w", err)
	}
	mediaType := resp.MediaType
	if mediaType == "" {
		mediaType = "audio/mp3"
	}
	return audio.Clip{MediaType: mediaType, Data: data}, nil
}
