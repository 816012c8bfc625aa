package playback

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/23f2000792/tambola/internal/audio"
)

type execPlayer struct {
	cmd []string
	mu  sync.Mutex
}

// NewExecPlayer adapts an external audio command (e.g. "mpg123 -q -") into a
// Player. The clip bytes are piped to the command's stdin.
func NewExecPlayer(command string) (Player, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command empty")
	}
	return &execPlayer{cmd: args}, nil
}

func (p *execPlayer) Play(ctx context.Context, clip audio.Clip) error {
	if clip.Empty() {
		return ErrNoAudio
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	base := p.cmd[0]
	args := append([]string{}, p.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(clip.Data)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback command failed: %w", err)
	}
	return nil
}
