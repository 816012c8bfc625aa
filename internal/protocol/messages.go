package protocol

import "time"

// Snapshot is the replicated state of one game session, pushed to every
// observer after each committed change.
type Snapshot struct {
	SessionID     string    `json:"session_id"`
	CalledNumbers []int     `json:"called_numbers"`
	CurrentNumber *int      `json:"current_number"`
	Revision      int64     `json:"revision"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CallRequest asks the caller service to draw the next number.
type CallRequest struct {
	SessionID string `json:"session_id"`
}

// CallResult is the reply to a CallRequest.
type CallResult struct {
	SessionID string `json:"session_id"`
	Number    int    `json:"number,omitempty"`
	HadAudio  bool   `json:"had_audio"`
	GameOver  bool   `json:"game_over,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ResetRequest asks the caller service to start a new game.
type ResetRequest struct {
	SessionID string `json:"session_id"`
}

// SnapshotRequest fetches the current session state on demand.
type SnapshotRequest struct {
	SessionID string `json:"session_id"`
}

// CallEvent is broadcast around the lifecycle of one draw.
type CallEvent struct {
	SessionID string    `json:"session_id"`
	Number    int       `json:"number,omitempty"`
	HadAudio  bool      `json:"had_audio,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectStatePrefix = "tambola.state" // tambola.state.<session_id>

	SubjectCallNext = "tambola.cmd.call"
	SubjectReset    = "tambola.cmd.reset"
	SubjectSnapshot = "tambola.cmd.snapshot"

	SubjectCallStarted   = "tambola.event.call.started"
	SubjectCallCompleted = "tambola.event.call.completed"
	SubjectCallFailed    = "tambola.event.call.failed"
	SubjectGameOver      = "tambola.event.game.over"
	SubjectGameReset     = "tambola.event.game.reset"
)

// StateSubject returns the per-session snapshot subject.
func StateSubject(sessionID string) string {
	return SubjectStatePrefix + "." + sessionID
}
