// Package session owns the recording/playback lifecycle of a single screen.
package session

// Phase is the lifecycle position derived from a State.
type Phase int

const (
	// PhaseIdle means neither recording nor playing.
	PhaseIdle Phase = iota
	// PhaseRecording means microphone audio is being captured.
	PhaseRecording
	// PhasePlaying means the last recording is being played back.
	PhasePlaying
)

// String returns the human-readable name of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseRecording:
		return "Recording"
	case PhasePlaying:
		return "Playing"
	default:
		return "Unknown"
	}
}

// State is a snapshot of the session. Only the Controller writes it;
// observers receive copies.
type State struct {
	IsRecording             bool
	IsPlaying               bool
	PermissionDenialPending bool
	ElapsedSeconds          int
	RecordingPath           string
	// HasRecording reports whether the slot holds a file to play.
	HasRecording bool
}

// Phase derives the lifecycle phase from the flags.
func (s State) Phase() Phase {
	switch {
	case s.IsRecording:
		return PhaseRecording
	case s.IsPlaying:
		return PhasePlaying
	default:
		return PhaseIdle
	}
}
