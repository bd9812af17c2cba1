package session

import (
	"github.com/alkime/memo/internal/audio"
	"github.com/alkime/memo/internal/permission"
)

// PermissionService gates microphone access.
type PermissionService interface {
	QueryStatus() permission.Status
	// RequestAccess resolves access asynchronously. callback may run on any goroutine.
	RequestAccess(callback func(granted bool))
}

// Capture is an in-flight recording.
type Capture interface {
	Stop() error
}

// CaptureEngine writes microphone audio to a file.
type CaptureEngine interface {
	Begin(path string, format audio.Format) (Capture, error)
}

// Playback is an in-flight playback.
type Playback interface {
	// Stop abandons playback. onComplete passed to Begin is not called.
	Stop() error
}

// PlaybackEngine plays a recorded file.
type PlaybackEngine interface {
	// Begin starts playing path. onComplete fires once, from any goroutine,
	// when playback finishes on its own.
	Begin(path string, onComplete func()) (Playback, error)
}
