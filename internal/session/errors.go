package session

import (
	"errors"
	"log/slog"
)

var (
	// ErrPermissionDenied is returned when recording is attempted without microphone access.
	ErrPermissionDenied = errors.New("microphone access not granted")
	// ErrSessionSetup marks a failure to prepare the recording slot.
	ErrSessionSetup = errors.New("audio session setup failed")
	// ErrCaptureInit marks a capture engine that could not be created or started.
	ErrCaptureInit = errors.New("audio capture failed to start")
	// ErrPlaybackInit marks a playback engine that could not be created or started.
	ErrPlaybackInit = errors.New("audio playback failed to start")
	// ErrFileMissing is returned when playback is requested before anything was recorded.
	ErrFileMissing = errors.New("no recording found")
	// ErrBusy is returned when recording and playback would overlap.
	ErrBusy = errors.New("session busy")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("session closed")
)

// Reporter receives every failure exactly once.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to a Reporter.
type ReporterFunc func(err error)

// Report calls f(err).
func (f ReporterFunc) Report(err error) {
	f(err)
}

// LogReporter reports failures as structured error logs.
func LogReporter(logger *slog.Logger) Reporter {
	return ReporterFunc(func(err error) {
		logger.Error("session failure", "error", err)
	})
}
