// Package permission resolves whether the microphone may be used.
package permission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alkime/memo/internal/audio"
)

// Status is the microphone access state.
type Status int

const (
	// Undetermined means access has not been requested yet.
	Undetermined Status = iota
	// Granted means capture may start.
	Granted
	// Denied means the user or system refused access.
	Denied
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case Undetermined:
		return "undetermined"
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// ParseStatus maps configuration values to a Status.
func ParseStatus(value string) (Status, error) {
	switch value {
	case "granted":
		return Granted, nil
	case "denied":
		return Denied, nil
	case "", "undetermined":
		return Undetermined, nil
	default:
		return Undetermined, fmt.Errorf("invalid microphone access %q: must be 'granted' or 'denied'", value)
	}
}

// EnumerateFunc lists capture devices.
type EnumerateFunc func(ctx context.Context) ([]audio.Info, error)

// Probe grants access when the audio backend exposes at least one capture
// device. Only a grant is cached; a denial is probed again on the next request
// so a device plugged in later, or a backend that recovers, lifts it.
type Probe struct {
	enumerate EnumerateFunc
	logger    *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewProbe creates a probe backed by audio.EnumerateDevices.
func NewProbe(logger *slog.Logger) *Probe {
	return NewProbeWith(audio.EnumerateDevices, logger)
}

// NewProbeWith creates a probe with a custom device lister.
func NewProbeWith(enumerate EnumerateFunc, logger *slog.Logger) *Probe {
	return &Probe{enumerate: enumerate, logger: logger}
}

// QueryStatus returns the cached status.
func (p *Probe) QueryStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// RequestAccess probes devices on a background goroutine and reports the result.
func (p *Probe) RequestAccess(callback func(granted bool)) {
	go func() {
		if p.QueryStatus() == Granted {
			callback(true)
			return
		}

		devices, err := p.enumerate(context.Background())
		if err != nil {
			p.logger.Warn("microphone probe failed", "error", err)
		}

		status := Denied
		if err == nil && len(devices) > 0 {
			status = Granted
		}

		p.mu.Lock()
		p.status = status
		p.mu.Unlock()

		p.logger.Debug("microphone access resolved", "status", status, "devices", len(devices))

		callback(status == Granted)
	}()
}

// Static answers every query with a fixed status.
type Static struct {
	status Status
}

// NewStatic creates a service that always reports status. An undetermined
// status resolves to denied when access is requested.
func NewStatic(status Status) *Static {
	return &Static{status: status}
}

// QueryStatus returns the fixed status.
func (s *Static) QueryStatus() Status {
	return s.status
}

// RequestAccess reports the fixed answer on a background goroutine.
func (s *Static) RequestAccess(callback func(granted bool)) {
	go callback(s.status == Granted)
}
