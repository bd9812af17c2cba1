package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gen2brain/malgo"
)

// drainTail is how much silence, as a fraction of a second, is fed after
// the last sample so the device buffer empties before it is stopped.
const drainTail = 10

// pcmSource feeds a recording to device callbacks, followed by a silent tail.
type pcmSource struct {
	pcm    []byte
	pos    int
	tail   int
	silent int
}

func newPCMSource(pcm []byte, format Format) *pcmSource {
	return &pcmSource{pcm: pcm, tail: format.BytesPerSecond() / drainTail}
}

// fill copies the next chunk into out and pads it with silence. It reports
// true once the whole recording and the silent tail have been handed over.
func (s *pcmSource) fill(out []byte) bool {
	n := copy(out, s.pcm[s.pos:])
	s.pos += n
	clear(out[n:])

	if s.pos < len(s.pcm) {
		return false
	}

	s.silent += len(out) - n

	return s.silent >= s.tail
}

// Player plays raw PCM files on the default output device.
type Player struct {
	format Format
	logger *slog.Logger
}

// NewPlayer creates a playback engine for files in the given format.
func NewPlayer(format Format, logger *slog.Logger) *Player {
	return &Player{format: format, logger: logger}
}

// Playback is a running playback.
type Playback struct {
	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
	finished chan struct{}
	stopC    chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Begin loads path and starts playing it. onComplete runs once on a
// background goroutine after the last sample has drained from the device,
// unless Stop was called first.
func (p *Player) Begin(path string, onComplete func()) (*Playback, error) {
	pcm, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	if len(pcm) < p.format.BytesPerFrame() {
		return nil, errors.New("recording is empty")
	}

	pb := &Playback{
		finished: make(chan struct{}),
		stopC:    make(chan struct{}),
		done:     make(chan struct{}),
	}

	// src and signaled are only touched from the device callback thread.
	src := newPCMSource(pcm, p.format)
	signaled := false

	pb.mgCtx, pb.mgDevice, err = allocDevice(malgo.Playback, p.format, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) {
			if src.fill(out) && !signaled {
				signaled = true
				close(pb.finished)
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create playback device: %w", err)
	}

	if err := pb.mgDevice.Start(); err != nil {
		deallocDevice(pb.mgCtx, pb.mgDevice)
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	go func() {
		natural := false

		select {
		case <-pb.finished:
			natural = true
		case <-pb.stopC:
		}

		if err := pb.mgDevice.Stop(); err != nil {
			p.logger.Warn("failed to stop playback device", "error", err)
		}
		deallocDevice(pb.mgCtx, pb.mgDevice)
		close(pb.done)

		p.logger.Debug("playback released", "path", path, "completed", natural)

		if natural && onComplete != nil {
			onComplete()
		}
	}()

	return pb, nil
}

// Stop abandons playback and waits for the device to be released.
func (pb *Playback) Stop() error {
	pb.stopOnce.Do(func() { close(pb.stopC) })
	<-pb.done

	return nil
}
