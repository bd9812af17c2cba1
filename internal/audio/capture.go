package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alkime/memo/internal/audiofile"
	"github.com/gen2brain/malgo"
)

// Capturer records the default input device to raw PCM files.
type Capturer struct {
	logger *slog.Logger
}

// NewCapturer creates a capture engine.
func NewCapturer(logger *slog.Logger) *Capturer {
	return &Capturer{logger: logger}
}

// Capture is a running recording. Stop it exactly once; extra calls are no-ops.
type Capture struct {
	path     string
	mgCtx    *malgo.AllocatedContext
	mgDevice *malgo.Device
	dataC    chan []byte
	quit     chan struct{}
	writer   *audiofile.Writer
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
	logger   *slog.Logger
}

// Begin opens the capture device, truncates path and starts streaming
// samples into it. The previous file is left untouched if the device
// cannot be opened or started.
func (c *Capturer) Begin(path string, format Format) (*Capture, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture format: %w", err)
	}

	dataC := make(chan []byte, 64)
	quit := make(chan struct{})

	mgCtx, mgDevice, err := allocDevice(malgo.Capture, format, malgo.DeviceCallbacks{
		Data: func(_, samples []byte, _ uint32) {
			// the backend reuses its buffer after the callback returns
			packet := make([]byte, len(samples))
			copy(packet, samples)
			select {
			case dataC <- packet:
			case <-quit:
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create capture device: %w", err)
	}

	writer, err := audiofile.NewWriter(path, dataC)
	if err != nil {
		deallocDevice(mgCtx, mgDevice)
		return nil, fmt.Errorf("failed to create PCM writer: %w", err)
	}

	if err := mgDevice.Start(); err != nil {
		deallocDevice(mgCtx, mgDevice)
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	// Only truncate the slot once the device is actually delivering audio.
	ctx, cancel := context.WithCancel(context.Background())
	if err := writer.Start(ctx); err != nil {
		cancel()
		close(quit)
		_ = mgDevice.Stop()
		deallocDevice(mgCtx, mgDevice)
		return nil, fmt.Errorf("failed to start PCM writer: %w", err)
	}

	capture := &Capture{
		path:     path,
		mgCtx:    mgCtx,
		mgDevice: mgDevice,
		dataC:    dataC,
		quit:     quit,
		writer:   writer,
		cancel:   cancel,
		logger:   c.logger,
	}

	c.logger.Debug("capture started", "path", path, "format", format.String())

	return capture, nil
}

// Stop halts the device, flushes the file and releases the device.
func (c *Capture) Stop() error {
	c.stopOnce.Do(func() {
		// unblock a callback waiting on a full channel so Stop can return
		close(c.quit)

		if c.mgDevice.IsStarted() {
			if err := c.mgDevice.Stop(); err != nil {
				c.stopErr = fmt.Errorf("failed to stop capture device: %w", err)
			}
		}

		// no callbacks run after Uninit, so closing dataC is safe
		deallocDevice(c.mgCtx, c.mgDevice)
		close(c.dataC)

		if err := c.writer.Wait(); err != nil {
			c.stopErr = errors.Join(c.stopErr, err)
		}
		c.cancel()

		c.logger.Debug("capture stopped", "path", c.path, "bytes", c.writer.BytesWritten())
	})

	return c.stopErr
}
