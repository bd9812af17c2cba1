// Package audio drives the microphone and speakers through miniaudio (malgo).
package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// Info describes an audio device as reported by the backend.
type Info struct {
	Name        string
	IsDefault   bool
	FormatCount int
	Formats     []string
}

// EnumerateDevices lists available capture devices.
func EnumerateDevices(ctx context.Context) ([]Info, error) {
	// Initialize an empty context. AFAICT this is fine for just
	// enumrating the available devices.
	devCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer uninitializeContext(devCtx)

	captureDevices, err := devCtx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture devices: %w", err)
	}

	infos := make([]Info, len(captureDevices))
	for i, d := range captureDevices {
		infos[i] = malgoDeviceInfoToDeviceInfo(d)
	}

	return infos, nil
}

// allocDevice creates a context and a device of the given type. The caller
// owns both and must release them with deallocDevice.
func allocDevice(
	devType malgo.DeviceType,
	format Format,
	callbacks malgo.DeviceCallbacks,
) (*malgo.AllocatedContext, *malgo.Device, error) {
	mf, err := format.malgoFormat()
	if err != nil {
		return nil, nil, err
	}

	mgCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	devCnf := malgo.DefaultDeviceConfig(devType)
	devCnf.SampleRate = uint32(format.SampleRate)

	switch devType { //nolint:exhaustive // duplex and loopback are not used
	case malgo.Capture:
		devCnf.Capture.Format = mf
		devCnf.Capture.Channels = uint32(format.Channels)
	case malgo.Playback:
		devCnf.Playback.Format = mf
		devCnf.Playback.Channels = uint32(format.Channels)
	default:
		uninitializeContext(mgCtx)
		return nil, nil, fmt.Errorf("unsupported device type: %v", devType)
	}

	mgDevice, err := malgo.InitDevice(mgCtx.Context, devCnf, callbacks)
	if err != nil {
		uninitializeContext(mgCtx)
		return nil, nil, fmt.Errorf("failed to initialize malgo device: %w", err)
	}

	return mgCtx, mgDevice, nil
}

func deallocDevice(mgCtx *malgo.AllocatedContext, mgDevice *malgo.Device) {
	if mgDevice != nil {
		mgDevice.Uninit()
	}

	uninitializeContext(mgCtx)
}

func malgoDeviceInfoToDeviceInfo(mdi malgo.DeviceInfo) Info {
	formats := make([]string, len(mdi.Formats))
	for i, mf := range mdi.Formats {
		formats[i] = fmt.Sprintf("(SampleSizeBytes: %d, Channels: %d, SampleRate: %d)",
			malgo.SampleSizeInBytes(mf.Format),
			mf.Channels, mf.SampleRate)
	}
	return Info{
		Name:        mdi.Name(),
		IsDefault:   mdi.IsDefault != 0,
		FormatCount: int(mdi.FormatCount),
		Formats:     formats,
	}
}

func uninitializeContext(deviceCtx *malgo.AllocatedContext) {
	if deviceCtx == nil {
		return
	}

	if err := deviceCtx.Uninit(); err != nil {
		slog.Error("failed to uninitialize malgo context", "error", err)
	}
	deviceCtx.Free()
}
