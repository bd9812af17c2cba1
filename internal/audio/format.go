package audio

import (
	"errors"
	"fmt"

	"github.com/gen2brain/malgo"
)

// Format describes raw interleaved PCM as written to and read from disk.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// PCM16Mono16k is the recording format: mono, 16 kHz, signed 16-bit little-endian.
var PCM16Mono16k = Format{
	SampleRate:    16_000,
	Channels:      1,
	BitsPerSample: 16,
}

// Validate returns an error if the format cannot be captured or played.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}

	if f.Channels <= 0 {
		return errors.New("channels must be positive")
	}

	if _, err := f.malgoFormat(); err != nil {
		return err
	}

	return nil
}

// BytesPerFrame is the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// BytesPerSecond is the data rate of the format.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz, %d ch, s%dle", f.SampleRate, f.Channels, f.BitsPerSample)
}

func (f Format) malgoFormat() (malgo.FormatType, error) {
	switch f.BitsPerSample {
	case 16:
		return malgo.FormatS16, nil
	case 32:
		return malgo.FormatS32, nil
	default:
		return malgo.FormatUnknown, fmt.Errorf("unsupported bits per sample: %d", f.BitsPerSample)
	}
}
