package audiofile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"

	mp3encoder "github.com/braheezy/shine-mp3/pkg/mp3"
)

// ExportMP3 encodes a raw S16LE PCM file as MP3.
func ExportMP3(pcmPath, mp3Path string, sampleRate, channels int) error {
	if sampleRate <= 0 {
		return errors.New("sample rate must be positive")
	}

	if channels != 1 && channels != 2 {
		return fmt.Errorf("unsupported channel count: %d", channels)
	}

	pcmData, err := os.ReadFile(pcmPath)
	if err != nil {
		return fmt.Errorf("failed to read PCM file: %w", err)
	}

	if len(pcmData) < 2 {
		return fmt.Errorf("PCM file %s is empty", pcmPath)
	}

	numSamples := len(pcmData) / 2
	pcmSamples := make([]int16, numSamples)

	if err := binary.Read(bytes.NewReader(pcmData[:numSamples*2]), binary.LittleEndian, pcmSamples); err != nil {
		return fmt.Errorf("failed to read PCM samples: %w", err)
	}

	// shine-mp3 works better with stereo
	samples := pcmSamples
	if channels == 1 {
		samples = make([]int16, numSamples*2)
		for i, sample := range pcmSamples {
			samples[i*2] = sample
			samples[i*2+1] = sample
		}
		channels = 2
	}

	slog.Info("converting PCM to MP3",
		"pcmPath", pcmPath,
		"mp3Path", mp3Path,
		"samples", numSamples,
		"sampleRate", sampleRate)

	encoder := mp3encoder.NewEncoder(sampleRate, channels)

	mp3File, err := os.Create(mp3Path)
	if err != nil {
		return fmt.Errorf("failed to create MP3 file %s: %w", mp3Path, err)
	}
	defer mp3File.Close()

	if err := encoder.Write(mp3File, samples); err != nil {
		return fmt.Errorf("failed to encode MP3: %w", err)
	}

	return nil
}
