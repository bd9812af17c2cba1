package audiofile_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alkime/memo/internal/audiofile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTone writes one second of a 440 Hz S16LE mono tone.
func writeTone(t *testing.T, path string, sampleRate int) {
	t.Helper()

	data := make([]byte, sampleRate*2)
	for i := range sampleRate {
		v := int16(math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)) * 8000)
		binary.LittleEndian.PutUint16(data[i*2:], uint16(v))
	}

	//nolint:gosec // Test file
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestExportMP3(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pcmPath := filepath.Join(dir, "recording.pcm")
	mp3Path := filepath.Join(dir, "recording.mp3")
	writeTone(t, pcmPath, 16000)

	require.NoError(t, audiofile.ExportMP3(pcmPath, mp3Path, 16000, 1))

	info, err := os.Stat(mp3Path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	// source is left in place
	_, err = os.Stat(pcmPath)
	require.NoError(t, err)
}

func TestExportMP3_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	emptyPath := filepath.Join(dir, "empty.pcm")
	//nolint:gosec // Test file
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o644))

	tests := []struct {
		name        string
		pcmPath     string
		sampleRate  int
		channels    int
		expectError string
	}{
		{"missing file", filepath.Join(dir, "nope.pcm"), 16000, 1, "failed to read PCM file"},
		{"empty file", emptyPath, 16000, 1, "is empty"},
		{"zero sample rate", emptyPath, 0, 1, "sample rate must be positive"},
		{"too many channels", emptyPath, 16000, 6, "unsupported channel count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := audiofile.ExportMP3(tt.pcmPath, filepath.Join(dir, tt.name+".mp3"), tt.sampleRate, tt.channels)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}
