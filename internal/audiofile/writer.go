// Package audiofile persists raw PCM audio and converts it for export.
package audiofile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Writer reads raw PCM audio data from a channel and writes it to disk.
// Starting a Writer truncates any previous file at the same path.
type Writer struct {
	path  string
	input <-chan []byte

	file         *os.File
	bytesWritten int64
	mu           sync.RWMutex
	wg           sync.WaitGroup
	errOnce      sync.Once
	err          error
}

// NewWriter creates a writer for path fed by input (S16LE packets).
func NewWriter(path string, input <-chan []byte) (*Writer, error) {
	if input == nil {
		return nil, errors.New("input channel cannot be nil")
	}

	if path == "" {
		return nil, errors.New("path cannot be empty")
	}

	return &Writer{ //nolint:exhaustruct // file, wg, errOnce, err initialized later
		path:  path,
		input: input,
	}, nil
}

// Start creates the file and begins draining the input channel into it.
// Writing ends when input is closed or ctx is done.
func (w *Writer) Start(ctx context.Context) error {
	if w.file != nil {
		return errors.New("writer already started")
	}

	file, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("failed to create PCM file %s: %w", w.path, err)
	}

	w.file = file

	w.wg.Go(func() {
		defer func() {
			if err := w.file.Sync(); err != nil {
				w.setError(fmt.Errorf("failed to sync PCM file: %w", err))
			}

			if err := w.file.Close(); err != nil {
				w.setError(fmt.Errorf("failed to close PCM file: %w", err))
			}
		}()

		for {
			select {
			case data, ok := <-w.input:
				if !ok {
					return
				}

				n, err := w.file.Write(data)
				if err != nil {
					w.setError(fmt.Errorf("failed to write PCM data: %w", err))
					return
				}

				w.mu.Lock()
				w.bytesWritten += int64(n)
				w.mu.Unlock()

			case <-ctx.Done():
				return
			}
		}
	})

	return nil
}

// Wait blocks until the file is closed and returns the first error, if any.
func (w *Writer) Wait() error {
	w.wg.Wait()
	return w.err
}

// BytesWritten returns the number of bytes written to the file.
// This method is safe to call concurrently from multiple goroutines.
func (w *Writer) BytesWritten() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bytesWritten
}

// setError records the first error that occurs (subsequent calls are no-ops).
func (w *Writer) setError(err error) {
	w.errOnce.Do(func() {
		w.err = err
		slog.Error("PCM writer error", "error", err)
	})
}
