package session_test

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alkime/memo/internal/audio"
	"github.com/alkime/memo/internal/permission"
	"github.com/alkime/memo/internal/session"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// fakePermission answers with a switchable status.
type fakePermission struct {
	status atomic.Int32
	grant  atomic.Bool
}

func newFakePermission(status permission.Status, grant bool) *fakePermission {
	p := &fakePermission{}
	p.status.Store(int32(status))
	p.grant.Store(grant)
	return p
}

func (p *fakePermission) QueryStatus() permission.Status {
	return permission.Status(p.status.Load())
}

func (p *fakePermission) RequestAccess(callback func(granted bool)) {
	go callback(p.grant.Load())
}

// fakeCapture writes a marker into the slot like a real capture would.
type fakeCapture struct {
	mu      sync.Mutex
	begins  int
	stops   int
	err     error
	stopErr error
	formats []audio.Format
}

type fakeCaptureHandle struct {
	engine *fakeCapture
}

func (h fakeCaptureHandle) Stop() error {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	h.engine.stops++
	return h.engine.stopErr
}

func (f *fakeCapture) Begin(path string, format audio.Format) (session.Capture, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.begins++
	f.formats = append(f.formats, format)

	if err := os.WriteFile(path, []byte{0x01, 0x00, 0x02, 0x00}, 0o600); err != nil {
		return nil, err
	}

	return fakeCaptureHandle{engine: f}, nil
}

func (f *fakeCapture) counts() (begins, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begins, f.stops
}

// fakePlayback holds on to the completion callback until complete is called.
type fakePlayback struct {
	mu         sync.Mutex
	err        error
	begins     int
	stops      int
	onComplete func()
}

type fakePlaybackHandle struct {
	engine *fakePlayback
}

func (h fakePlaybackHandle) Stop() error {
	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	h.engine.stops++
	h.engine.onComplete = nil
	return nil
}

func (f *fakePlayback) Begin(_ string, onComplete func()) (session.Playback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	f.begins++
	f.onComplete = onComplete

	return fakePlaybackHandle{engine: f}, nil
}

func (f *fakePlayback) complete() {
	f.mu.Lock()
	done := f.onComplete
	f.onComplete = nil
	f.mu.Unlock()

	if done != nil {
		go done()
	}
}

// reports collects reported failures.
type reports struct {
	mu   sync.Mutex
	errs []error
}

func (r *reports) Report(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *reports) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type harness struct {
	ctrl       *session.Controller
	clock      *clockwork.FakeClock
	permission *fakePermission
	capture    *fakeCapture
	playback   *fakePlayback
	reports    *reports
	path       string
}

func newHarness(t *testing.T, status permission.Status) *harness {
	t.Helper()

	h := &harness{
		clock:      clockwork.NewFakeClock(),
		permission: newFakePermission(status, status == permission.Granted),
		capture:    &fakeCapture{},
		playback:   &fakePlayback{},
		reports:    &reports{},
		path:       filepath.Join(t.TempDir(), "slot", "recording.pcm"),
	}

	ctrl, err := session.New(context.Background(), session.Config{
		Permission:    h.permission,
		Capture:       h.capture,
		Playback:      h.playback,
		RecordingPath: h.path,
		Clock:         h.clock,
		Reporter:      h.reports,
		Logger:        slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	h.ctrl = ctrl

	return h
}

// advance moves the fake clock one second at a time, waiting for each tick
// to land before the next.
func (h *harness) advance(t *testing.T, seconds int) {
	t.Helper()

	for range seconds {
		want := h.ctrl.State().ElapsedSeconds + 1
		h.clock.Advance(time.Second)
		require.Eventually(t, func() bool {
			return h.ctrl.State().ElapsedSeconds == want
		}, waitFor, tick, "elapsed should reach %d", want)
	}
}

func TestNew_Validates(t *testing.T) {
	t.Parallel()

	perm := newFakePermission(permission.Granted, true)

	tests := []struct {
		name        string
		config      session.Config
		expectError string
	}{
		{
			name:        "missing permission",
			config:      session.Config{Capture: &fakeCapture{}, Playback: &fakePlayback{}, RecordingPath: "x"},
			expectError: "permission service cannot be nil",
		},
		{
			name:        "missing capture",
			config:      session.Config{Permission: perm, Playback: &fakePlayback{}, RecordingPath: "x"},
			expectError: "capture engine cannot be nil",
		},
		{
			name:        "missing playback",
			config:      session.Config{Permission: perm, Capture: &fakeCapture{}, RecordingPath: "x"},
			expectError: "playback engine cannot be nil",
		},
		{
			name:        "missing path",
			config:      session.Config{Permission: perm, Capture: &fakeCapture{}, Playback: &fakePlayback{}},
			expectError: "recording path cannot be empty",
		},
		{
			name: "bad format",
			config: session.Config{
				Permission: perm, Capture: &fakeCapture{}, Playback: &fakePlayback{}, RecordingPath: "x",
				Format: audio.Format{SampleRate: 16000, Channels: 1, BitsPerSample: 12},
			},
			expectError: "invalid recording format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := session.New(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectError)
		})
	}
}

func TestController_InitialState(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	assert.Equal(t, session.State{RecordingPath: h.path}, h.ctrl.State())
	assert.Equal(t, session.PhaseIdle, h.ctrl.State().Phase())

	// the slot directory is prepared up front
	_, err := os.Stat(filepath.Dir(h.path))
	require.NoError(t, err)
}

func TestController_RecordThreeSeconds(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	require.NoError(t, h.ctrl.StartRecording())

	state := h.ctrl.State()
	assert.True(t, state.IsRecording)
	assert.Equal(t, 0, state.ElapsedSeconds)
	assert.Equal(t, session.PhaseRecording, state.Phase())

	h.advance(t, 3)
	h.ctrl.StopRecording()

	state = h.ctrl.State()
	assert.False(t, state.IsRecording)
	assert.Equal(t, 3, state.ElapsedSeconds)

	begins, stops := h.capture.counts()
	assert.Equal(t, 1, begins)
	assert.Equal(t, 1, stops)
	assert.Equal(t, []audio.Format{audio.PCM16Mono16k}, h.capture.formats)
	assert.Empty(t, h.reports.all())
}

func TestController_TimerStopsWithRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	require.NoError(t, h.ctrl.StartRecording())
	h.advance(t, 2)
	h.ctrl.StopRecording()

	h.clock.Advance(5 * time.Second)
	assert.Never(t, func() bool {
		return h.ctrl.State().ElapsedSeconds != 2
	}, 100*time.Millisecond, tick)
}

func TestController_StopWhenIdleIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	h.ctrl.StopRecording()
	assert.Equal(t, session.State{RecordingPath: h.path}, h.ctrl.State())

	require.NoError(t, h.ctrl.StartRecording())
	h.advance(t, 2)
	h.ctrl.StopRecording()
	before := h.ctrl.State()

	h.ctrl.StopRecording()
	assert.Equal(t, before, h.ctrl.State())
	assert.Equal(t, 2, h.ctrl.State().ElapsedSeconds)

	_, stops := h.capture.counts()
	assert.Equal(t, 1, stops)
}

func TestController_StopErrorStillStops(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	h.capture.mu.Lock()
	h.capture.stopErr = errors.New("device wedged")
	h.capture.mu.Unlock()

	require.NoError(t, h.ctrl.StartRecording())
	h.advance(t, 1)
	h.ctrl.StopRecording()

	assert.False(t, h.ctrl.State().IsRecording)
	require.Len(t, h.reports.all(), 1)
	assert.ErrorContains(t, h.reports.all()[0], "device wedged")

	h.clock.Advance(3 * time.Second)
	assert.Never(t, func() bool {
		return h.ctrl.State().ElapsedSeconds != 1
	}, 100*time.Millisecond, tick)
}

func TestController_NewRecordingResetsElapsed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	require.NoError(t, h.ctrl.StartRecording())
	h.advance(t, 4)
	h.ctrl.StopRecording()
	require.Equal(t, 4, h.ctrl.State().ElapsedSeconds)

	require.NoError(t, h.ctrl.StartRecording())
	assert.Equal(t, 0, h.ctrl.State().ElapsedSeconds)

	h.advance(t, 1)
	h.ctrl.StopRecording()
	assert.Equal(t, 1, h.ctrl.State().ElapsedSeconds)
}

func TestController_StartWhileRecordingIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	require.NoError(t, h.ctrl.StartRecording())
	h.advance(t, 1)
	first := h.ctrl.State()

	require.NoError(t, h.ctrl.StartRecording())
	assert.Equal(t, first, h.ctrl.State())

	begins, _ := h.capture.counts()
	assert.Equal(t, 1, begins)
}

func TestController_StartWithoutPermission(t *testing.T) {
	t.Parallel()

	for _, status := range []permission.Status{permission.Denied, permission.Undetermined} {
		t.Run(status.String(), func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, status)

			err := h.ctrl.StartRecording()
			require.ErrorIs(t, err, session.ErrPermissionDenied)

			state := h.ctrl.State()
			assert.False(t, state.IsRecording)
			assert.True(t, state.PermissionDenialPending)

			begins, _ := h.capture.counts()
			assert.Zero(t, begins)

			h.ctrl.DismissPermissionPrompt()
			assert.False(t, h.ctrl.State().PermissionDenialPending)
		})
	}
}

func TestController_RequestMicrophoneAccess(t *testing.T) {
	t.Parallel()

	t.Run("refused raises the prompt", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, permission.Undetermined)
		h.ctrl.RequestMicrophoneAccess()

		require.Eventually(t, func() bool {
			return h.ctrl.State().PermissionDenialPending
		}, waitFor, tick)
	})

	t.Run("granted changes nothing", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, permission.Undetermined)
		h.permission.grant.Store(true)
		h.ctrl.RequestMicrophoneAccess()

		assert.Never(t, func() bool {
			return h.ctrl.State().PermissionDenialPending
		}, 100*time.Millisecond, tick)
	})
}

func TestController_CaptureInitFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	h.capture.err = errors.New("device busy")

	err := h.ctrl.StartRecording()
	require.ErrorIs(t, err, session.ErrCaptureInit)
	assert.Contains(t, err.Error(), "device busy")

	assert.False(t, h.ctrl.State().IsRecording)
	require.Len(t, h.reports.all(), 1)
	assert.ErrorIs(t, h.reports.all()[0], session.ErrCaptureInit)

	// no timer was left behind
	h.clock.Advance(3 * time.Second)
	assert.Never(t, func() bool {
		return h.ctrl.State().ElapsedSeconds != 0
	}, 100*time.Millisecond, tick)
}

func TestController_PlayWithoutRecording(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	err := h.ctrl.PlayRecording()
	require.ErrorIs(t, err, session.ErrFileMissing)

	assert.False(t, h.ctrl.State().IsPlaying)
	require.Len(t, h.reports.all(), 1)
	assert.ErrorIs(t, h.reports.all()[0], session.ErrFileMissing)
	assert.Zero(t, h.playback.begins)
}

func TestController_HasRecordingTracksSlot(t *testing.T) {
	t.Parallel()

	t.Run("slot from an earlier run", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "recording.pcm")
		require.NoError(t, os.WriteFile(path, []byte{0x01, 0x00}, 0o600))

		ctrl, err := session.New(context.Background(), session.Config{
			Permission:    newFakePermission(permission.Granted, true),
			Capture:       &fakeCapture{},
			Playback:      &fakePlayback{},
			RecordingPath: path,
			Clock:         clockwork.NewFakeClock(),
			Reporter:      &reports{},
			Logger:        slog.New(slog.DiscardHandler),
		})
		require.NoError(t, err)
		t.Cleanup(ctrl.Close)

		assert.True(t, ctrl.State().HasRecording)
	})

	t.Run("slot removed behind the session", func(t *testing.T) {
		t.Parallel()

		h := newHarness(t, permission.Granted)
		require.NoError(t, h.ctrl.StartRecording())
		h.ctrl.StopRecording()
		require.True(t, h.ctrl.State().HasRecording)

		require.NoError(t, os.Remove(h.path))

		require.ErrorIs(t, h.ctrl.PlayRecording(), session.ErrFileMissing)
		assert.False(t, h.ctrl.State().HasRecording)
	})
}

func TestController_RecordThenPlay(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	assert.False(t, h.ctrl.State().HasRecording)

	require.NoError(t, h.ctrl.StartRecording())
	h.advance(t, 1)
	h.ctrl.StopRecording()
	assert.True(t, h.ctrl.State().HasRecording)

	require.NoError(t, h.ctrl.PlayRecording())
	assert.True(t, h.ctrl.State().IsPlaying)
	assert.Equal(t, session.PhasePlaying, h.ctrl.State().Phase())

	h.playback.complete()
	require.Eventually(t, func() bool {
		return !h.ctrl.State().IsPlaying
	}, waitFor, tick)

	assert.Equal(t, 1, h.ctrl.State().ElapsedSeconds)
	assert.Empty(t, h.reports.all())
}

func TestController_PlaybackInitFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	require.NoError(t, h.ctrl.StartRecording())
	h.ctrl.StopRecording()

	h.playback.err = errors.New("no output device")

	err := h.ctrl.PlayRecording()
	require.ErrorIs(t, err, session.ErrPlaybackInit)
	assert.False(t, h.ctrl.State().IsPlaying)
	require.Len(t, h.reports.all(), 1)
}

func TestController_RecordingAndPlaybackExclusive(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)

	require.NoError(t, h.ctrl.StartRecording())
	require.ErrorIs(t, h.ctrl.PlayRecording(), session.ErrBusy)
	assert.False(t, h.ctrl.State().IsPlaying)
	h.ctrl.StopRecording()

	require.NoError(t, h.ctrl.PlayRecording())
	require.ErrorIs(t, h.ctrl.StartRecording(), session.ErrBusy)
	require.ErrorIs(t, h.ctrl.PlayRecording(), session.ErrBusy)
	assert.False(t, h.ctrl.State().IsRecording)
	assert.Equal(t, 1, h.playback.begins)
}

func TestController_NeverRecordingAndPlaying(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	updates := h.ctrl.Subscribe()

	var violations atomic.Int32
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		for {
			select {
			case s := <-updates:
				if s.IsRecording && s.IsPlaying {
					violations.Add(1)
				}
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		switch rng.IntN(4) {
		case 0:
			_ = h.ctrl.StartRecording()
		case 1:
			h.ctrl.StopRecording()
		case 2:
			_ = h.ctrl.PlayRecording()
		case 3:
			h.playback.complete()
		}

		s := h.ctrl.State()
		require.False(t, s.IsRecording && s.IsPlaying, "recording and playing at once: %+v", s)
	}

	<-watchDone
	assert.Zero(t, violations.Load())
}

func TestController_SubscribeReceivesChanges(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	updates := h.ctrl.Subscribe()

	require.NoError(t, h.ctrl.StartRecording())

	select {
	case s := <-updates:
		assert.True(t, s.IsRecording)
	case <-time.After(waitFor):
		t.Fatal("no state update after StartRecording")
	}
}

func TestController_Close(t *testing.T) {
	t.Parallel()

	h := newHarness(t, permission.Granted)
	updates := h.ctrl.Subscribe()
	require.NoError(t, h.ctrl.StartRecording())
	h.ctrl.StopRecording()

	h.ctrl.Close()
	h.ctrl.Close()

	// every snapshot published before Close has been delivered
	require.Len(t, updates, 2)
	<-updates
	last := <-updates
	assert.False(t, last.IsRecording)

	_, stops := h.capture.counts()
	assert.Equal(t, 1, stops)

	require.ErrorIs(t, h.ctrl.StartRecording(), session.ErrClosed)
	require.ErrorIs(t, h.ctrl.PlayRecording(), session.ErrClosed)
	h.ctrl.StopRecording()
}

func TestController_SessionSetupFailure(t *testing.T) {
	t.Parallel()

	// a regular file where the slot directory should be
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	rep := &reports{}
	ctrl, err := session.New(context.Background(), session.Config{
		Permission:    newFakePermission(permission.Granted, true),
		Capture:       &fakeCapture{},
		Playback:      &fakePlayback{},
		RecordingPath: filepath.Join(blocker, "recording.pcm"),
		Clock:         clockwork.NewFakeClock(),
		Reporter:      rep,
		Logger:        slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	require.Len(t, rep.all(), 1)
	assert.ErrorIs(t, rep.all()[0], session.ErrSessionSetup)

	// degraded, not dead: the next attempt surfaces its own failure
	require.ErrorIs(t, ctrl.StartRecording(), session.ErrCaptureInit)
	assert.False(t, ctrl.State().IsRecording)
}
