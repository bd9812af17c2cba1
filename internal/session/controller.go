package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alkime/memo/internal/audio"
	"github.com/alkime/memo/internal/permission"
	"github.com/alkime/memo/pkg/channels"
	"github.com/jonboulle/clockwork"
)

const (
	opQueueSize      = 64
	subscriberBuffer = 16
)

// Config wires a Controller to its collaborators.
type Config struct {
	Permission PermissionService
	Capture    CaptureEngine
	Playback   PlaybackEngine

	// RecordingPath is the single slot every recording overwrites.
	RecordingPath string
	// Format defaults to audio.PCM16Mono16k.
	Format audio.Format

	Clock    clockwork.Clock
	Reporter Reporter
	Logger   *slog.Logger
}

// Controller is the only writer of State. Every mutation runs on its main
// loop goroutine; public methods and engine callbacks are marshaled there.
type Controller struct {
	conf Config

	ops       chan func()
	done      chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once

	updates  *channels.Broadcaster[State]
	publish  chan<- State
	snapshot atomic.Pointer[State]

	// owned by the main loop
	state    State
	capture  Capture
	recGen   uint64
	ticker   clockwork.Ticker
	tickStop chan struct{}
	playback Playback
	playGen  uint64
}

// New creates a controller and starts its main loop. The loop runs until
// Close is called or ctx is done.
func New(ctx context.Context, conf Config) (*Controller, error) {
	if conf.Permission == nil {
		return nil, errors.New("permission service cannot be nil")
	}

	if conf.Capture == nil {
		return nil, errors.New("capture engine cannot be nil")
	}

	if conf.Playback == nil {
		return nil, errors.New("playback engine cannot be nil")
	}

	if conf.RecordingPath == "" {
		return nil, errors.New("recording path cannot be empty")
	}

	if conf.Format == (audio.Format{}) {
		conf.Format = audio.PCM16Mono16k
	}

	if err := conf.Format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recording format: %w", err)
	}

	if conf.Clock == nil {
		conf.Clock = clockwork.NewRealClock()
	}

	if conf.Logger == nil {
		conf.Logger = slog.Default()
	}

	if conf.Reporter == nil {
		conf.Reporter = LogReporter(conf.Logger)
	}

	loopCtx, cancel := context.WithCancel(ctx)

	c := &Controller{
		conf:    conf,
		ops:     make(chan func(), opQueueSize),
		done:    make(chan struct{}),
		cancel:  cancel,
		updates: channels.NewBroadcaster[State](),
		state:   State{RecordingPath: conf.RecordingPath},
	}

	// The broadcaster outlives the loop so a late publish never hits a closed input.
	bcastCtx, bcastCancel := context.WithCancel(context.Background())

	publish, err := c.updates.Run(bcastCtx)
	if err != nil {
		cancel()
		bcastCancel()

		return nil, fmt.Errorf("failed to start state broadcaster: %w", err)
	}
	c.publish = publish

	// Degraded but running: later recording attempts surface their own failures.
	if err := os.MkdirAll(filepath.Dir(conf.RecordingPath), 0o755); err != nil {
		c.report(fmt.Errorf("%w: prepare %s: %w", ErrSessionSetup, conf.RecordingPath, err))
	}

	// A slot left by an earlier run can be played right away.
	c.state.HasRecording = slotExists(conf.RecordingPath)
	initial := c.state
	c.snapshot.Store(&initial)

	go func() {
		defer bcastCancel()
		c.loop(loopCtx)
	}()

	return c, nil
}

// State returns the latest published snapshot.
func (c *Controller) State() State {
	return *c.snapshot.Load()
}

// Subscribe returns a channel receiving a snapshot after every state change.
// Slow readers miss intermediate snapshots; State always has the latest.
// The channel is never closed.
func (c *Controller) Subscribe() <-chan State {
	ch := make(chan State, subscriberBuffer)
	if err := c.updates.Subscribe(ch); err != nil {
		c.conf.Logger.Error("failed to subscribe to session state", "error", err)
	}

	return ch
}

// Close stops any capture, timer and playback and ends the main loop. It
// returns once every published snapshot has been handed to subscribers.
func (c *Controller) Close() {
	c.closeOnce.Do(c.cancel)
	<-c.done
	c.updates.Wait()
}

// RequestMicrophoneAccess asks the permission service for access without
// blocking. A refusal raises PermissionDenialPending; a grant changes nothing.
func (c *Controller) RequestMicrophoneAccess() {
	go func() {
		if c.conf.Permission.QueryStatus() == permission.Granted {
			return
		}

		c.conf.Permission.RequestAccess(func(granted bool) {
			if granted {
				c.conf.Logger.Debug("microphone access granted")
				return
			}

			c.post(func() {
				c.state.PermissionDenialPending = true
				c.publishState()
			})
		})
	}()
}

// DismissPermissionPrompt clears PermissionDenialPending once the prompt was shown.
func (c *Controller) DismissPermissionPrompt() {
	_ = c.do(func() {
		if !c.state.PermissionDenialPending {
			return
		}

		c.state.PermissionDenialPending = false
		c.publishState()
	})
}

// StartRecording begins capturing to the recording slot. It is a no-op while
// already recording and fails with ErrBusy while playing.
func (c *Controller) StartRecording() error {
	var err error
	if doErr := c.do(func() { err = c.startRecording() }); doErr != nil {
		return doErr
	}

	return err
}

// StopRecording ends an active recording. Safe to call at any time.
func (c *Controller) StopRecording() {
	_ = c.do(c.stopRecording)
}

// PlayRecording plays the recording slot. It fails with ErrFileMissing when
// nothing was recorded yet and with ErrBusy while recording or playing.
func (c *Controller) PlayRecording() error {
	var err error
	if doErr := c.do(func() { err = c.playRecording() }); doErr != nil {
		return doErr
	}

	return err
}

func (c *Controller) startRecording() error {
	if c.state.IsRecording {
		return nil
	}

	if c.state.IsPlaying {
		return fmt.Errorf("%w: playback in progress", ErrBusy)
	}

	if c.conf.Permission.QueryStatus() != permission.Granted {
		c.state.PermissionDenialPending = true
		c.publishState()

		return ErrPermissionDenied
	}

	capture, err := c.conf.Capture.Begin(c.conf.RecordingPath, c.conf.Format)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrCaptureInit, err)
		c.report(err)

		return err
	}

	c.capture = capture
	c.state.ElapsedSeconds = 0
	c.state.IsRecording = true
	c.startTimer()
	c.publishState()

	c.conf.Logger.Info("recording started", "path", c.conf.RecordingPath)

	return nil
}

func (c *Controller) stopRecording() {
	if !c.state.IsRecording {
		return
	}

	c.stopTimer()

	if err := c.capture.Stop(); err != nil {
		c.report(fmt.Errorf("failed to stop capture: %w", err))
	}

	c.capture = nil
	c.state.IsRecording = false
	c.state.HasRecording = slotExists(c.conf.RecordingPath)
	c.publishState()

	c.conf.Logger.Info("recording stopped", "elapsedSeconds", c.state.ElapsedSeconds)
}

func (c *Controller) playRecording() error {
	if c.state.IsRecording || c.state.IsPlaying {
		return fmt.Errorf("%w: %s in progress", ErrBusy, c.state.Phase())
	}

	if !slotExists(c.conf.RecordingPath) {
		if c.state.HasRecording {
			c.state.HasRecording = false
			c.publishState()
		}

		err := fmt.Errorf("%w at %s", ErrFileMissing, c.conf.RecordingPath)
		c.report(err)

		return err
	}

	c.playGen++
	gen := c.playGen

	playback, err := c.conf.Playback.Begin(c.conf.RecordingPath, func() {
		c.post(func() { c.playbackFinished(gen) })
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrPlaybackInit, err)
		c.report(err)

		return err
	}

	c.playback = playback
	c.state.IsPlaying = true
	c.publishState()

	c.conf.Logger.Info("playback started", "path", c.conf.RecordingPath)

	return nil
}

func (c *Controller) playbackFinished(gen uint64) {
	if gen != c.playGen || !c.state.IsPlaying {
		return
	}

	c.playback = nil
	c.state.IsPlaying = false
	c.publishState()

	c.conf.Logger.Info("playback finished")
}

// startTimer begins the one-second counter for the current recording.
// Ticks from a previous recording are discarded by generation.
func (c *Controller) startTimer() {
	c.recGen++
	gen := c.recGen

	ticker := c.conf.Clock.NewTicker(time.Second)
	stop := make(chan struct{})
	c.ticker, c.tickStop = ticker, stop

	go func() {
		for {
			select {
			case <-ticker.Chan():
				c.post(func() { c.tick(gen) })
			case <-stop:
				return
			}
		}
	}()
}

func (c *Controller) tick(gen uint64) {
	if gen != c.recGen || !c.state.IsRecording {
		return
	}

	c.state.ElapsedSeconds++
	c.publishState()
}

func (c *Controller) stopTimer() {
	if c.ticker == nil {
		return
	}

	c.ticker.Stop()
	close(c.tickStop)
	c.ticker, c.tickStop = nil, nil
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case op := <-c.ops:
			op()
		case <-ctx.Done():
			c.teardown()
			return
		}
	}
}

func (c *Controller) teardown() {
	c.stopTimer()

	if c.capture != nil {
		if err := c.capture.Stop(); err != nil {
			c.conf.Logger.Warn("failed to stop capture on close", "error", err)
		}
		c.capture = nil
	}

	if c.playback != nil {
		if err := c.playback.Stop(); err != nil {
			c.conf.Logger.Warn("failed to stop playback on close", "error", err)
		}
		c.playback = nil
	}

	c.conf.Logger.Debug("session closed")
}

// post queues op on the main loop without waiting for it.
func (c *Controller) post(op func()) {
	select {
	case c.ops <- op:
	case <-c.done:
	}
}

// do runs op on the main loop and waits for it to finish.
func (c *Controller) do(op func()) error {
	finished := make(chan struct{})

	select {
	case c.ops <- func() {
		defer close(finished)
		op()
	}:
	case <-c.done:
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

func (c *Controller) publishState() {
	s := c.state
	c.snapshot.Store(&s)
	c.publish <- s
}

// slotExists reports whether path is a regular file.
func slotExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (c *Controller) report(err error) {
	c.conf.Reporter.Report(err)
}
