package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/alkime/memo/internal/audio"
	"github.com/alkime/memo/internal/audiofile"
	"github.com/alkime/memo/internal/config"
	"github.com/alkime/memo/internal/logger"
	"github.com/alkime/memo/internal/server"
	"github.com/alkime/memo/internal/tui"
	"github.com/alkime/memo/internal/workdir"
	tea "github.com/charmbracelet/bubbletea"
)

// CLI defines the memo command structure.
type CLI struct {
	// Default command (runs when no subcommand given)
	Screen ScreenCmd `cmd:"" default:"withargs" help:"Open the record/playback screen"`

	// Subcommands
	Devices DevicesCmd `cmd:"" help:"List available capture devices"`
	Export  ExportCmd  `cmd:"" help:"Export the last recording as MP3"`
	Serve   ServeCmd   `cmd:"" help:"Drive the recording session over HTTP"`
}

// ScreenCmd runs the terminal screen.
type ScreenCmd struct{}

// Run executes the screen command.
func (c *ScreenCmd) Run(cfg *config.Config) error {
	logPath := workdir.FilePath(cfg.LogFile, workdir.LogFile)
	if err := workdir.Prep(logPath); err != nil {
		return err
	}

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	// The screen owns stdout, so logs go to the file.
	log := logger.SetupLogger(cfg, logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, err := newController(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	p := tea.NewProgram(tui.New(ctrl))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run screen: %w", err)
	}

	return nil
}

// DevicesCmd lists available audio devices.
type DevicesCmd struct{}

// Run executes the devices command.
func (dcmd *DevicesCmd) Run() error {
	slog.Info("Enumerating audio devices...")

	devices, err := audio.EnumerateDevices(context.Background())
	if err != nil {
		return fmt.Errorf("failed to enumerate audio devices: %w", err)
	}

	for _, dev := range devices {
		slog.Info("Audio Device",
			"name", dev.Name,
			"isDefault", dev.IsDefault,
			"formatCount", dev.FormatCount,
			"formats", dev.Formats,
		)
	}

	return nil
}

// ExportCmd converts the recording slot to MP3.
type ExportCmd struct {
	Output string `arg:"" required:"" help:"MP3 output path"`
}

// Run executes the export command.
func (c *ExportCmd) Run(cfg *config.Config) error {
	pcmPath := workdir.FilePath(cfg.RecordingPath, workdir.RecordingFile)
	if _, err := os.Stat(pcmPath); err != nil {
		return fmt.Errorf("no recording to export at %s: %w", pcmPath, err)
	}

	format := audio.PCM16Mono16k
	if err := audiofile.ExportMP3(pcmPath, c.Output, format.SampleRate, format.Channels); err != nil {
		return fmt.Errorf("failed to export recording: %w", err)
	}

	slog.Info("recording exported", "output", c.Output)

	return nil
}

// ServeCmd exposes the session over HTTP.
type ServeCmd struct {
	Port string `flag:"" optional:"" help:"Listen port (overrides PORT)"`
}

// Run executes the serve command.
func (c *ServeCmd) Run(cfg *config.Config) error {
	if c.Port != "" {
		cfg.Port = c.Port
	}

	log := logger.SetupLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrl, err := newController(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	srv := server.New(cfg, log, ctrl)

	errC := make(chan error, 1)
	go func() { errC <- server.Run(srv) }()

	select {
	case err := <-errC:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Text logging for one-shot commands; long-running commands replace it.
	logger.SetupCLILogger(cfg, os.Stdout)

	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli,
		kong.Name("memo"),
		kong.Description("Record a voice memo and play it back."),
		kong.Bind(cfg),
	)
	err = ctx.Run()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	ctx.FatalIfErrorf(err)
	os.Exit(0)
}
