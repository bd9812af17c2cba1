package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alkime/memo/internal/audio"
	"github.com/alkime/memo/internal/config"
	"github.com/alkime/memo/internal/permission"
	"github.com/alkime/memo/internal/session"
	"github.com/alkime/memo/internal/workdir"
)

func newController(ctx context.Context, cfg *config.Config, log *slog.Logger) (*session.Controller, error) {
	perm, err := newPermissionService(cfg, log)
	if err != nil {
		return nil, err
	}

	format := audio.PCM16Mono16k

	ctrl, err := session.New(ctx, session.Config{
		Permission:    perm,
		Capture:       captureEngine{capturer: audio.NewCapturer(log)},
		Playback:      playbackEngine{player: audio.NewPlayer(format, log)},
		RecordingPath: workdir.FilePath(cfg.RecordingPath, workdir.RecordingFile),
		Format:        format,
		Logger:        log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recording session: %w", err)
	}

	return ctrl, nil
}

func newPermissionService(cfg *config.Config, log *slog.Logger) (session.PermissionService, error) {
	if cfg.MicAccess == config.MicAccessProbe {
		return permission.NewProbe(log), nil
	}

	status, err := permission.ParseStatus(cfg.MicAccess)
	if err != nil {
		return nil, err
	}

	return permission.NewStatic(status), nil
}

// captureEngine adapts audio.Capturer to session.CaptureEngine.
type captureEngine struct {
	capturer *audio.Capturer
}

func (ce captureEngine) Begin(path string, format audio.Format) (session.Capture, error) {
	capture, err := ce.capturer.Begin(path, format)
	if err != nil {
		return nil, err
	}

	return capture, nil
}

// playbackEngine adapts audio.Player to session.PlaybackEngine.
type playbackEngine struct {
	player *audio.Player
}

func (pe playbackEngine) Begin(path string, onComplete func()) (session.Playback, error) {
	playback, err := pe.player.Begin(path, onComplete)
	if err != nil {
		return nil, err
	}

	return playback, nil
}
