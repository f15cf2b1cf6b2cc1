// Package cue plays short audio confirmations for recognition outcomes.
package cue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/kombo/internal/config"
)

// Kind selects which cue to play.
type Kind int

const (
	KindRecognized Kind = iota + 1
	KindUnmatched
)

func (k Kind) String() string {
	switch k {
	case KindRecognized:
		return "recognized"
	case KindUnmatched:
		return "unmatched"
	default:
		return "unknown"
	}
}

// Player plays cues in the background. A cue requested while another is
// still playing is skipped.
type Player struct {
	cfg    config.CueConfig
	logger *slog.Logger

	playFile  func(path string) error
	playSynth func(samples []int16) error

	busy sync.Mutex
	wg   sync.WaitGroup
}

// NewPlayer builds a player. A disabled config yields a player that never
// makes a sound.
func NewPlayer(cfg config.CueConfig, logger *slog.Logger) *Player {
	return &Player{
		cfg:       cfg,
		logger:    logger,
		playFile:  playCueFile,
		playSynth: playSynthCue,
	}
}

// Recognized plays the confirmation cue for trigger.
func (p *Player) Recognized(string) {
	p.play(KindRecognized)
}

// Unmatched plays the rejection cue.
func (p *Player) Unmatched(string) {
	p.play(KindUnmatched)
}

// Wait blocks until any in-flight cue finishes.
func (p *Player) Wait() {
	p.wg.Wait()
}

func (p *Player) play(kind Kind) {
	if p == nil || !p.cfg.Enable {
		return
	}
	if !p.busy.TryLock() {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Unlock()
		if err := p.emit(kind); err != nil && p.logger != nil {
			p.logger.Debug("cue playback failed", "cue", kind.String(), "error", err.Error())
		}
	}()
}

// emit prefers the configured file and falls back to the built-in tone.
func (p *Player) emit(kind Kind) error {
	if path := p.cuePath(kind); path != "" {
		if err := p.playFile(path); err == nil {
			return nil
		}
	}

	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return p.playSynth(samples)
}

func (p *Player) cuePath(kind Kind) string {
	var raw string
	switch kind {
	case KindRecognized:
		raw = p.cfg.RecognizedFile
	case KindUnmatched:
		raw = p.cfg.UnmatchedFile
	default:
		return ""
	}
	return expandUserPath(raw)
}

func expandUserPath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if raw == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return raw
		}
		return home
	}
	if !strings.HasPrefix(raw, "~/") {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, strings.TrimPrefix(raw, "~/"))
}

func playCueFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

func playSynthCue(samples []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("kombo"),
		pulse.ClientApplicationIconName("input-gaming"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}

		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueSampleRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("kombo recognition cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}

	return nil
}
