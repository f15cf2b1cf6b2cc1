package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rbright/kombo/internal/audio"
	"github.com/rbright/kombo/internal/config"
	"github.com/rbright/kombo/internal/cue"
	"github.com/rbright/kombo/internal/keys"
	"github.com/rbright/kombo/internal/macro"
	"github.com/rbright/kombo/internal/observe"
	"github.com/rbright/kombo/internal/recognize"
	"github.com/rbright/kombo/internal/segment"
	"github.com/rbright/kombo/internal/vad"
)

// Options customize Build.
type Options struct {
	// ReplayPath replaces live capture with a WAV file.
	ReplayPath string
	// Paced replays at real time instead of as fast as possible.
	Paced bool
	// Recognizer overrides the configured backend. Build still closes it.
	Recognizer recognize.Recognizer
	// Actuator overrides the configured key backend. Build still closes it.
	Actuator keys.Actuator
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// Runtime is a built pipeline plus the resources it owns.
type Runtime struct {
	*Pipeline
	Table *macro.Table

	closers []func() error
}

// Close releases the recognizer and the actuator. Held keys are released.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build wires a pipeline from loaded configuration.
func Build(ctx context.Context, loaded config.Loaded, opts Options) (_ *Runtime, err error) {
	cfg := loaded.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	table, err := macro.LoadTable(loaded.MacroPath())
	if err != nil {
		return nil, err
	}
	rt.Table = table

	interpreter, actuator, err := buildInterpreter(ctx, cfg, table, opts.Actuator, logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, actuator.Close)

	engine, err := buildEngine(cfg, opts.Metrics)
	if err != nil {
		return nil, err
	}

	recognizer := opts.Recognizer
	if recognizer == nil {
		recognizer, err = recognize.New(ctx, cfg.Recognizer)
		if err != nil {
			return nil, fmt.Errorf("recognizer: %w", err)
		}
	}
	rt.closers = append(rt.closers, recognizer.Close)

	var source audio.Source
	if opts.ReplayPath != "" {
		source = audio.WAVSource{
			Path:         opts.ReplayPath,
			SampleRate:   cfg.Audio.SampleRate,
			FrameSamples: cfg.Audio.FrameSamples(),
			Paced:        opts.Paced,
		}
	} else {
		source = audio.PulseSource{
			Input:        cfg.Audio.Input,
			Fallback:     cfg.Audio.Fallback,
			SampleRate:   cfg.Audio.SampleRate,
			FrameSamples: cfg.Audio.FrameSamples(),
			Logger:       logger,
		}
	}

	var dumpDir string
	if cfg.Debug.EnableAudioDump {
		dumpDir, err = DebugDir()
		if err != nil {
			logger.Warn("audio dump disabled", "error", err.Error())
			dumpDir = ""
		}
	}

	resolver := recognize.NewResolver(table, cfg.Recognizer.MinConfidence, cfg.Recognizer.WordSeparator)
	for _, c := range resolver.Conflicts() {
		logger.Warn("macro unreachable by voice",
			"trigger", c.Shadowed,
			"spoken_form", c.Key,
			"shadowed_by", c.Kept,
		)
	}

	var feedback Feedback
	if cfg.Cues.Enable {
		player := cue.NewPlayer(cfg.Cues, logger)
		rt.closers = append(rt.closers, func() error {
			player.Wait()
			return nil
		})
		feedback = player
	}

	p, err := New(Deps{
		Source:           source,
		Engine:           engine,
		Recognizer:       recognizer,
		Resolver:         resolver,
		Interpreter:      interpreter,
		Queues:           cfg.Queues,
		RecognizeTimeout: cfg.Recognizer.Timeout(),
		DumpDir:          dumpDir,
		Feedback:         feedback,
		Metrics:          opts.Metrics,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}
	rt.Pipeline = p
	return rt, nil
}

func buildInterpreter(ctx context.Context, cfg config.Config, table *macro.Table, actuator keys.Actuator, logger *slog.Logger) (*macro.Interpreter, keys.Actuator, error) {
	facing, err := macro.ParseFacing(cfg.Macros.Facing)
	if err != nil {
		return nil, nil, err
	}
	if actuator == nil {
		actuator, err = keys.New(ctx, cfg.Actuator, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("actuator: %w", err)
		}
	}

	interpreter, err := macro.NewInterpreter(table, actuator, macro.Config{
		Timing:   macro.NewTiming(cfg.Macros.Beat(), cfg.Macros.FrameRate),
		MaxDepth: cfg.Macros.MaxDepth,
		Facing:   facing,
		Remap:    macro.Remapper{LeftKey: cfg.Macros.LeftKey, RightKey: cfg.Macros.RightKey},
	}, macro.SystemClock(), logger)
	if err != nil {
		_ = actuator.Close()
		return nil, nil, err
	}
	return interpreter, actuator, nil
}

func buildEngine(cfg config.Config, metrics *observe.Metrics) (*segment.Engine, error) {
	var classifier segment.Classifier
	energy, err := vad.NewEnergy(cfg.Audio.SampleRate, cfg.VAD.SpeechThreshold, cfg.VAD.SilenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}
	classifier = energy
	if cfg.VAD.WindowMS > 0 {
		classifier, err = vad.NewWindowed(energy, cfg.Audio.SampleRate*cfg.VAD.WindowMS/1000)
		if err != nil {
			return nil, fmt.Errorf("vad: %w", err)
		}
	}

	ceiling := 0
	if cfg.Audio.FrameMS > 0 {
		ceiling = cfg.Segment.MaxUtteranceMS / cfg.Audio.FrameMS
	}
	engine := segment.NewEngine(segment.Config{
		MaxSilenceFrames:   cfg.Segment.MaxSilenceFrames,
		PreRollFrames:      cfg.Segment.PreRollFrames,
		MaxUtteranceFrames: ceiling,
	}, classifier, segment.WithClassifierErrorHook(func(segment.Frame, error) {
		metrics.RecordClassifierFailure(context.Background())
	}))
	return engine, nil
}

// DebugDir returns the directory for utterance dumps.
func DebugDir() (string, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, "kombo", "debug"), nil
}

// resolveStateDir returns XDG_STATE_HOME fallback path for debug artifacts.
func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}
