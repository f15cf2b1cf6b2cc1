package config

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

var (
	validQueuePolicies = []string{"block", "drop_oldest", "drop_newest"}
	validLogLevels     = []string{"debug", "info", "warn", "error"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Audio.SampleRate <= 0 {
		return nil, fmt.Errorf("audio.sample_rate must be > 0")
	}
	if cfg.Audio.FrameMS <= 0 {
		return nil, fmt.Errorf("audio.frame_ms must be > 0")
	}
	if cfg.Audio.FrameSamples() == 0 {
		return nil, fmt.Errorf("audio.frame_ms=%d is shorter than one sample at %d Hz", cfg.Audio.FrameMS, cfg.Audio.SampleRate)
	}

	if cfg.VAD.Backend != "energy" {
		return nil, fmt.Errorf("vad.backend must be one of: energy")
	}
	if cfg.VAD.SpeechThreshold <= 0 || cfg.VAD.SpeechThreshold > 1 {
		return nil, fmt.Errorf("vad.speech_threshold must be in (0, 1]")
	}
	if cfg.VAD.SilenceThreshold < 0 {
		return nil, fmt.Errorf("vad.silence_threshold must be >= 0")
	}
	if cfg.VAD.SilenceThreshold > cfg.VAD.SpeechThreshold {
		warnings = append(warnings, Warning{Message: "vad.silence_threshold exceeds vad.speech_threshold; clamping to speech_threshold"})
	}
	if cfg.VAD.WindowMS < 0 {
		return nil, fmt.Errorf("vad.window_ms must be >= 0")
	}
	if cfg.VAD.WindowMS > cfg.Audio.FrameMS {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("vad.window_ms=%d exceeds audio.frame_ms=%d; frames are classified whole", cfg.VAD.WindowMS, cfg.Audio.FrameMS)})
	}

	if cfg.Segment.MaxSilenceFrames < 0 {
		return nil, fmt.Errorf("segment.max_silence_frames must be >= 0")
	}
	if cfg.Segment.PreRollFrames < 0 {
		return nil, fmt.Errorf("segment.pre_roll_frames must be >= 0")
	}
	if cfg.Segment.MaxUtteranceMS < 0 {
		return nil, fmt.Errorf("segment.max_utterance_ms must be >= 0")
	}
	if cfg.Segment.MaxUtteranceMS > 0 {
		ceiling := cfg.Segment.MaxUtteranceMS / cfg.Audio.FrameMS
		if ceiling <= cfg.Segment.PreRollFrames {
			return nil, fmt.Errorf("segment.max_utterance_ms must hold more than pre_roll_frames")
		}
	} else {
		warnings = append(warnings, Warning{Message: "segment.max_utterance_ms=0 disables the utterance memory ceiling"})
	}

	if cfg.Queues.UtteranceCapacity <= 0 {
		return nil, fmt.Errorf("queues.utterance_capacity must be > 0")
	}
	if cfg.Queues.TriggerCapacity <= 0 {
		return nil, fmt.Errorf("queues.trigger_capacity must be > 0")
	}
	if !slices.Contains(validQueuePolicies, cfg.Queues.UtterancePolicy) {
		return nil, fmt.Errorf("queues.utterance_policy must be one of: %s", strings.Join(validQueuePolicies, ", "))
	}
	if !slices.Contains(validQueuePolicies, cfg.Queues.TriggerPolicy) {
		return nil, fmt.Errorf("queues.trigger_policy must be one of: %s", strings.Join(validQueuePolicies, ", "))
	}
	if cfg.Queues.UtterancePolicy == "block" {
		warnings = append(warnings, Warning{Message: "queues.utterance_policy=block stalls audio capture while recognition is behind"})
	}

	switch cfg.Recognizer.Backend {
	case "http":
		if !strings.HasPrefix(cfg.Recognizer.Endpoint, "http://") && !strings.HasPrefix(cfg.Recognizer.Endpoint, "https://") {
			return nil, fmt.Errorf("recognizer.endpoint must be an http(s) URL when recognizer.backend=http")
		}
	case "grpc":
		if strings.TrimSpace(cfg.Recognizer.Endpoint) == "" {
			return nil, fmt.Errorf("recognizer.endpoint must not be empty")
		}
		if !strings.HasPrefix(cfg.Recognizer.GRPCMethod, "/") || strings.Count(cfg.Recognizer.GRPCMethod, "/") != 2 {
			return nil, fmt.Errorf("recognizer.grpc_method must look like /package.Service/Method")
		}
	default:
		return nil, fmt.Errorf("recognizer.backend must be one of: http, grpc")
	}
	if cfg.Recognizer.TimeoutMS <= 0 {
		return nil, fmt.Errorf("recognizer.timeout_ms must be > 0")
	}
	if cfg.Recognizer.MinConfidence < 0 || cfg.Recognizer.MinConfidence > 1 {
		return nil, fmt.Errorf("recognizer.min_confidence must be in [0, 1]")
	}
	// An empty separator joins words directly, so "fa bo" matches "fabo".
	if strings.IndexFunc(cfg.Recognizer.WordSeparator, isWordRune) >= 0 {
		return nil, fmt.Errorf("recognizer.word_separator must not contain letters or digits")
	}

	if strings.TrimSpace(cfg.Macros.Path) == "" {
		return nil, fmt.Errorf("macros.path must not be empty")
	}
	if cfg.Macros.BeatMS <= 0 {
		return nil, fmt.Errorf("macros.beat_ms must be > 0")
	}
	if cfg.Macros.FrameRate <= 0 {
		return nil, fmt.Errorf("macros.frame_rate must be > 0")
	}
	if cfg.Macros.MaxDepth <= 0 {
		return nil, fmt.Errorf("macros.max_depth must be > 0")
	}
	if cfg.Macros.Facing != "left" && cfg.Macros.Facing != "right" {
		return nil, fmt.Errorf("macros.facing must be one of: left, right")
	}
	if cfg.Macros.LeftKey == "" || cfg.Macros.RightKey == "" {
		return nil, fmt.Errorf("macros.left_key and macros.right_key must not be empty")
	}
	if cfg.Macros.LeftKey == cfg.Macros.RightKey {
		return nil, fmt.Errorf("macros.left_key and macros.right_key must differ")
	}

	switch cfg.Actuator.Backend {
	case "uinput", "log":
	case "command":
		if len(cfg.Actuator.PressCmd.Argv) == 0 || len(cfg.Actuator.ReleaseCmd.Argv) == 0 {
			return nil, fmt.Errorf("actuator.press_cmd and actuator.release_cmd are required when actuator.backend=command")
		}
		if !cfg.Actuator.PressCmd.HasKeyPlaceholder() || !cfg.Actuator.ReleaseCmd.HasKeyPlaceholder() {
			warnings = append(warnings, Warning{Message: "actuator command has no {key} placeholder; every key sends the same command"})
		}
	default:
		return nil, fmt.Errorf("actuator.backend must be one of: uinput, command, log")
	}
	if cfg.Actuator.SettleMS < 0 {
		return nil, fmt.Errorf("actuator.settle_ms must be >= 0")
	}
	if cfg.Actuator.TimeoutMS <= 0 {
		return nil, fmt.Errorf("actuator.timeout_ms must be > 0")
	}

	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		return nil, fmt.Errorf("log.level must be one of: %s", strings.Join(validLogLevels, ", "))
	}

	return warnings, nil
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
