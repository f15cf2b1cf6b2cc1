package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "zero sample rate", mutate: func(c *Config) { c.Audio.SampleRate = 0 }, wantErr: "audio.sample_rate"},
		{name: "zero frame", mutate: func(c *Config) { c.Audio.FrameMS = 0 }, wantErr: "audio.frame_ms"},
		{name: "unknown vad", mutate: func(c *Config) { c.VAD.Backend = "silero" }, wantErr: "vad.backend"},
		{name: "speech threshold range", mutate: func(c *Config) { c.VAD.SpeechThreshold = 2 }, wantErr: "vad.speech_threshold"},
		{name: "negative hangover", mutate: func(c *Config) { c.Segment.MaxSilenceFrames = -1 }, wantErr: "max_silence_frames"},
		{name: "ceiling below pre-roll", mutate: func(c *Config) { c.Segment.MaxUtteranceMS = 40 }, wantErr: "max_utterance_ms"},
		{name: "zero utterance queue", mutate: func(c *Config) { c.Queues.UtteranceCapacity = 0 }, wantErr: "utterance_capacity"},
		{name: "bad policy", mutate: func(c *Config) { c.Queues.TriggerPolicy = "spill" }, wantErr: "trigger_policy"},
		{name: "http endpoint", mutate: func(c *Config) { c.Recognizer.Endpoint = "127.0.0.1:8090" }, wantErr: "http(s) URL"},
		{name: "grpc method", mutate: func(c *Config) {
			c.Recognizer.Backend = "grpc"
			c.Recognizer.Endpoint = "127.0.0.1:50051"
			c.Recognizer.GRPCMethod = "Recognize"
		}, wantErr: "grpc_method"},
		{name: "unknown recognizer", mutate: func(c *Config) { c.Recognizer.Backend = "funasr" }, wantErr: "recognizer.backend"},
		{name: "confidence range", mutate: func(c *Config) { c.Recognizer.MinConfidence = 1.5 }, wantErr: "min_confidence"},
		{name: "alphanumeric separator", mutate: func(c *Config) { c.Recognizer.WordSeparator = "x" }, wantErr: "word_separator"},
		{name: "zero beat", mutate: func(c *Config) { c.Macros.BeatMS = 0 }, wantErr: "beat_ms"},
		{name: "zero depth", mutate: func(c *Config) { c.Macros.MaxDepth = 0 }, wantErr: "max_depth"},
		{name: "bad facing", mutate: func(c *Config) { c.Macros.Facing = "up" }, wantErr: "macros.facing"},
		{name: "same direction keys", mutate: func(c *Config) { c.Macros.RightKey = "left" }, wantErr: "must differ"},
		{name: "command without argv", mutate: func(c *Config) { c.Actuator.Backend = "command" }, wantErr: "press_cmd"},
		{name: "unknown actuator", mutate: func(c *Config) { c.Actuator.Backend = "xdo" }, wantErr: "actuator.backend"},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "trace" }, wantErr: "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateAcceptsEmptyWordSeparator(t *testing.T) {
	cfg := Default()
	cfg.Recognizer.WordSeparator = ""

	_, err := Validate(cfg)
	require.NoError(t, err)
}

func TestValidateWarnings(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantWarning string
	}{
		{name: "blocking capture", mutate: func(c *Config) { c.Queues.UtterancePolicy = "block" }, wantWarning: "stalls audio capture"},
		{name: "no ceiling", mutate: func(c *Config) { c.Segment.MaxUtteranceMS = 0 }, wantWarning: "memory ceiling"},
		{name: "inverted thresholds", mutate: func(c *Config) { c.VAD.SilenceThreshold = 0.5 }, wantWarning: "clamping"},
		{name: "oversized window", mutate: func(c *Config) { c.VAD.WindowMS = 40 }, wantWarning: "classified whole"},
		{name: "command without placeholder", mutate: func(c *Config) {
			c.Actuator.Backend = "command"
			c.Actuator.PressCmd = CommandConfig{Raw: "beep", Argv: []string{"beep"}}
			c.Actuator.ReleaseCmd = CommandConfig{Raw: "beep", Argv: []string{"beep"}}
		}, wantWarning: "placeholder"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			warnings, err := Validate(cfg)
			require.NoError(t, err)
			require.Len(t, warnings, 1)
			require.Contains(t, warnings[0].Message, tc.wantWarning)
		})
	}
}
