package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

type jsoncConfig struct {
	Audio      *jsoncAudio      `json:"audio"`
	VAD        *jsoncVAD        `json:"vad"`
	Segment    *jsoncSegment    `json:"segment"`
	Queues     *jsoncQueues     `json:"queues"`
	Recognizer *jsoncRecognizer `json:"recognizer"`
	Macros     *jsoncMacros     `json:"macros"`
	Actuator   *jsoncActuator   `json:"actuator"`
	Metrics    *jsoncMetrics    `json:"metrics"`
	Log        *jsoncLog        `json:"log"`
	Cues       *jsoncCues       `json:"cues"`
	Debug      *jsoncDebug      `json:"debug"`
}

type jsoncAudio struct {
	Input      *string `json:"input"`
	Fallback   *string `json:"fallback"`
	SampleRate *int    `json:"sample_rate"`
	FrameMS    *int    `json:"frame_ms"`
}

type jsoncVAD struct {
	Backend          *string  `json:"backend"`
	SpeechThreshold  *float64 `json:"speech_threshold"`
	SilenceThreshold *float64 `json:"silence_threshold"`
	WindowMS         *int     `json:"window_ms"`
}

type jsoncSegment struct {
	MaxSilenceFrames *int `json:"max_silence_frames"`
	PreRollFrames    *int `json:"pre_roll_frames"`
	MaxUtteranceMS   *int `json:"max_utterance_ms"`
}

type jsoncQueues struct {
	UtteranceCapacity *int    `json:"utterance_capacity"`
	UtterancePolicy   *string `json:"utterance_policy"`
	TriggerCapacity   *int    `json:"trigger_capacity"`
	TriggerPolicy     *string `json:"trigger_policy"`
}

type jsoncRecognizer struct {
	Backend       *string  `json:"backend"`
	Endpoint      *string  `json:"endpoint"`
	HealthURL     *string  `json:"health_url"`
	GRPCMethod    *string  `json:"grpc_method"`
	Language      *string  `json:"language"`
	TimeoutMS     *int     `json:"timeout_ms"`
	MinConfidence *float64 `json:"min_confidence"`
	WordSeparator *string  `json:"word_separator"`
}

type jsoncMacros struct {
	Path      *string `json:"path"`
	BeatMS    *int    `json:"beat_ms"`
	FrameRate *int    `json:"frame_rate"`
	MaxDepth  *int    `json:"max_depth"`
	Facing    *string `json:"facing"`
	LeftKey   *string `json:"left_key"`
	RightKey  *string `json:"right_key"`
}

type jsoncActuator struct {
	Backend    *string `json:"backend"`
	PressCmd   *string `json:"press_cmd"`
	ReleaseCmd *string `json:"release_cmd"`
	SettleMS   *int    `json:"settle_ms"`
	TimeoutMS  *int    `json:"timeout_ms"`
}

type jsoncMetrics struct {
	Listen *string `json:"listen"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncCues struct {
	Enable         *bool   `json:"enable"`
	RecognizedFile *string `json:"recognized_file"`
	UnmatchedFile  *string `json:"unmatched_file"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setLower(dst *string, src *string) {
	if src != nil {
		*dst = strings.ToLower(strings.TrimSpace(*src))
	}
}

func setValue[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setCommand(dst *CommandConfig, src *string, field string) error {
	if src == nil {
		return nil
	}
	argv, err := parseArgv(*src)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	*dst = CommandConfig{Raw: *src, Argv: argv}
	return nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setValue(&cfg.Audio.SampleRate, a.SampleRate)
		setValue(&cfg.Audio.FrameMS, a.FrameMS)
	}

	if v := payload.VAD; v != nil {
		setLower(&cfg.VAD.Backend, v.Backend)
		setValue(&cfg.VAD.SpeechThreshold, v.SpeechThreshold)
		setValue(&cfg.VAD.SilenceThreshold, v.SilenceThreshold)
		setValue(&cfg.VAD.WindowMS, v.WindowMS)
	}

	if s := payload.Segment; s != nil {
		setValue(&cfg.Segment.MaxSilenceFrames, s.MaxSilenceFrames)
		setValue(&cfg.Segment.PreRollFrames, s.PreRollFrames)
		setValue(&cfg.Segment.MaxUtteranceMS, s.MaxUtteranceMS)
	}

	if q := payload.Queues; q != nil {
		setValue(&cfg.Queues.UtteranceCapacity, q.UtteranceCapacity)
		setLower(&cfg.Queues.UtterancePolicy, q.UtterancePolicy)
		setValue(&cfg.Queues.TriggerCapacity, q.TriggerCapacity)
		setLower(&cfg.Queues.TriggerPolicy, q.TriggerPolicy)
	}

	if r := payload.Recognizer; r != nil {
		setLower(&cfg.Recognizer.Backend, r.Backend)
		setString(&cfg.Recognizer.Endpoint, r.Endpoint)
		setString(&cfg.Recognizer.HealthURL, r.HealthURL)
		setString(&cfg.Recognizer.GRPCMethod, r.GRPCMethod)
		setString(&cfg.Recognizer.Language, r.Language)
		setValue(&cfg.Recognizer.TimeoutMS, r.TimeoutMS)
		setValue(&cfg.Recognizer.MinConfidence, r.MinConfidence)
		// Untrimmed: a single space is a valid separator.
		setValue(&cfg.Recognizer.WordSeparator, r.WordSeparator)
	}

	if m := payload.Macros; m != nil {
		setString(&cfg.Macros.Path, m.Path)
		setValue(&cfg.Macros.BeatMS, m.BeatMS)
		setValue(&cfg.Macros.FrameRate, m.FrameRate)
		setValue(&cfg.Macros.MaxDepth, m.MaxDepth)
		setLower(&cfg.Macros.Facing, m.Facing)
		setLower(&cfg.Macros.LeftKey, m.LeftKey)
		setLower(&cfg.Macros.RightKey, m.RightKey)
	}

	if a := payload.Actuator; a != nil {
		setLower(&cfg.Actuator.Backend, a.Backend)
		if err := setCommand(&cfg.Actuator.PressCmd, a.PressCmd, "actuator.press_cmd"); err != nil {
			return err
		}
		if err := setCommand(&cfg.Actuator.ReleaseCmd, a.ReleaseCmd, "actuator.release_cmd"); err != nil {
			return err
		}
		setValue(&cfg.Actuator.SettleMS, a.SettleMS)
		setValue(&cfg.Actuator.TimeoutMS, a.TimeoutMS)
	}

	if payload.Metrics != nil {
		setString(&cfg.Metrics.Listen, payload.Metrics.Listen)
	}

	if payload.Log != nil {
		setLower(&cfg.Log.Level, payload.Log.Level)
	}

	if c := payload.Cues; c != nil {
		setValue(&cfg.Cues.Enable, c.Enable)
		setString(&cfg.Cues.RecognizedFile, c.RecognizedFile)
		setString(&cfg.Cues.UnmatchedFile, c.UnmatchedFile)
	}

	if payload.Debug != nil {
		setValue(&cfg.Debug.EnableAudioDump, payload.Debug.AudioDump)
	}

	return nil
}
