// Package config resolves, parses, validates, and defaults kombo configuration.
package config

import "time"

// Config is the fully materialized runtime configuration used by kombo.
type Config struct {
	Audio      AudioConfig
	VAD        VADConfig
	Segment    SegmentConfig
	Queues     QueueConfig
	Recognizer RecognizerConfig
	Macros     MacroConfig
	Actuator   ActuatorConfig
	Metrics    MetricsConfig
	Log        LogConfig
	Cues       CueConfig
	Debug      DebugConfig
}

// AudioConfig controls input-source selection and frame geometry.
type AudioConfig struct {
	Input      string
	Fallback   string
	SampleRate int
	FrameMS    int
}

// FrameSamples returns the number of samples in one capture frame.
func (a AudioConfig) FrameSamples() int {
	return a.SampleRate * a.FrameMS / 1000
}

// FrameDuration returns the wall-clock length of one capture frame.
func (a AudioConfig) FrameDuration() time.Duration {
	return time.Duration(a.FrameMS) * time.Millisecond
}

// VADConfig controls the per-frame speech classifier.
type VADConfig struct {
	Backend          string
	SpeechThreshold  float64
	SilenceThreshold float64
	// WindowMS splits frames into shorter classifier windows. Zero disables it.
	WindowMS int
}

// SegmentConfig bounds utterance segmentation.
type SegmentConfig struct {
	MaxSilenceFrames int
	PreRollFrames    int
	MaxUtteranceMS   int
}

// QueueConfig sizes the stage hand-off queues.
type QueueConfig struct {
	UtteranceCapacity int
	UtterancePolicy   string
	TriggerCapacity   int
	TriggerPolicy     string
}

// RecognizerConfig selects and tunes the speech recognition backend.
type RecognizerConfig struct {
	Backend       string
	Endpoint      string
	HealthURL     string
	GRPCMethod    string
	Language      string
	TimeoutMS     int
	MinConfidence float64
	WordSeparator string
}

// Timeout returns the per-utterance recognition deadline.
func (r RecognizerConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// MacroConfig locates the command table and tunes the interpreter.
type MacroConfig struct {
	Path      string
	BeatMS    int
	FrameRate int
	MaxDepth  int
	Facing    string
	LeftKey   string
	RightKey  string
}

// Beat returns the press-to-release interval.
func (m MacroConfig) Beat() time.Duration {
	return time.Duration(m.BeatMS) * time.Millisecond
}

// ActuatorConfig selects how key events reach the game.
type ActuatorConfig struct {
	Backend    string
	PressCmd   CommandConfig
	ReleaseCmd CommandConfig
	SettleMS   int
	TimeoutMS  int
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port for /metrics. Empty disables the endpoint.
	Listen string
}

// LogConfig controls the JSONL runtime log.
type LogConfig struct {
	Level string
}

// CueConfig controls audible recognition feedback.
type CueConfig struct {
	Enable bool
	// RecognizedFile and UnmatchedFile replace the built-in tones when set.
	RecognizedFile string
	UnmatchedFile  string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
