package segment

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxSilenceFrames = 3
	DefaultPreRollFrames    = 3
	// DefaultMaxUtteranceFrames is ten seconds of 20ms frames.
	DefaultMaxUtteranceFrames = 500
)

// Classifier decides whether a single frame contains speech.
type Classifier interface {
	Classify(frame Frame) (bool, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(frame Frame) (bool, error)

// Classify calls f(frame).
func (f ClassifierFunc) Classify(frame Frame) (bool, error) {
	return f(frame)
}

// Config bounds the segmentation state machine.
type Config struct {
	// MaxSilenceFrames is the number of consecutive non-speech frames tolerated
	// inside an utterance. One more ends it.
	MaxSilenceFrames int
	// PreRollFrames is the size of the rolling window of non-speech frames kept
	// while idle and prepended when speech begins. Zero disables it.
	PreRollFrames int
	// MaxUtteranceFrames caps the buffer. Reaching it force-emits the buffer.
	// Zero disables the ceiling.
	MaxUtteranceFrames int
}

// DefaultConfig returns the tuning used for 20ms frames.
func DefaultConfig() Config {
	return Config{
		MaxSilenceFrames:   DefaultMaxSilenceFrames,
		PreRollFrames:      DefaultPreRollFrames,
		MaxUtteranceFrames: DefaultMaxUtteranceFrames,
	}
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	Frames             uint64
	SpeechFrames       uint64
	ClassifierFailures uint64
	Utterances         uint64
	Forced             uint64
	DiscardedTails     uint64
}

type counters struct {
	frames             atomic.Uint64
	speechFrames       atomic.Uint64
	classifierFailures atomic.Uint64
	utterances         atomic.Uint64
	forced             atomic.Uint64
	discardedTails     atomic.Uint64
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source used for utterance bounds.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDFunc overrides utterance ID generation.
func WithIDFunc(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithClassifierErrorHook registers a callback for classifier failures.
func WithClassifierErrorHook(hook func(Frame, error)) Option {
	return func(e *Engine) {
		e.onClassifierError = hook
	}
}

// Engine is the voice-activity state machine.
//
// Feed, Flush and Reset must be called from one goroutine. Stats and Speaking
// are safe to call concurrently.
type Engine struct {
	cfg               Config
	classifier        Classifier
	now               func() time.Time
	newID             func() string
	onClassifierError func(Frame, error)

	speaking       atomic.Bool
	silenceRun     uint32
	buffer         []Frame
	speechInBuffer int
	startedAt      time.Time
	preRoll        []Frame

	stats counters
}

// NewEngine builds an engine. Negative config values are clamped to zero.
func NewEngine(cfg Config, classifier Classifier, opts ...Option) *Engine {
	if cfg.MaxSilenceFrames < 0 {
		cfg.MaxSilenceFrames = 0
	}
	if cfg.PreRollFrames < 0 {
		cfg.PreRollFrames = 0
	}
	if cfg.MaxUtteranceFrames < 0 {
		cfg.MaxUtteranceFrames = 0
	}
	e := &Engine{
		cfg:        cfg,
		classifier: classifier,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Feed advances the state machine by one frame. It returns a completed
// utterance when this frame closed one.
func (e *Engine) Feed(frame Frame) (Utterance, bool) {
	e.stats.frames.Add(1)
	speech := e.classify(frame)
	if speech {
		e.stats.speechFrames.Add(1)
	}

	if !e.speaking.Load() {
		if !speech {
			e.remember(frame)
			return Utterance{}, false
		}
		e.begin()
		e.append(frame, true)
		return e.checkCeiling()
	}

	if speech {
		e.silenceRun = 0
		e.append(frame, true)
		return e.checkCeiling()
	}

	e.append(frame, false)
	e.silenceRun++
	if int(e.silenceRun) > e.cfg.MaxSilenceFrames {
		return e.finish(false)
	}
	return e.checkCeiling()
}

// Flush closes the in-progress utterance, if any. Call it when the audio
// source ends so trailing speech is not lost.
func (e *Engine) Flush() (Utterance, bool) {
	if !e.speaking.Load() {
		return Utterance{}, false
	}
	return e.finish(false)
}

// Reset drops buffered audio and returns to the idle state.
func (e *Engine) Reset() {
	e.speaking.Store(false)
	e.silenceRun = 0
	e.buffer = nil
	e.speechInBuffer = 0
	e.preRoll = e.preRoll[:0]
}

// Speaking reports whether an utterance is currently open.
func (e *Engine) Speaking() bool {
	return e.speaking.Load()
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Frames:             e.stats.frames.Load(),
		SpeechFrames:       e.stats.speechFrames.Load(),
		ClassifierFailures: e.stats.classifierFailures.Load(),
		Utterances:         e.stats.utterances.Load(),
		Forced:             e.stats.forced.Load(),
		DiscardedTails:     e.stats.discardedTails.Load(),
	}
}

func (e *Engine) classify(frame Frame) bool {
	if e.classifier == nil {
		return false
	}
	speech, err := e.classifier.Classify(frame)
	if err != nil {
		e.stats.classifierFailures.Add(1)
		if e.onClassifierError != nil {
			e.onClassifierError(frame, err)
		}
		return false
	}
	return speech
}

// remember keeps the most recent idle frames for the pre-roll window.
func (e *Engine) remember(frame Frame) {
	if e.cfg.PreRollFrames == 0 {
		return
	}
	if len(e.preRoll) == e.cfg.PreRollFrames {
		copy(e.preRoll, e.preRoll[1:])
		e.preRoll = e.preRoll[:len(e.preRoll)-1]
	}
	e.preRoll = append(e.preRoll, frame)
}

func (e *Engine) begin() {
	e.speaking.Store(true)
	e.silenceRun = 0
	e.openBuffer()
	e.buffer = append(e.buffer, e.preRoll...)
	e.preRoll = e.preRoll[:0]
}

func (e *Engine) openBuffer() {
	capHint := 64
	if e.cfg.MaxUtteranceFrames > 0 && e.cfg.MaxUtteranceFrames < capHint {
		capHint = e.cfg.MaxUtteranceFrames
	}
	e.buffer = make([]Frame, 0, capHint)
	e.speechInBuffer = 0
	e.startedAt = e.now()
}

func (e *Engine) append(frame Frame, speech bool) {
	e.buffer = append(e.buffer, frame)
	if speech {
		e.speechInBuffer++
	}
}

func (e *Engine) checkCeiling() (Utterance, bool) {
	if e.cfg.MaxUtteranceFrames == 0 || len(e.buffer) < e.cfg.MaxUtteranceFrames {
		return Utterance{}, false
	}
	return e.finish(true)
}

// finish hands the buffer off and opens the next state. A forced cut keeps
// the speaking state and its silence run so the hangover still applies.
func (e *Engine) finish(forced bool) (Utterance, bool) {
	frames := e.buffer
	speechFrames := e.speechInBuffer
	startedAt := e.startedAt

	if forced {
		e.openBuffer()
	} else {
		e.speaking.Store(false)
		e.silenceRun = 0
		e.buffer = nil
		e.speechInBuffer = 0
	}

	if len(frames) == 0 {
		return Utterance{}, false
	}
	if speechFrames == 0 {
		e.stats.discardedTails.Add(1)
		return Utterance{}, false
	}

	e.stats.utterances.Add(1)
	if forced {
		e.stats.forced.Add(1)
	}
	return Utterance{
		ID:           e.newID(),
		Frames:       frames,
		SpeechFrames: speechFrames,
		Forced:       forced,
		StartedAt:    startedAt,
		EndedAt:      e.now(),
	}, true
}
