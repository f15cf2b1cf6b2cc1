package macro

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Actuator injects key events.
type Actuator interface {
	Press(key string) error
	Release(key string) error
}

// Clock abstracts time for the executor.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Now() time.Time        { return time.Now() }
func (systemClock) Sleep(d time.Duration) { time.Sleep(d) }

// SystemClock returns the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

// Config tunes an Interpreter.
type Config struct {
	Timing   Timing
	MaxDepth int
	Facing   Facing
	Remap    Remapper
}

// Report summarizes one macro execution.
type Report struct {
	Trigger      string
	Tokens       int
	Actions      int
	Failures     []*ActuationError
	Expected     time.Duration
	Elapsed      time.Duration
	FacingBefore Facing
	FacingAfter  Facing
}

// Interpreter expands and executes macros against an Actuator.
//
// Execute calls are serialized; macros never interleave. The facing side is
// written only while a macro runs and readers see an atomic snapshot.
type Interpreter struct {
	table    *Table
	actuator Actuator
	clock    Clock
	logger   *slog.Logger
	cfg      Config

	mu     sync.Mutex
	facing atomic.Int32
}

// NewInterpreter builds an interpreter over a loaded table.
func NewInterpreter(table *Table, actuator Actuator, cfg Config, clock Clock, logger *slog.Logger) (*Interpreter, error) {
	if table == nil {
		return nil, fmt.Errorf("interpreter needs a command table")
	}
	if actuator == nil {
		return nil, fmt.Errorf("interpreter needs an actuator")
	}
	if clock == nil {
		clock = SystemClock()
	}
	defaults := NewTiming(0, 0)
	if cfg.Timing.Beat <= 0 {
		cfg.Timing.Beat = defaults.Beat
	}
	if cfg.Timing.Frame <= 0 {
		cfg.Timing.Frame = defaults.Frame
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Remap.LeftKey == "" && cfg.Remap.RightKey == "" {
		cfg.Remap = DefaultRemapper()
	}
	in := &Interpreter{
		table:    table,
		actuator: actuator,
		clock:    clock,
		logger:   logger,
		cfg:      cfg,
	}
	in.facing.Store(int32(cfg.Facing))
	return in, nil
}

// Table returns the command table.
func (in *Interpreter) Table() *Table {
	return in.table
}

// Facing returns the current facing snapshot.
func (in *Interpreter) Facing() Facing {
	return Facing(in.facing.Load())
}

// Plan expands and compiles trigger from the current facing without
// actuating anything.
func (in *Interpreter) Plan(trigger string) (Program, []Token, error) {
	return in.plan(trigger, in.Facing())
}

func (in *Interpreter) plan(trigger string, facing Facing) (Program, []Token, error) {
	tokens, err := in.table.Expand(trigger, in.cfg.MaxDepth)
	if err != nil {
		return Program{}, nil, err
	}
	prog, err := Compile(tokens, facing, in.cfg.Remap, in.cfg.Timing)
	if err != nil {
		return Program{}, nil, err
	}
	return prog, tokens, nil
}

// Execute runs the macro registered under trigger to completion. It returns
// ErrUnknownTrigger or ErrDepthExceeded before actuating anything; actuation
// failures are collected in the report and never stop the macro.
func (in *Interpreter) Execute(trigger string) (Report, error) {
	in.mu.Lock()
	defer in.mu.Unlock()

	name := NormalizeName(trigger)
	before := in.Facing()
	prog, tokens, err := in.plan(name, before)
	if err != nil {
		return Report{Trigger: name, FacingBefore: before, FacingAfter: before}, err
	}

	report := Report{
		Trigger:      name,
		Tokens:       len(tokens),
		Actions:      len(prog.Actions),
		Expected:     prog.Duration,
		FacingBefore: before,
	}

	start := in.clock.Now()
	for i, action := range prog.Actions {
		in.sleepUntil(start, action.At)
		if err := in.apply(action); err != nil {
			failure := &ActuationError{Op: action.Op, Key: action.Key, At: i, Err: err}
			report.Failures = append(report.Failures, failure)
			if in.logger != nil {
				in.logger.Warn("key actuation failed",
					"trigger", name,
					"op", action.Op.String(),
					"key", action.Key,
					"error", err.Error(),
				)
			}
		}
	}
	in.sleepUntil(start, prog.Duration)

	report.Elapsed = in.clock.Now().Sub(start)
	report.FacingAfter = in.Facing()
	return report, nil
}

func (in *Interpreter) apply(action Action) error {
	switch action.Op {
	case OpPress:
		return in.actuator.Press(action.Key)
	case OpRelease:
		return in.actuator.Release(action.Key)
	case OpFacing:
		in.facing.Store(int32(action.Facing))
		return nil
	default:
		return fmt.Errorf("unknown op %d", action.Op)
	}
}

// sleepUntil waits for an absolute offset so actuation latency never
// accumulates into drift.
func (in *Interpreter) sleepUntil(start time.Time, offset time.Duration) {
	if wait := offset - in.clock.Now().Sub(start); wait > 0 {
		in.clock.Sleep(wait)
	}
}
