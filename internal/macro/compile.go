package macro

import (
	"fmt"
	"time"
)

const (
	// DefaultBeat is the press-to-release interval.
	DefaultBeat = 17 * time.Millisecond
	// DefaultFrameRate is the game frame rate used by WaitFrames.
	DefaultFrameRate = 60
)

// Op is a primitive action kind.
type Op int

const (
	OpPress Op = iota + 1
	OpRelease
	// OpFacing publishes a facing change; it actuates nothing.
	OpFacing
)

func (o Op) String() string {
	switch o {
	case OpPress:
		return "press"
	case OpRelease:
		return "release"
	case OpFacing:
		return "facing"
	default:
		return "unknown"
	}
}

// Action is one primitive step scheduled at an offset from macro start.
type Action struct {
	Op  Op
	Key string
	// Facing is the side in effect after this action.
	Facing Facing
	At     time.Duration
}

// Timing converts beats and game frames to wall-clock durations.
type Timing struct {
	Beat  time.Duration
	Frame time.Duration
}

// NewTiming derives a Timing from a beat and a game frame rate. Non-positive
// values fall back to the defaults.
func NewTiming(beat time.Duration, frameRate int) Timing {
	if beat <= 0 {
		beat = DefaultBeat
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return Timing{Beat: beat, Frame: time.Second / time.Duration(frameRate)}
}

// Program is a compiled macro.
type Program struct {
	Actions []Action
	// Duration is the offset at which the last token finishes.
	Duration time.Duration
	// Facing is the side in effect after the program runs.
	Facing Facing
}

// Presses returns the number of press actions.
func (p Program) Presses() int {
	n := 0
	for _, a := range p.Actions {
		if a.Op == OpPress {
			n++
		}
	}
	return n
}

// Compile turns an expanded token list into timed primitive actions starting
// from facing. Keys are remapped in token order so a FlipFacing only affects
// the tokens after it. Call tokens must already be expanded.
func Compile(tokens []Token, facing Facing, remap Remapper, timing Timing) (Program, error) {
	var (
		actions []Action
		at      time.Duration
	)
	for i, tok := range tokens {
		switch tok.Kind {
		case KindPress, KindChord:
			keys := make([]string, len(tok.Keys))
			for j, key := range tok.Keys {
				keys[j] = remap.Map(key, facing)
			}
			for _, key := range keys {
				actions = append(actions, Action{Op: OpPress, Key: key, Facing: facing, At: at})
			}
			at += timing.Beat
			for _, key := range keys {
				actions = append(actions, Action{Op: OpRelease, Key: key, Facing: facing, At: at})
			}
		case KindWait:
			at += time.Duration(tok.Frames) * timing.Frame
		case KindBlank:
			at += timing.Beat
		case KindFlip:
			facing = facing.Flip()
			actions = append(actions, Action{Op: OpFacing, Facing: facing, At: at})
		case KindCall:
			return Program{}, fmt.Errorf("%w: token %d calls %q before expansion", ErrInvalidToken, i+1, tok.Macro)
		default:
			return Program{}, fmt.Errorf("%w: token %d has unknown kind %d", ErrInvalidToken, i+1, tok.Kind)
		}
	}
	return Program{Actions: actions, Duration: at, Facing: facing}, nil
}
