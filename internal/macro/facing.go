package macro

import (
	"fmt"
	"strings"
)

// Facing is the screen side the controlled character faces.
type Facing int32

const (
	FacingLeft Facing = iota
	FacingRight
)

// ParseFacing maps "left" or "right" to a Facing. Empty means left.
func ParseFacing(raw string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "left":
		return FacingLeft, nil
	case "right":
		return FacingRight, nil
	default:
		return FacingLeft, fmt.Errorf("unknown facing %q (expected left or right)", raw)
	}
}

func (f Facing) String() string {
	if f == FacingRight {
		return "right"
	}
	return "left"
}

// Flip returns the opposite side.
func (f Facing) Flip() Facing {
	if f == FacingRight {
		return FacingLeft
	}
	return FacingRight
}

const (
	DefaultLeftKey  = "left"
	DefaultRightKey = "right"
)

// Remapper mirrors horizontal direction keys. Macros are authored for
// FacingLeft; under FacingRight the left and right keys trade places.
type Remapper struct {
	LeftKey  string
	RightKey string
}

// DefaultRemapper swaps the arrow keys.
func DefaultRemapper() Remapper {
	return Remapper{LeftKey: DefaultLeftKey, RightKey: DefaultRightKey}
}

// Map returns the physical key for a logical key under facing.
func (r Remapper) Map(key string, facing Facing) string {
	if facing != FacingRight {
		return key
	}
	switch key {
	case r.LeftKey:
		return r.RightKey
	case r.RightKey:
		return r.LeftKey
	default:
		return key
	}
}
