//go:build !linux

package keys

import (
	"context"
	"errors"
	"time"
)

// Uinput is unavailable outside Linux.
type Uinput struct{}

// NewUinput always fails outside Linux; use the command backend instead.
func NewUinput(context.Context, time.Duration) (*Uinput, error) {
	return nil, errors.New("uinput actuator requires linux")
}

func (*Uinput) Press(string) error   { return errors.ErrUnsupported }
func (*Uinput) Release(string) error { return errors.ErrUnsupported }
func (*Uinput) Close() error         { return nil }

// Supported reports false: no key can be emitted without uinput.
func Supported(string) bool {
	return false
}
