// Package keys injects key press and release events for macro playback.
package keys

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rbright/kombo/internal/config"
)

// ErrUnsupportedKey is returned for key names a backend cannot emit.
var ErrUnsupportedKey = errors.New("unsupported key")

// Actuator is a key injection backend.
type Actuator interface {
	Press(key string) error
	Release(key string) error
	Close() error
}

// New builds the configured actuator wrapped in a Guard.
func New(ctx context.Context, cfg config.ActuatorConfig, logger *slog.Logger) (Actuator, error) {
	var (
		inner Actuator
		err   error
	)
	switch cfg.Backend {
	case "uinput":
		inner, err = NewUinput(ctx, time.Duration(cfg.SettleMS)*time.Millisecond)
	case "command":
		inner, err = NewCommand(cfg.PressCmd, cfg.ReleaseCmd, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	case "log":
		inner = NewLog(logger)
	default:
		err = fmt.Errorf("unknown actuator backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return NewGuard(inner, logger), nil
}

// Guard tracks held keys so Close can release anything still pressed.
type Guard struct {
	inner  Actuator
	logger *slog.Logger

	mu   sync.Mutex
	held map[string]struct{}
}

// NewGuard wraps inner.
func NewGuard(inner Actuator, logger *slog.Logger) *Guard {
	return &Guard{inner: inner, logger: logger, held: make(map[string]struct{})}
}

// Press implements Actuator.
func (g *Guard) Press(key string) error {
	if err := g.inner.Press(key); err != nil {
		return err
	}
	g.mu.Lock()
	g.held[key] = struct{}{}
	g.mu.Unlock()
	return nil
}

// Release implements Actuator. The key is forgotten even if the backend
// fails, so Close does not retry it forever.
func (g *Guard) Release(key string) error {
	g.mu.Lock()
	delete(g.held, key)
	g.mu.Unlock()
	return g.inner.Release(key)
}

// Held returns the currently pressed keys, sorted.
func (g *Guard) Held() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.held))
	for key := range g.held {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// Close releases every held key and closes the backend.
func (g *Guard) Close() error {
	var errs []error
	for _, key := range g.Held() {
		if g.logger != nil {
			g.logger.Warn("releasing key held at shutdown", "key", key)
		}
		if err := g.Release(key); err != nil {
			errs = append(errs, fmt.Errorf("release %q: %w", key, err))
		}
	}
	if err := g.inner.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Log is a dry-run actuator that only writes log records.
type Log struct {
	logger *slog.Logger
}

// NewLog builds a dry-run actuator. A nil logger discards everything.
func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Press(key string) error {
	if l.logger != nil {
		l.logger.Debug("key press", "key", key)
	}
	return nil
}

func (l *Log) Release(key string) error {
	if l.logger != nil {
		l.logger.Debug("key release", "key", key)
	}
	return nil
}

func (l *Log) Close() error {
	return nil
}
