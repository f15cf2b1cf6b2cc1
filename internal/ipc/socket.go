package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrAlreadyRunning reports that a live kombo process owns the control socket.
var ErrAlreadyRunning = errors.New("kombo is already running")

const (
	socketName          = "kombo.sock"
	defaultProbeTimeout = 180 * time.Millisecond
)

func RuntimeSocketPath() (string, error) {
	runtimeDir := strings.TrimSpace(os.Getenv("XDG_RUNTIME_DIR"))
	if runtimeDir == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDir, socketName), nil
}

// AcquireOptions tunes control socket acquisition.
type AcquireOptions struct {
	// ProbeTimeout bounds the liveness check against an existing socket file.
	ProbeTimeout time.Duration
	// Retries is how many more listen attempts follow a stale socket removal.
	Retries int
	// OnStale runs after a dead socket file was unlinked.
	OnStale func(path string)
}

// Owner is the listening end of the control socket held by the running
// session. Closing it unlinks the socket file.
type Owner struct {
	net.Listener
	path string
	once sync.Once
	err  error
}

// Path returns the socket file location.
func (o *Owner) Path() string {
	return o.path
}

func (o *Owner) Close() error {
	o.once.Do(func() {
		o.err = o.Listener.Close()
		if err := os.Remove(o.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.err = errors.Join(o.err, fmt.Errorf("remove socket %s: %w", o.path, err))
		}
	})
	return o.err
}

// Acquire listens on path, taking over a socket file left behind by a dead
// owner. A responsive owner yields ErrAlreadyRunning. An inconclusive probe
// never unlinks the existing file.
func Acquire(ctx context.Context, path string, opts AcquireOptions) (*Owner, error) {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure runtime socket dir: %w", err)
	}

	for attempt := 0; ; attempt++ {
		listener, err := net.Listen("unix", path)
		if err == nil {
			// Anyone who can connect can inject keys.
			_ = os.Chmod(path, 0o600)
			return &Owner{Listener: listener, path: path}, nil
		}
		if !isAddrInUse(err) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		if err := removeStale(ctx, path, opts.ProbeTimeout); err != nil {
			return nil, err
		}
		if opts.OnStale != nil {
			opts.OnStale(path)
		}

		if attempt >= opts.Retries {
			return nil, fmt.Errorf("acquire socket %s: still in use after %d retries", path, opts.Retries)
		}
		if err := backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func removeStale(ctx context.Context, path string, timeout time.Duration) error {
	alive, err := Probe(ctx, path, timeout)
	if alive {
		return ErrAlreadyRunning
	}
	if err != nil {
		return fmt.Errorf("probe existing socket %s: %w", path, err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket %s: %w", path, err)
	}
	return nil
}

func backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(25*(attempt+1)) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "address already in use")
}
