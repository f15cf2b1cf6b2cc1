package keys

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/kombo/internal/config"
)

// Command runs an external tool per key event, e.g. ydotool or xdotool.
// "{key}" in either argv template is replaced by the key name.
type Command struct {
	press   config.CommandConfig
	release config.CommandConfig
	timeout time.Duration
}

// NewCommand builds a command actuator.
func NewCommand(press, release config.CommandConfig, timeout time.Duration) (*Command, error) {
	if len(press.Argv) == 0 || len(release.Argv) == 0 {
		return nil, fmt.Errorf("command actuator needs press and release commands")
	}
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	return &Command{press: press, release: release, timeout: timeout}, nil
}

func (c *Command) Press(key string) error {
	return c.run(c.press.Expand(key))
}

func (c *Command) Release(key string) error {
	return c.run(c.release.Expand(key))
}

func (c *Command) Close() error {
	return nil
}

// run executes argv and folds stderr into the returned error.
func (c *Command) run(argv []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("run %s: %w: %s", argv[0], err, msg)
		}
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
