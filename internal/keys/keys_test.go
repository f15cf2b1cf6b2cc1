package keys

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rbright/kombo/internal/config"
	"github.com/stretchr/testify/require"
)

type fakeActuator struct {
	calls       []string
	failRelease error
	closed      bool
}

func (f *fakeActuator) Press(key string) error {
	f.calls = append(f.calls, "press "+key)
	return nil
}

func (f *fakeActuator) Release(key string) error {
	f.calls = append(f.calls, "release "+key)
	return f.failRelease
}

func (f *fakeActuator) Close() error {
	f.closed = true
	return nil
}

func TestGuardReleasesHeldKeysOnClose(t *testing.T) {
	inner := &fakeActuator{}
	var logs bytes.Buffer
	g := NewGuard(inner, slog.New(slog.NewJSONHandler(&logs, nil)))

	require.NoError(t, g.Press("down"))
	require.NoError(t, g.Press("k"))
	require.NoError(t, g.Release("down"))
	require.Equal(t, []string{"k"}, g.Held())

	require.NoError(t, g.Close())
	require.Equal(t, []string{"press down", "press k", "release down", "release k"}, inner.calls)
	require.True(t, inner.closed)
	require.Empty(t, g.Held())
	require.Contains(t, logs.String(), "releasing key held at shutdown")
}

func TestGuardForgetsKeyWhenReleaseFails(t *testing.T) {
	boom := errors.New("boom")
	inner := &fakeActuator{}
	g := NewGuard(inner, nil)

	require.NoError(t, g.Press("p"))
	inner.failRelease = boom
	require.ErrorIs(t, g.Release("p"), boom)
	require.Empty(t, g.Held())
	require.NoError(t, g.Close())
}

func TestLogActuatorWritesDebugRecords(t *testing.T) {
	var logs bytes.Buffer
	l := NewLog(slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	require.NoError(t, l.Press("p"))
	require.NoError(t, l.Release("p"))
	require.NoError(t, l.Close())
	require.Equal(t, 2, strings.Count(logs.String(), `"key":"p"`))

	require.NoError(t, NewLog(nil).Press("p"))
}

func writeArgsScript(t *testing.T, outputPath string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "record-args.sh")
	script := "#!/usr/bin/env bash\nset -euo pipefail\necho \"$*\" >> \"" + outputPath + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailScript(t *testing.T, message string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "fail.sh")
	script := "#!/usr/bin/env bash\necho \"" + message + "\" >&2\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCommandActuatorExpandsKeyPlaceholder(t *testing.T) {
	out := filepath.Join(t.TempDir(), "args.log")
	script := writeArgsScript(t, out)

	c, err := NewCommand(
		config.CommandConfig{Argv: []string{script, "down", "{key}"}},
		config.CommandConfig{Argv: []string{script, "up", "{key}"}},
		time.Second,
	)
	require.NoError(t, err)
	require.NoError(t, c.Press("left"))
	require.NoError(t, c.Release("left"))
	require.NoError(t, c.Close())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "down left\nup left\n", string(data))
}

func TestCommandActuatorReportsStderr(t *testing.T) {
	script := writeFailScript(t, "no uinput access")
	c, err := NewCommand(config.CommandConfig{Argv: []string{script}}, config.CommandConfig{Argv: []string{script}}, time.Second)
	require.NoError(t, err)

	err = c.Press("p")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no uinput access")
}

func TestNewCommandRequiresBothCommands(t *testing.T) {
	_, err := NewCommand(config.CommandConfig{Argv: []string{"x"}}, config.CommandConfig{}, 0)
	require.Error(t, err)
}

func TestNewSelectsBackend(t *testing.T) {
	act, err := New(context.Background(), config.ActuatorConfig{Backend: "log"}, nil)
	require.NoError(t, err)
	_, ok := act.(*Guard)
	require.True(t, ok)
	require.NoError(t, act.Close())

	_, err = New(context.Background(), config.ActuatorConfig{Backend: "hid"}, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown actuator backend")
}
