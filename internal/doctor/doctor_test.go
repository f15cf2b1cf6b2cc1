package doctor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/kombo/internal/config"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckEnv(t *testing.T) {
	t.Setenv("TEST_DOCTOR_ENV", "/run/user/1000")

	check := checkEnv(
		"TEST_DOCTOR_ENV",
		func(v string) bool { return strings.HasPrefix(v, "/run/") },
		"looks good",
		"unexpected",
	)

	require.True(t, check.Pass)
	require.Equal(t, "looks good", check.Message)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "press_cmd")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryFound(t *testing.T) {
	check := checkBinary("sh", "shell available")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "shell available")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-ydotool")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env bash\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-ydotool", "key", "{key}"}, "press_cmd")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "press_cmd command is available")
}

func TestCheckMacros(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("macros:\n  hadouken: [down, right, p]\n"), 0o600))
	cyclic := filepath.Join(dir, "cyclic.yaml")
	require.NoError(t, os.WriteFile(cyclic, []byte("macros:\n  a: [$b]\n  b: [$a]\n"), 0o600))

	check := checkMacros(good)
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "1 macros")

	check = checkMacros(cyclic)
	require.False(t, check.Pass)

	check = checkMacros(filepath.Join(dir, "absent.yaml"))
	require.False(t, check.Pass)
}

func TestCheckActuatorBackends(t *testing.T) {
	checks := checkActuator(config.ActuatorConfig{Backend: "log"})
	require.Len(t, checks, 1)
	require.True(t, checks[0].Pass)

	checks = checkActuator(config.ActuatorConfig{
		Backend:    "command",
		PressCmd:   config.CommandConfig{Argv: []string{"sh", "-c", "true"}},
		ReleaseCmd: config.CommandConfig{},
	})
	require.Len(t, checks, 2)
	require.True(t, checks[0].Pass)
	require.False(t, checks[1].Pass)

	checks = checkActuator(config.ActuatorConfig{Backend: "hid"})
	require.False(t, checks[0].Pass)
}

func TestCheckUinputMissingDevice(t *testing.T) {
	original := uinputPath
	uinputPath = filepath.Join(t.TempDir(), "uinput")
	t.Cleanup(func() { uinputPath = original })

	check := checkUinput()
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "cannot open")

	require.NoError(t, os.WriteFile(uinputPath, nil, 0o600))
	check = checkUinput()
	require.True(t, check.Pass)
}

func TestCheckHTTPReadySuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	check := checkHTTPReady(strings.TrimPrefix(server.URL, "http://") + "/healthz")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "ready at")
}

func TestCheckHTTPReadyFailureStatusCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	check := checkHTTPReady(server.URL)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "HTTP 503")
}

func TestCheckHTTPReadySkippedWithoutURL(t *testing.T) {
	check := checkHTTPReady("")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "skipped")
}

func TestCheckGRPCReady(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	cfg := config.Default().Recognizer
	cfg.Backend = "grpc"
	cfg.Endpoint = lis.Addr().String()

	check := checkRecognizer(context.Background(), cfg)
	require.True(t, check.Pass, check.Message)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	check = checkRecognizer(context.Background(), cfg)
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "NOT_SERVING")
}

func TestCheckAudioSelectionFailureWithInvalidPulseServer(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")

	check := checkAudioSelection(context.Background(), config.Default())
	require.False(t, check.Pass)
	require.Contains(t, check.Name, "audio.device")
}

func TestRunReportsEveryArea(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "macros.yaml"), []byte("macros:\n  jab: [p]\n"), 0o600))
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	t.Setenv("XDG_RUNTIME_DIR", dir)

	cfg := config.Default()
	cfg.Actuator.Backend = "log"
	cfg.Recognizer.HealthURL = ""

	report := Run(context.Background(), config.Loaded{Path: filepath.Join(dir, "config.jsonc"), Config: cfg})

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	require.Equal(t, []string{"config", "XDG_RUNTIME_DIR", "macros", "actuator", "audio.device", "recognizer.ready"}, names)
	require.False(t, report.OK())
	require.Contains(t, report.Checks[0].Message, "using defaults")
}
