// Package doctor runs runtime readiness diagnostics for config, macros, key
// injection, audio, and the recognizer.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/kombo/internal/audio"
	"github.com/rbright/kombo/internal/config"
	"github.com/rbright/kombo/internal/macro"
	"github.com/rbright/kombo/internal/recognize"
)

const probeTimeout = 2 * time.Second

// uinputPath is the virtual input device the uinput actuator opens.
var uinputPath = "/dev/uinput"

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, cfg config.Loaded) Report {
	checks := []Check{checkConfig(cfg)}

	checks = append(checks, checkEnv("XDG_RUNTIME_DIR", func(v string) bool {
		return strings.TrimSpace(v) != ""
	}, "control socket directory available", "XDG_RUNTIME_DIR is empty"))

	checks = append(checks, checkMacros(cfg.MacroPath()))
	checks = append(checks, checkActuator(cfg.Config.Actuator)...)
	checks = append(checks, checkAudioSelection(ctx, cfg.Config))
	checks = append(checks, checkRecognizer(ctx, cfg.Config.Recognizer))

	return Report{Checks: checks}
}

func checkConfig(cfg config.Loaded) Check {
	if !cfg.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", cfg.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", cfg.Path)}
}

// checkEnv validates an environment variable through a caller-supplied predicate.
func checkEnv(name string, predicate func(string) bool, okMsg, failMsg string) Check {
	value := os.Getenv(name)
	if predicate(value) {
		return Check{Name: name, Pass: true, Message: okMsg}
	}
	return Check{Name: name, Pass: false, Message: failMsg}
}

// checkMacros loads the command table, which also runs the cycle check.
func checkMacros(path string) Check {
	table, err := macro.LoadTable(path)
	if err != nil {
		return Check{Name: "macros", Pass: false, Message: err.Error()}
	}
	return Check{Name: "macros", Pass: true, Message: fmt.Sprintf("%d macros in %q", table.Len(), path)}
}

func checkActuator(cfg config.ActuatorConfig) []Check {
	switch cfg.Backend {
	case "uinput":
		return []Check{checkUinput()}
	case "command":
		return []Check{
			checkCommand(cfg.PressCmd.Argv, "press_cmd"),
			checkCommand(cfg.ReleaseCmd.Argv, "release_cmd"),
		}
	case "log":
		return []Check{{Name: "actuator", Pass: true, Message: "log backend; keys are not injected"}}
	default:
		return []Check{{Name: "actuator", Pass: false, Message: fmt.Sprintf("unknown backend %q", cfg.Backend)}}
	}
}

// checkUinput verifies the virtual keyboard device is writable.
func checkUinput() Check {
	f, err := os.OpenFile(uinputPath, os.O_WRONLY, 0)
	if err != nil {
		return Check{Name: "uinput", Pass: false, Message: fmt.Sprintf("cannot open %s: %v", uinputPath, err)}
	}
	_ = f.Close()
	return Check{Name: "uinput", Pass: true, Message: fmt.Sprintf("%s is writable", uinputPath)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.Config) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkRecognizer(ctx context.Context, cfg config.RecognizerConfig) Check {
	switch cfg.Backend {
	case "http":
		return checkHTTPReady(cfg.HealthURL)
	case "grpc":
		return checkGRPCReady(ctx, cfg)
	default:
		return Check{Name: "recognizer.ready", Pass: false, Message: fmt.Sprintf("unknown backend %q", cfg.Backend)}
	}
}

// checkHTTPReady probes the configured recognizer health endpoint.
func checkHTTPReady(url string) Check {
	url = strings.TrimSpace(url)
	if url == "" {
		return Check{Name: "recognizer.ready", Pass: true, Message: "health_url is empty; skipped"}
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}

	client := http.Client{Timeout: probeTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return Check{Name: "recognizer.ready", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Check{Name: "recognizer.ready", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, url)}
	}
	return Check{Name: "recognizer.ready", Pass: true, Message: fmt.Sprintf("ready at %s", url)}
}

// checkGRPCReady dials the recognizer and runs the standard health check.
func checkGRPCReady(ctx context.Context, cfg config.RecognizerConfig) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	rec, err := recognize.DialGRPC(ctx, cfg.Endpoint, cfg.GRPCMethod, cfg.Language, probeTimeout)
	if err != nil {
		return Check{Name: "recognizer.ready", Pass: false, Message: err.Error()}
	}
	defer rec.Close()

	if err := rec.Ready(ctx); err != nil {
		return Check{Name: "recognizer.ready", Pass: false, Message: err.Error()}
	}
	return Check{Name: "recognizer.ready", Pass: true, Message: fmt.Sprintf("serving at %s", cfg.Endpoint)}
}
