package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/rbright/kombo/internal/audio"
	"github.com/rbright/kombo/internal/cli"
	"github.com/rbright/kombo/internal/config"
	"github.com/rbright/kombo/internal/doctor"
	"github.com/rbright/kombo/internal/ipc"
	"github.com/rbright/kombo/internal/logging"
	"github.com/rbright/kombo/internal/macro"
	"github.com/rbright/kombo/internal/observe"
	"github.com/rbright/kombo/internal/pipeline"
	"github.com/rbright/kombo/internal/session"
	"github.com/rbright/kombo/internal/version"
)

const (
	forwardTimeout = 220 * time.Millisecond
	// triggerForwardTimeout covers the owner's bounded wait on a full queue.
	triggerForwardTimeout = time.Second
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
	// Build overrides pipeline construction in tests.
	Build func(context.Context, config.Loaded, pipeline.Options) (*pipeline.Runtime, error)
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("kombo"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("kombo"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(cfgLoaded.Config.Log.Level)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandMacros:
		return r.commandMacros(cfgLoaded)
	case cli.CommandStatus:
		return r.commandStatus(ctx)
	case cli.CommandStop:
		return r.forwardOrFail(ctx, ipc.Request{Command: "stop"}, forwardTimeout)
	case cli.CommandTrigger:
		return r.forwardOrFail(ctx, ipc.Request{Command: "trigger", Trigger: parsed.Arg}, triggerForwardTimeout)
	case cli.CommandRun:
		return r.commandRun(ctx, cfgLoaded, pipeline.Options{Logger: logger}, logger)
	case cli.CommandReplay:
		return r.commandRun(ctx, cfgLoaded, pipeline.Options{ReplayPath: parsed.Arg, Paced: parsed.Paced, Logger: logger}, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		availability := "yes"
		if !device.Available {
			availability = "no"
		}
		muted := "no"
		if device.Muted {
			muted = "yes"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			availability,
			muted,
		)
	}

	return 0
}

// commandMacros prints every trigger with its fully expanded token stream.
func (r Runner) commandMacros(cfg config.Loaded) int {
	table, err := macro.LoadTable(cfg.MacroPath())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if table.Len() == 0 {
		fmt.Fprintln(r.Stdout, "no macros defined")
		return 0
	}

	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	failed := false
	for _, name := range table.Names() {
		tokens, err := table.Expand(name, cfg.Config.Macros.MaxDepth)
		if err != nil {
			failed = true
			fmt.Fprintf(tw, "%s\terror: %v\n", name, err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, macro.FormatTokens(tokens))
	}
	_ = tw.Flush()
	if failed {
		return 1
	}
	return 0
}

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, ipc.Request{Command: "status"}, forwardTimeout)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.State == "" {
			resp.State = "idle"
		}
		line := resp.State
		if resp.Facing != "" {
			line += " facing=" + resp.Facing
		}
		if resp.Message != "" && resp.Message != "status" {
			line += " " + resp.Message
		}
		fmt.Fprintln(r.Stdout, line)
		return 0
	}

	fmt.Fprintln(r.Stdout, "idle")
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request, timeout time.Duration) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, req, timeout)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no active kombo session\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRun owns the control socket and runs the pipeline until the source
// ends, a stop arrives, or ctx is cancelled.
func (r Runner) commandRun(ctx context.Context, cfg config.Loaded, opts pipeline.Options, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	owner, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		Retries: 8,
		OnStale: func(path string) {
			logger.Warn("removed stale control socket", "path", path)
		},
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = owner.Close() }()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	metricsErrCh := make(chan error, 1)
	if listen := cfg.Config.Metrics.Listen; listen != "" {
		provider, err := observe.InitProvider(version.Version)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
		opts.Metrics, err = observe.NewMetrics(provider.MeterProvider)
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		go func() {
			metricsErrCh <- provider.Serve(serverCtx, listen, logger)
		}()
	} else {
		metricsErrCh <- nil
	}

	build := r.Build
	if build == nil {
		build = pipeline.Build
	}
	rt, err := build(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("pipeline build failed", "error", err.Error())
		return 1
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("pipeline close failed", "error", err.Error())
		}
	}()

	controller := session.NewController(logger, rt)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, owner, controller)
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		fmt.Fprintf(r.Stderr, "error: ipc server failed: %v\n", serverErr)
		return 1
	}
	if metricsErr := <-metricsErrCh; metricsErr != nil {
		logger.Warn("metrics endpoint failed", "error", metricsErr.Error())
	}

	logSessionResult(logger, result)

	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}

	st := result.Status
	fmt.Fprintf(r.Stdout, "utterances=%d dispatched=%d unmatched=%d executed=%d dropped=%d facing=%s\n",
		st.Utterances, st.Dispatched, st.Unmatched, st.Executed, st.Dropped, st.Facing)
	return 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	st := result.Status
	fields := []any{
		"state", result.State,
		"stopped", result.Stopped,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"frames", st.Frames,
		"utterances", st.Utterances,
		"dispatched", st.Dispatched,
		"unmatched", st.Unmatched,
		"executed", st.Executed,
		"dropped", st.Dropped,
		"facing", st.Facing,
	}

	if result.Err != nil && !errors.Is(result.Err, context.Canceled) {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
