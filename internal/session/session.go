// Package session owns the listening lifecycle and serves IPC requests for it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/kombo/internal/fsm"
	"github.com/rbright/kombo/internal/ipc"
)

// ErrPipelineUnavailable indicates runtime pipeline wiring is missing.
var ErrPipelineUnavailable = errors.New("voice trigger pipeline not configured")

// triggerTimeout bounds how long an IPC trigger request may wait for queue
// space.
const triggerTimeout = 200 * time.Millisecond

// Status is a point-in-time view of a running pipeline.
type Status struct {
	Facing      string
	Speaking    bool
	Frames      uint64
	Utterances  uint64
	Dispatched  uint64
	Unmatched   uint64
	Executed    uint64
	Dropped     uint64
	QueueDepth  int
	LastTrigger string
}

// Pipeline is the runtime the controller supervises.
type Pipeline interface {
	Run(ctx context.Context) error
	Submit(ctx context.Context, trigger string) error
	Status() Status
}

// Result is the lifecycle output returned by one Run invocation.
type Result struct {
	State      fsm.State
	Err        error
	Stopped    bool
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
}

// Controller orchestrates lifecycle transitions for one owner process.
type Controller struct {
	logger   *slog.Logger
	pipeline Pipeline

	mu     sync.RWMutex
	state  fsm.State
	cancel context.CancelFunc
	stop   bool
}

// NewController constructs a session controller.
func NewController(logger *slog.Logger, pipeline Pipeline) *Controller {
	return &Controller{
		logger:   logger,
		pipeline: pipeline,
		state:    fsm.StateIdle,
	}
}

// State returns the current FSM state snapshot.
func (c *Controller) State() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transition applies one FSM event to the controller state.
func (c *Controller) transition(event fsm.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, event)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Run starts the pipeline and blocks until it ends, ctx is cancelled, or a
// stop request arrives.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}
	finish := func(err error) Result {
		result.State = c.State()
		result.Err = err
		result.FinishedAt = time.Now()
		if c.pipeline != nil {
			result.Status = c.pipeline.Status()
		}
		return result
	}

	if c.pipeline == nil {
		return finish(ErrPipelineUnavailable)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := c.begin(cancel); err != nil {
		return finish(err)
	}

	err := c.pipeline.Run(runCtx)

	c.mu.Lock()
	c.cancel = nil
	stopped := c.stop
	c.mu.Unlock()
	result.Stopped = stopped

	if err != nil && !errors.Is(err, context.Canceled) {
		c.toErrorAndReset()
		return finish(err)
	}

	if c.State() == fsm.StateListening && (stopped || ctx.Err() != nil) {
		_ = c.transition(fsm.EventStop)
	}
	if err := c.transition(fsm.EventStopped); err != nil {
		c.toErrorAndReset()
		return finish(err)
	}
	return finish(ctx.Err())
}

// begin enters listening and records how to cancel this run.
func (c *Controller) begin(cancel context.CancelFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.state, fsm.EventStart)
	if err != nil {
		return err
	}
	c.state = next
	c.cancel = cancel
	c.stop = false
	return nil
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "status":
		return c.status()
	case "trigger":
		return c.trigger(ctx, req.Trigger)
	case "stop":
		return c.requestStop()
	default:
		return ipc.Response{OK: false, State: string(c.State()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) status() ipc.Response {
	state := c.State()
	resp := ipc.Response{OK: true, State: string(state), Message: "status"}
	if c.pipeline != nil && state == fsm.StateListening {
		st := c.pipeline.Status()
		resp.Facing = st.Facing
		resp.Message = fmt.Sprintf("utterances=%d dispatched=%d unmatched=%d executed=%d dropped=%d",
			st.Utterances, st.Dispatched, st.Unmatched, st.Executed, st.Dropped)
		if st.LastTrigger != "" {
			resp.Message += " last=" + st.LastTrigger
		}
	}
	return resp
}

// trigger queues a macro by name as if it had been spoken.
func (c *Controller) trigger(ctx context.Context, name string) ipc.Response {
	state := c.State()
	name = strings.TrimSpace(name)
	if name == "" {
		return ipc.Response{OK: false, State: string(state), Error: "trigger name is empty"}
	}
	if !fsm.AcceptsTriggers(state) || c.pipeline == nil {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot trigger from state %s", state)}
	}

	submitCtx, cancel := context.WithTimeout(ctx, triggerTimeout)
	defer cancel()
	if err := c.pipeline.Submit(submitCtx, name); err != nil {
		if c.logger != nil {
			c.logger.Warn("manual trigger rejected", "trigger", name, "error", err.Error())
		}
		return ipc.Response{OK: false, State: string(state), Error: err.Error()}
	}
	return ipc.Response{OK: true, State: string(state), Message: "queued " + name}
}

// requestStop cancels the running pipeline when state permits it.
func (c *Controller) requestStop() ipc.Response {
	state := c.State()
	if state == fsm.StateStopping {
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
	if state != fsm.StateListening {
		return ipc.Response{OK: false, State: string(state), Error: fmt.Sprintf("cannot stop from state %s", state)}
	}

	c.mu.Lock()
	if c.stop {
		c.mu.Unlock()
		return ipc.Response{OK: true, State: string(state), Message: "stop already requested"}
	}
	c.stop = true
	cancel := c.cancel
	c.mu.Unlock()

	if err := c.transition(fsm.EventStop); err != nil {
		return ipc.Response{OK: false, State: string(c.State()), Error: err.Error()}
	}
	if cancel != nil {
		cancel()
	}
	return ipc.Response{OK: true, State: string(fsm.StateStopping), Message: "stop requested"}
}

// toErrorAndReset transitions to error and back to idle best-effort.
func (c *Controller) toErrorAndReset() {
	_ = c.transition(fsm.EventFail)
	_ = c.transition(fsm.EventReset)
}

// IsPipelineUnavailable reports whether an error represents missing pipeline wiring.
func IsPipelineUnavailable(err error) bool {
	return errors.Is(err, ErrPipelineUnavailable)
}
