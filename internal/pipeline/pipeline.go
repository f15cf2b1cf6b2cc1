// Package pipeline runs capture, recognition, and macro playback as three
// stages joined by bounded queues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/kombo/internal/audio"
	"github.com/rbright/kombo/internal/config"
	"github.com/rbright/kombo/internal/dispatch"
	"github.com/rbright/kombo/internal/macro"
	"github.com/rbright/kombo/internal/observe"
	"github.com/rbright/kombo/internal/recognize"
	"github.com/rbright/kombo/internal/segment"
	"github.com/rbright/kombo/internal/session"
	"golang.org/x/sync/errgroup"
)

// Trigger sources recorded on jobs.
const (
	SourceVoice  = "voice"
	SourceManual = "manual"
)

// Job is one resolved trigger waiting for playback.
type Job struct {
	Trigger     string
	Source      string
	UtteranceID string
	Text        string
	Confidence  float64
	EnqueuedAt  time.Time
}

// Feedback is notified of each recognition outcome.
type Feedback interface {
	Recognized(trigger string)
	Unmatched(text string)
}

// Deps are the collaborators a Pipeline runs.
type Deps struct {
	Source      audio.Source
	Engine      *segment.Engine
	Recognizer  recognize.Recognizer
	Resolver    *recognize.Resolver
	Interpreter *macro.Interpreter
	Queues      config.QueueConfig
	// RecognizeTimeout bounds one recognizer call. Zero means no deadline.
	RecognizeTimeout time.Duration
	// DumpDir receives one WAV file per utterance when non-empty.
	DumpDir string
	// Feedback is optional.
	Feedback Feedback
	Metrics  *observe.Metrics
	Logger   *slog.Logger
}

// Pipeline is the running voice trigger runtime.
type Pipeline struct {
	deps       Deps
	logger     *slog.Logger
	utterances *dispatch.Queue[segment.Utterance]
	triggers   *dispatch.Queue[Job]

	running atomic.Bool

	utteranceCount atomic.Uint64
	dispatched     atomic.Uint64
	unmatched      atomic.Uint64
	executed       atomic.Uint64
	frames         atomic.Uint64

	mu          sync.Mutex
	lastTrigger string
}

// New validates deps and builds the stage queues.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("pipeline needs an audio source")
	case deps.Engine == nil:
		return nil, errors.New("pipeline needs a segmentation engine")
	case deps.Recognizer == nil:
		return nil, errors.New("pipeline needs a recognizer")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline needs a trigger resolver")
	case deps.Interpreter == nil:
		return nil, errors.New("pipeline needs a macro interpreter")
	}

	utterancePolicy, err := dispatch.ParsePolicy(deps.Queues.UtterancePolicy)
	if err != nil {
		return nil, fmt.Errorf("utterance queue: %w", err)
	}
	triggerPolicy, err := dispatch.ParsePolicy(deps.Queues.TriggerPolicy)
	if err != nil {
		return nil, fmt.Errorf("trigger queue: %w", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	p := &Pipeline{deps: deps, logger: logger}
	onDrop := dispatch.WithDropHook(p.recordDrop)
	p.utterances = dispatch.New[segment.Utterance]("utterances", deps.Queues.UtteranceCapacity, utterancePolicy, onDrop)
	p.triggers = dispatch.New[Job]("triggers", deps.Queues.TriggerCapacity, triggerPolicy, onDrop)
	return p, nil
}

// Run blocks until ctx ends or the source is exhausted. On exhaustion the
// engine is flushed and both queues drain before Run returns. A macro that is
// already playing always finishes.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("pipeline already running")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.captureLoop(gctx) })
	g.Go(func() error { return p.recognizeLoop(gctx) })
	g.Go(func() error { return p.interpretLoop(gctx) })
	err := g.Wait()

	p.utterances.Close()
	p.triggers.Close()
	return err
}

// Submit queues trigger as if it had been spoken. trigger may be the table
// name or its spoken form.
func (p *Pipeline) Submit(ctx context.Context, trigger string) error {
	name := macro.NormalizeName(trigger)
	if !p.deps.Interpreter.Table().Has(name) {
		resolved, ok := p.deps.Resolver.Lookup(trigger)
		if !ok {
			return fmt.Errorf("%w: %q", macro.ErrUnknownTrigger, name)
		}
		name = resolved
	}
	job := Job{Trigger: name, Source: SourceManual, EnqueuedAt: time.Now()}
	if err := p.triggers.Push(ctx, job); err != nil {
		return fmt.Errorf("queue trigger %q: %w", name, err)
	}
	p.dispatched.Add(1)
	p.deps.Metrics.RecordTrigger(ctx, observe.TriggerDispatched)
	return nil
}

// Status implements session.Pipeline.
func (p *Pipeline) Status() session.Status {
	p.mu.Lock()
	last := p.lastTrigger
	p.mu.Unlock()

	us := p.utterances.Stats()
	ts := p.triggers.Stats()
	return session.Status{
		Facing:      p.deps.Interpreter.Facing().String(),
		Speaking:    p.deps.Engine.Speaking(),
		Frames:      p.frames.Load(),
		Utterances:  p.utteranceCount.Load(),
		Dispatched:  p.dispatched.Load(),
		Unmatched:   p.unmatched.Load(),
		Executed:    p.executed.Load(),
		Dropped:     us.Dropped + ts.Dropped,
		QueueDepth:  us.Depth + ts.Depth,
		LastTrigger: last,
	}
}

// captureLoop feeds source frames through the engine and queues utterances.
func (p *Pipeline) captureLoop(ctx context.Context) error {
	err := p.deps.Source.Run(ctx, func(frame segment.Frame) {
		p.frames.Add(1)
		p.deps.Metrics.RecordFrame(ctx)
		if u, ok := p.deps.Engine.Feed(frame); ok {
			reason := "silence"
			if u.Forced {
				reason = "ceiling"
			}
			p.enqueueUtterance(ctx, u, reason)
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("audio source: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	if u, ok := p.deps.Engine.Flush(); ok {
		p.enqueueUtterance(ctx, u, "flush")
	}
	p.logger.Info("audio source exhausted", "frames", p.frames.Load())
	p.utterances.Close()
	return nil
}

func (p *Pipeline) enqueueUtterance(ctx context.Context, u segment.Utterance, reason string) {
	p.utteranceCount.Add(1)
	p.deps.Metrics.RecordUtterance(ctx, reason)
	p.logger.Debug("utterance segmented",
		"utterance_id", u.ID,
		"frames", u.Len(),
		"speech_frames", u.SpeechFrames,
		"duration_ms", u.Duration().Milliseconds(),
		"reason", reason,
	)
	if err := p.utterances.Push(ctx, u); err != nil && !errors.Is(err, dispatch.ErrDropped) && ctx.Err() == nil {
		p.logger.Warn("utterance not queued", "utterance_id", u.ID, "error", err.Error())
	}
}

// recognizeLoop resolves utterances to triggers until the queue closes.
func (p *Pipeline) recognizeLoop(ctx context.Context) error {
	defer p.triggers.Close()

	for {
		u, err := p.utterances.Pop(ctx)
		if err != nil {
			return stageExit(err)
		}
		p.recognizeOne(ctx, u)
	}
}

func (p *Pipeline) recognizeOne(ctx context.Context, u segment.Utterance) {
	p.dumpUtterance(u)

	callCtx := ctx
	if p.deps.RecognizeTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.deps.RecognizeTimeout)
		defer cancel()
	}

	started := time.Now()
	candidates, err := p.deps.Recognizer.Recognize(callCtx, u)
	elapsed := time.Since(started)
	p.deps.Metrics.RecordRecognize(ctx, elapsed, err)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("recognition failed", "utterance_id", u.ID, "duration_ms", elapsed.Milliseconds(), "error", err.Error())
		}
		return
	}

	res, err := p.deps.Resolver.Resolve(candidates)
	if err != nil {
		p.unmatched.Add(1)
		p.deps.Metrics.RecordTrigger(ctx, observe.TriggerUnmatched)
		if p.deps.Feedback != nil {
			p.deps.Feedback.Unmatched(res.Text)
		}
		p.logger.Debug("utterance matched no trigger",
			"utterance_id", u.ID,
			"text", res.Text,
			"normalized", res.Normalized,
			"candidates", len(candidates),
			"duration_ms", elapsed.Milliseconds(),
		)
		return
	}

	job := Job{
		Trigger:     res.Trigger,
		Source:      SourceVoice,
		UtteranceID: u.ID,
		Text:        res.Text,
		Confidence:  res.Confidence,
		EnqueuedAt:  time.Now(),
	}
	p.logger.Info("trigger recognized",
		"utterance_id", u.ID,
		"trigger", job.Trigger,
		"confidence", job.Confidence,
		"duration_ms", elapsed.Milliseconds(),
	)
	if err := p.triggers.Push(ctx, job); err != nil {
		if !errors.Is(err, dispatch.ErrDropped) && ctx.Err() == nil {
			p.logger.Warn("trigger not queued", "trigger", job.Trigger, "error", err.Error())
		}
		return
	}
	p.dispatched.Add(1)
	p.deps.Metrics.RecordTrigger(ctx, observe.TriggerDispatched)
	if p.deps.Feedback != nil {
		p.deps.Feedback.Recognized(job.Trigger)
	}
}

// interpretLoop plays queued macros one at a time until the queue closes.
func (p *Pipeline) interpretLoop(ctx context.Context) error {
	for {
		job, err := p.triggers.Pop(ctx)
		if err != nil {
			return stageExit(err)
		}
		if ctx.Err() != nil {
			return nil
		}
		p.execute(ctx, job)
	}
}

func (p *Pipeline) execute(ctx context.Context, job Job) {
	queued := time.Since(job.EnqueuedAt)
	report, err := p.deps.Interpreter.Execute(job.Trigger)
	p.deps.Metrics.RecordMacro(context.WithoutCancel(ctx), job.Trigger, report.Elapsed, len(report.Failures), err)
	if err != nil {
		p.logger.Error("macro rejected", "trigger", job.Trigger, "source", job.Source, "error", err.Error())
		return
	}

	p.executed.Add(1)
	p.mu.Lock()
	p.lastTrigger = job.Trigger
	p.mu.Unlock()

	fields := []any{
		"trigger", job.Trigger,
		"source", job.Source,
		"utterance_id", job.UtteranceID,
		"tokens", report.Tokens,
		"actions", report.Actions,
		"queued_ms", queued.Milliseconds(),
		"expected_ms", report.Expected.Milliseconds(),
		"duration_ms", report.Elapsed.Milliseconds(),
		"facing", report.FacingAfter.String(),
	}
	if len(report.Failures) > 0 {
		p.logger.Warn("macro finished with actuation failures", append(fields, "failures", len(report.Failures))...)
		return
	}
	p.logger.Info("macro executed", fields...)
}

func (p *Pipeline) recordDrop(d dispatch.Drop) {
	p.deps.Metrics.RecordQueueDrop(context.Background(), d.Queue)
	if d.Queue == "triggers" {
		p.deps.Metrics.RecordTrigger(context.Background(), observe.TriggerDropped)
	}
	p.logger.Warn("queue full, item dropped", "queue", d.Queue, "policy", string(d.Policy), "depth", d.Depth)
}

func (p *Pipeline) dumpUtterance(u segment.Utterance) {
	if p.deps.DumpDir == "" {
		return
	}
	if err := os.MkdirAll(p.deps.DumpDir, 0o700); err != nil {
		p.logger.Warn("unable to create utterance dump dir", "error", err.Error())
		return
	}
	name := fmt.Sprintf("utterance-%s-%s.wav", u.StartedAt.Format("20060102-150405.000"), u.ID)
	path := filepath.Join(p.deps.DumpDir, name)
	if err := audio.WriteWAVFile(path, u.Samples(), u.SampleRate()); err != nil {
		p.logger.Warn("unable to write utterance dump", "utterance_id", u.ID, "error", err.Error())
	}
}

// stageExit maps queue shutdown and cancellation to a clean stage return.
func stageExit(err error) error {
	if errors.Is(err, dispatch.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
