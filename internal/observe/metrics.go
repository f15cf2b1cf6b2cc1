// Package observe holds the OpenTelemetry instruments recorded by the voice
// trigger pipeline and the Prometheus bridge that exposes them.
//
// Tests should build [Metrics] with [NewMetrics] over a ManualReader-backed
// provider; nil *Metrics is valid and records nothing.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all kombo metrics.
const meterName = "github.com/rbright/kombo"

// Trigger outcomes recorded on kombo.triggers.
const (
	TriggerDispatched = "dispatched"
	TriggerUnmatched  = "unmatched"
	TriggerDropped    = "dropped"
	TriggerRejected   = "rejected"
)

// Metrics holds the metric instruments shared by the pipeline stages.
type Metrics struct {
	// Frames counts frames fed to the segmentation engine.
	Frames metric.Int64Counter

	// ClassifierFailures counts frames whose classifier returned an error.
	ClassifierFailures metric.Int64Counter

	// Utterances counts emitted utterances. attribute.String("reason", "silence"|"ceiling"|"flush")
	Utterances metric.Int64Counter

	// QueueDrops counts items discarded by a full queue. attribute.String("queue", ...)
	QueueDrops metric.Int64Counter

	// RecognizeDuration tracks recognizer round-trip latency.
	RecognizeDuration metric.Float64Histogram

	// RecognizeRequests counts recognizer calls. attribute.String("status", "ok"|"error")
	RecognizeRequests metric.Int64Counter

	// Triggers counts resolution outcomes. attribute.String("status", ...)
	Triggers metric.Int64Counter

	// MacroDuration tracks wall-clock macro playback time.
	MacroDuration metric.Float64Histogram

	// MacroExecutions counts macro runs. attribute.String("status", "ok"|"error")
	MacroExecutions metric.Int64Counter

	// ActuationFailures counts individual key press or release failures.
	ActuationFailures metric.Int64Counter
}

// latencyBuckets are histogram bucket boundaries in seconds.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("kombo.segment.frames",
		metric.WithDescription("Audio frames fed to the segmentation engine."),
	); err != nil {
		return nil, err
	}
	if met.ClassifierFailures, err = m.Int64Counter("kombo.segment.classifier_failures",
		metric.WithDescription("Frames the voice activity classifier failed on."),
	); err != nil {
		return nil, err
	}
	if met.Utterances, err = m.Int64Counter("kombo.segment.utterances",
		metric.WithDescription("Utterances emitted by reason."),
	); err != nil {
		return nil, err
	}
	if met.QueueDrops, err = m.Int64Counter("kombo.queue.drops",
		metric.WithDescription("Items discarded by a full dispatch queue."),
	); err != nil {
		return nil, err
	}
	if met.RecognizeDuration, err = m.Float64Histogram("kombo.recognize.duration",
		metric.WithDescription("Latency of utterance recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RecognizeRequests, err = m.Int64Counter("kombo.recognize.requests",
		metric.WithDescription("Recognizer requests by status."),
	); err != nil {
		return nil, err
	}
	if met.Triggers, err = m.Int64Counter("kombo.triggers",
		metric.WithDescription("Trigger resolution outcomes by status."),
	); err != nil {
		return nil, err
	}
	if met.MacroDuration, err = m.Float64Histogram("kombo.macro.duration",
		metric.WithDescription("Wall-clock macro playback time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.MacroExecutions, err = m.Int64Counter("kombo.macro.executions",
		metric.WithDescription("Macro executions by trigger and status."),
	); err != nil {
		return nil, err
	}
	if met.ActuationFailures, err = m.Int64Counter("kombo.actuator.failures",
		metric.WithDescription("Key press or release calls that failed."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordFrame counts one segmented frame.
func (m *Metrics) RecordFrame(ctx context.Context) {
	if m == nil {
		return
	}
	m.Frames.Add(ctx, 1)
}

// RecordClassifierFailure counts one frame the classifier failed on.
func (m *Metrics) RecordClassifierFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.ClassifierFailures.Add(ctx, 1)
}

// RecordUtterance counts one emitted utterance.
func (m *Metrics) RecordUtterance(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordQueueDrop counts one item dropped by the named queue.
func (m *Metrics) RecordQueueDrop(ctx context.Context, queue string) {
	if m == nil {
		return
	}
	m.QueueDrops.Add(ctx, 1, metric.WithAttributes(attribute.String("queue", queue)))
}

// RecordRecognize records one recognizer round trip.
func (m *Metrics) RecordRecognize(ctx context.Context, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.RecognizeDuration.Record(ctx, elapsed.Seconds())
	m.RecognizeRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status(err))))
}

// RecordTrigger counts one trigger resolution outcome.
func (m *Metrics) RecordTrigger(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Triggers.Add(ctx, 1, metric.WithAttributes(attribute.String("status", outcome)))
}

// RecordMacro records one macro execution and its actuation failures.
func (m *Metrics) RecordMacro(ctx context.Context, trigger string, elapsed time.Duration, failures int, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("status", status(err)),
	)
	m.MacroExecutions.Add(ctx, 1, attrs)
	if err == nil {
		m.MacroDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("trigger", trigger)))
	}
	if failures > 0 {
		m.ActuationFailures.Add(ctx, int64(failures))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
