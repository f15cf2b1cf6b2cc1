package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/kombo/internal/segment"
)

var (
	// ErrStreamEnded reports a record stream that stopped without Stop being
	// called, e.g. after a Pulse server restart.
	ErrStreamEnded = errors.New("pulse record stream ended")
	// ErrCaptureStalled reports a running stream that stopped delivering audio.
	ErrCaptureStalled = errors.New("pulse record stream stalled")
)

const (
	watchInterval       = 250 * time.Millisecond
	defaultStallTimeout = 2 * time.Second
)

// streamState is the part of *pulse.RecordStream the watchdog reads.
type streamState interface {
	Closed() bool
	Running() bool
	Error() error
}

// Capture slices one Pulse record stream into fixed-size frames.
type Capture struct {
	device     Device
	sampleRate int
	frameBytes int
	emit       func(segment.Frame)

	client *pulse.Client
	stream *pulse.RecordStream
	state  streamState

	stopCh chan struct{}
	done   chan struct{} // closed once no emit call can still be running

	mu      sync.Mutex
	pending []byte
	seq     uint64
	stopped bool
	err     error

	inflight sync.WaitGroup
	bytes    atomic.Int64
	frames   atomic.Uint64
	lastData atomic.Int64
	emitting atomic.Int32
}

// StartCapture creates and starts a mono s16 record stream. emit is called
// from the Pulse reader goroutine, once per complete frame, in capture order.
func StartCapture(ctx context.Context, selected Device, sampleRate, frameSamples int, emit func(segment.Frame)) (*Capture, error) {
	if sampleRate <= 0 || frameSamples <= 0 {
		return nil, fmt.Errorf("invalid capture geometry: rate=%d frame=%d", sampleRate, frameSamples)
	}

	client, err := newClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	capture := newCapture(selected, sampleRate, frameSamples, emit)
	capture.client = client

	writer := pulse.NewWriter(writerFunc(capture.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(uint32(capture.frameBytes)),
		pulse.RecordMediaName("kombo voice triggers"),
	)
	if err != nil {
		capture.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	capture.stream = stream
	capture.state = stream
	stream.Start()

	go capture.watch(ctx, watchInterval, defaultStallTimeout)

	return capture, nil
}

func newCapture(device Device, sampleRate, frameSamples int, emit func(segment.Frame)) *Capture {
	c := &Capture{
		device:     device,
		sampleRate: sampleRate,
		frameBytes: frameSamples * 2,
		emit:       emit,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.lastData.Store(time.Now().UnixNano())
	return c
}

// Device returns capture metadata for logging and diagnostics.
func (c *Capture) Device() Device {
	return c.device
}

// BytesCaptured reports total bytes accepted from Pulse.
func (c *Capture) BytesCaptured() int64 {
	return c.bytes.Load()
}

// FramesEmitted reports the number of complete frames handed to emit.
func (c *Capture) FramesEmitted() uint64 {
	return c.frames.Load()
}

// Done is closed once Stop has finished and every in-flight emit returned.
func (c *Capture) Done() <-chan struct{} {
	return c.done
}

// Err returns why the capture ended on its own, or nil after a requested
// stop.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Stop halts the stream and waits for in-flight callbacks. A trailing partial
// frame is dropped.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	close(c.stopCh)
	c.mu.Unlock()
	defer close(c.done)

	if c.stream != nil {
		c.stream.Stop()
		c.stream.Close()
	}
	if c.client != nil {
		c.client.Close()
	}

	c.inflight.Wait()

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return nil
}

// Close is a convenience alias for Stop.
func (c *Capture) Close() {
	_ = c.Stop()
}

// watch stops the capture when ctx ends, and fails it when the stream ends
// or goes quiet on its own.
func (c *Capture) watch(ctx context.Context, interval, stall time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = c.Stop()
			return
		case <-c.stopCh:
			return
		case now := <-ticker.C:
			if err := c.check(now, stall); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

func (c *Capture) check(now time.Time, stall time.Duration) error {
	if c.state != nil && (c.state.Closed() || !c.state.Running()) {
		if err := c.state.Error(); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %w", ErrStreamEnded, err)
		}
		return ErrStreamEnded
	}
	// A blocked emit holds the Pulse reader; that is backpressure, not a stall.
	if stall > 0 && c.emitting.Load() == 0 {
		if quiet := now.Sub(time.Unix(0, c.lastData.Load())); quiet > stall {
			return fmt.Errorf("%w: no audio for %s", ErrCaptureStalled, quiet.Round(time.Millisecond))
		}
	}
	return nil
}

func (c *Capture) fail(err error) {
	c.mu.Lock()
	if !c.stopped && c.err == nil {
		c.err = err
	}
	c.mu.Unlock()
	_ = c.Stop()
}

// onPCM receives raw Pulse buffers and emits every complete frame.
func (c *Capture) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	select {
	case <-c.stopCh:
		return 0, io.EOF
	default:
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return 0, io.EOF
	}
	// Guard Add under the same mutex as c.stopped to avoid Add/Wait races.
	c.inflight.Add(1)

	c.pending = append(c.pending, buffer...)

	frames := make([]segment.Frame, 0, len(c.pending)/c.frameBytes)
	for len(c.pending) >= c.frameBytes {
		frames = append(frames, segment.FrameFromPCM(c.seq, c.sampleRate, c.pending[:c.frameBytes]))
		c.seq++
		c.pending = c.pending[c.frameBytes:]
	}
	c.mu.Unlock()
	defer c.inflight.Done()

	c.bytes.Add(int64(len(buffer)))
	c.emitting.Add(1)
	defer func() {
		c.emitting.Add(-1)
		c.lastData.Store(time.Now().UnixNano())
	}()

	for _, frame := range frames {
		select {
		case <-c.stopCh:
			return 0, io.EOF
		default:
		}
		if c.emit != nil {
			c.emit(frame)
		}
		c.frames.Add(1)
	}

	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}

// PulseSource captures from the configured Pulse input until the context
// ends. A stream that ends or stalls on its own fails Run.
type PulseSource struct {
	Input        string
	Fallback     string
	SampleRate   int
	FrameSamples int
	Logger       *slog.Logger
}

// Run implements Source.
func (p PulseSource) Run(ctx context.Context, emit func(segment.Frame)) error {
	selection, err := SelectDevice(ctx, p.Input, p.Fallback)
	if err != nil {
		return err
	}
	if selection.Warning != "" && p.Logger != nil {
		p.Logger.Warn(selection.Warning)
	}

	capture, err := StartCapture(ctx, selection.Device, p.SampleRate, p.FrameSamples, emit)
	if err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.Info("audio capture started", "device", selection.Device.String(), "sample_rate", p.SampleRate, "frame_samples", p.FrameSamples)
	}

	<-capture.Done()
	err = capture.Err()
	if p.Logger != nil {
		fields := []any{"bytes", capture.BytesCaptured(), "frames", capture.FramesEmitted()}
		if err != nil {
			p.Logger.Error("audio capture lost", append(fields, "error", err.Error())...)
		} else {
			p.Logger.Info("audio capture stopped", fields...)
		}
	}
	return err
}
