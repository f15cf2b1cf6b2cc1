package audio

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/kombo/internal/segment"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	closed  atomic.Bool
	stopped atomic.Bool
	err     error
}

func (f *fakeStream) Closed() bool  { return f.closed.Load() }
func (f *fakeStream) Running() bool { return !f.stopped.Load() && !f.closed.Load() }
func (f *fakeStream) Error() error  { return f.err }

func TestCaptureDoneWaitsForInflightEmit(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	capture := newCapture(Device{}, 16000, 2, func(segment.Frame) {
		close(entered)
		<-release
	})

	pcmDone := make(chan struct{})
	go func() {
		defer close(pcmDone)
		_, _ = capture.onPCM([]byte{1, 0, 2, 0})
	}()
	<-entered

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		_ = capture.Stop()
	}()

	select {
	case <-capture.Done():
		t.Fatal("Done closed while emit was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-pcmDone
	<-stopDone
	select {
	case <-capture.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after emit returned")
	}
	require.NoError(t, capture.Err())
}

func TestCaptureCheck(t *testing.T) {
	now := time.Now()

	t.Run("healthy", func(t *testing.T) {
		capture := newCapture(Device{}, 16000, 320, nil)
		capture.state = &fakeStream{}
		require.NoError(t, capture.check(now, time.Second))
	})

	t.Run("server lost", func(t *testing.T) {
		capture := newCapture(Device{}, 16000, 320, nil)
		stream := &fakeStream{err: pulse.ErrConnectionClosed}
		stream.closed.Store(true)
		capture.state = stream

		err := capture.check(now, time.Second)
		require.ErrorIs(t, err, ErrStreamEnded)
		require.ErrorIs(t, err, pulse.ErrConnectionClosed)
	})

	t.Run("stopped without error", func(t *testing.T) {
		capture := newCapture(Device{}, 16000, 320, nil)
		stream := &fakeStream{err: io.EOF}
		stream.stopped.Store(true)
		capture.state = stream

		err := capture.check(now, time.Second)
		require.ErrorIs(t, err, ErrStreamEnded)
		require.NotErrorIs(t, err, io.EOF)
	})

	t.Run("quiet stream", func(t *testing.T) {
		capture := newCapture(Device{}, 16000, 320, nil)
		capture.state = &fakeStream{}
		require.ErrorIs(t, capture.check(now.Add(3*time.Second), 2*time.Second), ErrCaptureStalled)
		require.NoError(t, capture.check(now.Add(3*time.Second), 0))
	})

	t.Run("blocked emit is not a stall", func(t *testing.T) {
		capture := newCapture(Device{}, 16000, 320, nil)
		capture.state = &fakeStream{}
		capture.emitting.Add(1)
		require.NoError(t, capture.check(now.Add(time.Minute), 2*time.Second))
	})
}

func TestCaptureWatchFailsWhenStreamEnds(t *testing.T) {
	capture := newCapture(Device{}, 16000, 320, nil)
	stream := &fakeStream{}
	capture.state = stream

	go capture.watch(context.Background(), 5*time.Millisecond, 0)
	stream.closed.Store(true)

	select {
	case <-capture.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not stop after the stream closed")
	}
	require.ErrorIs(t, capture.Err(), ErrStreamEnded)
}

func TestCaptureWatchStopsCleanlyOnCancel(t *testing.T) {
	capture := newCapture(Device{}, 16000, 320, nil)
	capture.state = &fakeStream{}

	ctx, cancel := context.WithCancel(context.Background())
	go capture.watch(ctx, 5*time.Millisecond, time.Minute)
	cancel()

	select {
	case <-capture.Done():
	case <-time.After(time.Second):
		t.Fatal("capture did not stop after cancel")
	}
	require.NoError(t, capture.Err())
}

func TestCaptureRequestedStopKeepsErrNil(t *testing.T) {
	capture := newCapture(Device{}, 16000, 320, nil)
	require.NoError(t, capture.Stop())
	capture.fail(errors.New("late failure"))
	require.NoError(t, capture.Err())
}
