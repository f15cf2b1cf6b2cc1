package vad

import (
	"fmt"

	"github.com/rbright/kombo/internal/segment"
)

// Windowed splits each frame into fixed sub-windows and reports speech when
// any window is speech. It lets a classifier tuned for short windows run
// against longer capture frames.
type Windowed struct {
	inner   segment.Classifier
	samples int
}

// NewWindowed wraps inner so it sees windows of the given sample count.
func NewWindowed(inner segment.Classifier, windowSamples int) (*Windowed, error) {
	if inner == nil {
		return nil, fmt.Errorf("vad: windowed classifier needs an inner classifier")
	}
	if windowSamples <= 0 {
		return nil, fmt.Errorf("vad: window must be > 0 samples")
	}
	return &Windowed{inner: inner, samples: windowSamples}, nil
}

// Classify implements segment.Classifier. A trailing partial window is
// classified on its own. The first inner error fails the whole frame.
func (w *Windowed) Classify(frame segment.Frame) (bool, error) {
	if len(frame.Samples) == 0 {
		return false, ErrEmptyFrame
	}
	speech := false
	for start := 0; start < len(frame.Samples); start += w.samples {
		end := min(start+w.samples, len(frame.Samples))
		window := segment.Frame{
			Seq:        frame.Seq,
			SampleRate: frame.SampleRate,
			Samples:    frame.Samples[start:end],
		}
		ok, err := w.inner.Classify(window)
		if err != nil {
			return false, err
		}
		speech = speech || ok
	}
	return speech, nil
}
