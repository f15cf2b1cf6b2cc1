// Package vad classifies single audio frames as speech or non-speech.
package vad

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rbright/kombo/internal/segment"
)

const (
	DefaultSpeechThreshold  = 0.015
	DefaultSilenceThreshold = 0.008
)

var (
	// ErrEmptyFrame is returned for frames without samples.
	ErrEmptyFrame = errors.New("vad: empty frame")
	// ErrSampleRate is returned when a frame does not match the configured rate.
	ErrSampleRate = errors.New("vad: unexpected sample rate")
)

// Energy is an RMS level classifier with two thresholds. A frame at or above
// the speech threshold is speech; once in speech, frames stay speech until
// the level falls below the silence threshold.
type Energy struct {
	sampleRate       int
	speechThreshold  float64
	silenceThreshold float64

	mu       sync.Mutex
	inSpeech bool
}

// NewEnergy builds an energy classifier. Thresholds are normalized RMS levels
// in [0, 1]. A silence threshold above the speech threshold is clamped to it.
func NewEnergy(sampleRate int, speechThreshold, silenceThreshold float64) (*Energy, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("vad: sample rate must be > 0")
	}
	if speechThreshold <= 0 || speechThreshold > 1 {
		return nil, fmt.Errorf("vad: speech threshold must be in (0, 1]")
	}
	if silenceThreshold < 0 {
		return nil, fmt.Errorf("vad: silence threshold must be >= 0")
	}
	if silenceThreshold > speechThreshold {
		silenceThreshold = speechThreshold
	}
	return &Energy{
		sampleRate:       sampleRate,
		speechThreshold:  speechThreshold,
		silenceThreshold: silenceThreshold,
	}, nil
}

// Classify implements segment.Classifier.
func (e *Energy) Classify(frame segment.Frame) (bool, error) {
	if len(frame.Samples) == 0 {
		return false, ErrEmptyFrame
	}
	if frame.SampleRate != e.sampleRate {
		return false, fmt.Errorf("%w: got %d want %d", ErrSampleRate, frame.SampleRate, e.sampleRate)
	}

	level := RMS(frame.Samples)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inSpeech {
		e.inSpeech = level >= e.silenceThreshold
	} else {
		e.inSpeech = level >= e.speechThreshold
	}
	return e.inSpeech, nil
}

// Reset clears the hysteresis state.
func (e *Energy) Reset() {
	e.mu.Lock()
	e.inSpeech = false
	e.mu.Unlock()
}

// RMS returns the root-mean-square level of samples normalized to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
