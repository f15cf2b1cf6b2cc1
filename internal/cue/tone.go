package cue

import (
	"math"
	"time"
)

const cueSampleRate = 16000

type tonePart struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

// Cues are kept short so they do not mask the next spoken trigger.
var (
	recognizedCuePCM = synthesizeCue([]tonePart{
		{frequencyHz: 988, duration: 45 * time.Millisecond, volume: 0.16},
		{frequencyHz: 1319, duration: 45 * time.Millisecond, volume: 0.16},
	})
	unmatchedCuePCM = synthesizeCue([]tonePart{
		{frequencyHz: 330, duration: 90 * time.Millisecond, volume: 0.16},
	})
)

func cueSamples(kind Kind) []int16 {
	switch kind {
	case KindRecognized:
		return recognizedCuePCM
	case KindUnmatched:
		return unmatchedCuePCM
	default:
		return nil
	}
}

func synthesizeCue(parts []tonePart) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(15 * time.Millisecond)
	total := 0
	for i, part := range parts {
		total += samplesForDuration(part.duration)
		if i < len(parts)-1 {
			total += gapSamples
		}
	}

	pcm := make([]int16, 0, total)
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 && gapSamples > 0 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}

	return pcm
}

func synthesizeTone(part tonePart) []int16 {
	n := samplesForDuration(part.duration)
	if n <= 0 || part.frequencyHz <= 0 || part.volume <= 0 {
		return nil
	}

	ramp := min(n/10, cueSampleRate/200) // at most 5ms
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := 1.0
		if i < ramp {
			envelope = float64(i) / float64(ramp)
		}
		if tail := n - i - 1; tail < ramp {
			envelope = min(envelope, float64(tail)/float64(ramp))
		}
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * part.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * part.volume * envelope * 32767))
	}

	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
