// Package segment turns a stream of fixed-size PCM frames into bounded utterances.
package segment

import (
	"encoding/binary"
	"time"
)

// Frame is one fixed-size block of signed 16-bit mono samples.
//
// Frames are immutable once produced; consumers may share them freely.
type Frame struct {
	Seq        uint64
	SampleRate int
	Samples    []int16
}

// FrameFromPCM decodes little-endian s16 PCM bytes into a Frame.
// A trailing odd byte is ignored.
func FrameFromPCM(seq uint64, sampleRate int, pcm []byte) Frame {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return Frame{Seq: seq, SampleRate: sampleRate, Samples: samples}
}

// Duration reports the wall-clock length of the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// AppendPCM appends the frame samples as little-endian s16 bytes.
func (f Frame) AppendPCM(dst []byte) []byte {
	for _, s := range f.Samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// Utterance is one contiguous speech segment bounded by silence.
type Utterance struct {
	ID           string
	Frames       []Frame
	SpeechFrames int
	// Forced marks an utterance cut by the memory ceiling instead of silence.
	Forced    bool
	StartedAt time.Time
	EndedAt   time.Time
}

// Len returns the number of frames in the utterance.
func (u Utterance) Len() int {
	return len(u.Frames)
}

// SampleRate returns the sample rate shared by all frames.
func (u Utterance) SampleRate() int {
	if len(u.Frames) == 0 {
		return 0
	}
	return u.Frames[0].SampleRate
}

// SampleCount returns the total number of samples across all frames.
func (u Utterance) SampleCount() int {
	n := 0
	for _, f := range u.Frames {
		n += len(f.Samples)
	}
	return n
}

// Duration reports the audio length of the utterance.
func (u Utterance) Duration() time.Duration {
	var d time.Duration
	for _, f := range u.Frames {
		d += f.Duration()
	}
	return d
}

// PCM returns the utterance as one little-endian s16 byte slice.
func (u Utterance) PCM() []byte {
	out := make([]byte, 0, u.SampleCount()*2)
	for _, f := range u.Frames {
		out = f.AppendPCM(out)
	}
	return out
}

// Samples returns the utterance samples as one contiguous slice.
func (u Utterance) Samples() []int16 {
	out := make([]int16, 0, u.SampleCount())
	for _, f := range u.Frames {
		out = append(out, f.Samples...)
	}
	return out
}
