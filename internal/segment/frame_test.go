package segment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameFromPCMRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xff, 0x7f, 0x00, 0x80, 0x09}
	frame := FrameFromPCM(7, 16000, pcm)

	require.Equal(t, uint64(7), frame.Seq)
	require.Equal(t, []int16{1, 32767, -32768}, frame.Samples)
	require.Equal(t, pcm[:6], frame.AppendPCM(nil))
}

func TestFrameDuration(t *testing.T) {
	frame := Frame{SampleRate: 16000, Samples: make([]int16, 320)}
	require.Equal(t, 20*time.Millisecond, frame.Duration())
	require.Zero(t, Frame{Samples: make([]int16, 320)}.Duration())
}

func TestUtteranceAccessors(t *testing.T) {
	u := Utterance{Frames: []Frame{
		{Seq: 1, SampleRate: 16000, Samples: []int16{1, 2}},
		{Seq: 2, SampleRate: 16000, Samples: []int16{3}},
	}}

	require.Equal(t, 2, u.Len())
	require.Equal(t, 16000, u.SampleRate())
	require.Equal(t, 3, u.SampleCount())
	require.Equal(t, []int16{1, 2, 3}, u.Samples())
	require.Equal(t, []byte{1, 0, 2, 0, 3, 0}, u.PCM())
	require.Zero(t, Utterance{}.SampleRate())
}
