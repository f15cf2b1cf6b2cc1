package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/kombo/internal/segment"
)

// ErrNotWAV is returned for files without a valid RIFF/WAVE header.
var ErrNotWAV = errors.New("not a wav file")

// WAVSource replays a 16-bit PCM WAV file as fixed-size frames. Multi-channel
// input is downmixed to mono. A trailing partial frame is dropped.
type WAVSource struct {
	Path         string
	SampleRate   int
	FrameSamples int
	// Paced emits one frame per frame duration instead of as fast as possible.
	Paced bool
}

// Run implements Source. It returns nil once the file is exhausted.
func (w WAVSource) Run(ctx context.Context, emit func(segment.Frame)) error {
	if w.FrameSamples <= 0 {
		return fmt.Errorf("invalid frame size %d", w.FrameSamples)
	}

	f, err := os.Open(w.Path)
	if err != nil {
		return fmt.Errorf("open wav %q: %w", w.Path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return fmt.Errorf("%w: %s", ErrNotWAV, w.Path)
	}
	if dec.BitDepth != 16 {
		return fmt.Errorf("wav %q: unsupported bit depth %d (want 16)", w.Path, dec.BitDepth)
	}
	format := dec.Format()
	if w.SampleRate > 0 && format.SampleRate != w.SampleRate {
		return fmt.Errorf("wav %q: sample rate %d does not match audio.sample_rate %d", w.Path, format.SampleRate, w.SampleRate)
	}
	channels := max(format.NumChannels, 1)

	var ticker *time.Ticker
	if w.Paced {
		frame := time.Duration(w.FrameSamples) * time.Second / time.Duration(format.SampleRate)
		ticker = time.NewTicker(frame)
		defer ticker.Stop()
	}

	buf := &goaudio.IntBuffer{
		Format:         format,
		Data:           make([]int, w.FrameSamples*channels),
		SourceBitDepth: 16,
	}
	var seq uint64
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		n, err := readFull(dec, buf)
		if err != nil {
			return fmt.Errorf("decode wav %q: %w", w.Path, err)
		}
		if n < len(buf.Data) {
			return nil
		}

		samples := make([]int16, w.FrameSamples)
		for i := range samples {
			sum := 0
			for ch := 0; ch < channels; ch++ {
				sum += buf.Data[i*channels+ch]
			}
			samples[i] = int16(sum / channels)
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
		emit(segment.Frame{Seq: seq, SampleRate: format.SampleRate, Samples: samples})
		seq++
	}
}

// readFull fills buf.Data unless the stream ends first.
func readFull(dec *wav.Decoder, buf *goaudio.IntBuffer) (int, error) {
	want := len(buf.Data)
	chunk := &goaudio.IntBuffer{Format: buf.Format, SourceBitDepth: buf.SourceBitDepth}
	total := 0
	for total < want {
		chunk.Data = buf.Data[total:]
		n, err := dec.PCMBuffer(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total, nil
}

// WritePCM16WAV writes raw little-endian PCM bytes with a minimal WAV header.
func WritePCM16WAV(w io.Writer, pcm []byte, sampleRate int, channels int) error {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	byteRate := sampleRate * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(pcm)
	return err
}

// EncodeUtterance renders an utterance as an in-memory mono WAV file.
func EncodeUtterance(u segment.Utterance) ([]byte, error) {
	pcm := u.PCM()
	var out bytes.Buffer
	out.Grow(44 + len(pcm))
	if err := WritePCM16WAV(&out, pcm, u.SampleRate(), 1); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// WriteWAVFile writes mono 16-bit samples to path through the go-audio encoder.
func WriteWAVFile(path string, samples []int16, sampleRate int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create wav %q: %w", path, err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("encode wav %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize wav %q: %w", path, err)
	}
	return nil
}
