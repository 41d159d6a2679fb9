// Package artifact holds references to captured audio awaiting transcription.
// A Ref points either at a WAV file on disk or at an in-memory WAV payload and
// carries the encoding parameters it was recorded with.
package artifact

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Encoding names the sample encoding of an artifact payload.
type Encoding string

// Linear16 is signed 16-bit little-endian PCM in a WAV container.
const Linear16 Encoding = "LINEAR16"

// ErrEmpty is returned when an artifact has neither a path nor data.
var ErrEmpty = errors.New("artifact: empty reference")

// Ref is an opaque reference to recorded audio.
type Ref struct {
	Path       string
	Data       []byte
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Format describes the audio parameters read from a WAV header.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Name returns a file name for uploads.
func (r Ref) Name() string {
	if r.Path != "" {
		return filepath.Base(r.Path)
	}
	return "audio.wav"
}

// Bytes returns the raw WAV payload.
func (r Ref) Bytes() ([]byte, error) {
	if len(r.Data) > 0 {
		return r.Data, nil
	}
	if r.Path == "" {
		return nil, ErrEmpty
	}
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("artifact: read %s: %w", r.Path, err)
	}
	return data, nil
}

func (r Ref) decoder() (*wav.Decoder, error) {
	data, err := r.Bytes()
	if err != nil {
		return nil, err
	}
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("artifact: %s is not a valid WAV file", r.Name())
	}
	return dec, nil
}

// Format reads the actual encoding parameters from the WAV header rather
// than trusting the values recorded on the Ref.
func (r Ref) Format() (Format, error) {
	dec, err := r.decoder()
	if err != nil {
		return Format{}, err
	}
	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if dec.WavAudioFormat == 1 && dec.BitDepth == 16 {
		f.Encoding = Linear16
	}
	return f, nil
}

// Samples decodes the payload to mono float32 samples in [-1, 1] and
// returns them with the payload's sample rate. Multi-channel audio is
// downmixed by averaging.
func (r Ref) Samples() ([]float32, int, error) {
	dec, err := r.decoder()
	if err != nil {
		return nil, 0, err
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("artifact: decode %s: %w", r.Name(), err)
	}

	channels := int(dec.NumChans)
	if channels <= 0 {
		channels = 1
	}
	scale := float32(int(1) << (dec.BitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}
	return samples, int(dec.SampleRate), nil
}

// Duration returns the playback length in seconds.
func (r Ref) Duration() (float64, error) {
	dec, err := r.decoder()
	if err != nil {
		return 0, err
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("artifact: duration of %s: %w", r.Name(), err)
	}
	return d.Seconds(), nil
}

// WriteWAV encodes interleaved float32 samples as 16-bit PCM at path.
func WriteWAV(path string, samples []float32, sampleRate, channels int) (Ref, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return Ref{}, fmt.Errorf("artifact: creating dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return Ref{}, fmt.Errorf("artifact: creating %s: %w", path, err)
	}

	if err := encode(f, samples, sampleRate, channels); err != nil {
		f.Close()
		os.Remove(path)
		return Ref{}, err
	}
	if err := f.Close(); err != nil {
		return Ref{}, fmt.Errorf("artifact: closing %s: %w", path, err)
	}

	return Ref{
		Path:       path,
		Encoding:   Linear16,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

func encode(w io.WriteSeeker, samples []float32, sampleRate, channels int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)

	ints := make([]int, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		ints[i] = int(s * 32767)
	}

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("artifact: encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("artifact: finalizing wav: %w", err)
	}
	return nil
}
