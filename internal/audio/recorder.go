// Package audio implements the native capture host: it records the default
// microphone with malgo and hands finished recordings over as WAV artifacts.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/chaz8081/gostt-overlay/internal/artifact"
	"github.com/chaz8081/gostt-overlay/internal/capture"
)

// ErrNotRecording is returned by EndCapture when no capture is running.
var ErrNotRecording = errors.New("audio: not recording")

// Recorder captures audio from the default microphone. It implements
// capture.NativeHost.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32
	dir        string

	mu        sync.Mutex
	buf       []float32
	recording bool
	sink      FrameSink
	now       func() time.Time
}

// FrameSink receives every captured frame, e.g. a silence detector.
// Feed runs on the audio callback goroutine and must not block.
type FrameSink interface {
	Feed(frame []float32)
	Reset()
}

// NewRecorder creates a recorder that writes finished captures into dir.
// Call Close() when done.
func NewRecorder(sampleRate, channels uint32, dir string) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}

	return &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
		dir:        dir,
		now:        time.Now,
	}, nil
}

// SetSink registers s to receive captured frames. It is reset at the start
// of every capture.
func (r *Recorder) SetSink(s FrameSink) {
	r.mu.Lock()
	r.sink = s
	r.mu.Unlock()
}

// BeginCapture implements capture.NativeHost.
func (r *Recorder) BeginCapture() error {
	r.mu.Lock()
	sink := r.sink
	r.mu.Unlock()
	if sink != nil && !r.IsRecording() {
		sink.Reset()
	}
	return r.Start()
}

// EndCapture implements capture.NativeHost. It stops the device and writes
// the recording as a 16-bit WAV file.
func (r *Recorder) EndCapture() (artifact.Ref, error) {
	if !r.IsRecording() {
		return artifact.Ref{}, ErrNotRecording
	}
	samples := r.Stop()

	name := fmt.Sprintf("capture-%s.wav", r.now().Format("20060102-150405.000"))
	ref, err := artifact.WriteWAV(filepath.Join(r.dir, name), samples, int(r.sampleRate), int(r.channels))
	if err != nil {
		return artifact.Ref{}, fmt.Errorf("audio: saving capture: %w", err)
	}
	slog.Debug("[audio] capture saved", "path", ref.Path, "samples", len(samples))
	return ref, nil
}

// Start begins capturing audio from the default microphone.
// Audio samples are accumulated in an internal buffer as float32 values.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return capture.ErrAlreadyRecording
	}
	r.buf = r.buf[:0] // reset buffer but keep capacity
	r.recording = true
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.setRecording(false)
		return fmt.Errorf("%w: initializing capture device: %v", capture.ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.setRecording(false)
		return fmt.Errorf("%w: starting capture device: %v", capture.ErrDeviceUnavailable, err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	return nil
}

// Stop ends the audio capture and returns the recorded interleaved samples.
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}

	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false

	result := make([]float32, len(r.buf))
	copy(result, r.buf)

	return result
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) setRecording(v bool) {
	r.mu.Lock()
	r.recording = v
	r.mu.Unlock()
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		r.ctx.Free()
	}

	return nil
}

// onData is the malgo callback invoked when audio data is available.
// pSample contains the captured audio frames as raw bytes (float32 format).
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * r.channels
	samples := bytesToFloat32(pSample, sampleCount)

	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.buf = append(r.buf, samples...)
	sink := r.sink
	r.mu.Unlock()

	if sink != nil {
		sink.Feed(samples)
	}
}

// bytesToFloat32 converts raw bytes (little-endian float32) to a float32 slice.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
