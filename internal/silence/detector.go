package silence

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Detector watches captured audio frames and signals once after a
// continuous run of frames quieter than the threshold. It implements Source.
type Detector struct {
	mu            sync.Mutex
	thresholdDBFS float64
	holdSamples   int
	channels      int
	silentRun     int
	fired         bool
	scratch       []float64

	ch chan struct{}
}

// NewDetector creates a detector for interleaved audio at sampleRate with
// the given channel count. A run of hold below thresholdDBFS raises a signal.
func NewDetector(sampleRate, channels int, thresholdDBFS float64, hold time.Duration) *Detector {
	if channels <= 0 {
		channels = 1
	}
	return &Detector{
		thresholdDBFS: thresholdDBFS,
		holdSamples:   int(hold.Seconds() * float64(sampleRate)),
		channels:      channels,
		ch:            make(chan struct{}, 1),
	}
}

// Signals implements Source.
func (d *Detector) Signals() <-chan struct{} {
	return d.ch
}

// Reset clears the silent run so a new capture starts from zero.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.silentRun = 0
	d.fired = false
	d.mu.Unlock()
}

// Feed processes one frame of interleaved samples. It is safe to call from
// the audio callback goroutine.
func (d *Detector) Feed(frame []float32) {
	if len(frame) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cap(d.scratch) < len(frame) {
		d.scratch = make([]float64, len(frame))
	}
	x := d.scratch[:len(frame)]
	for i, s := range frame {
		x[i] = float64(s)
	}

	if LevelDBFS(x) < d.thresholdDBFS {
		d.silentRun += len(frame) / d.channels
	} else {
		d.silentRun = 0
		d.fired = false
	}

	if d.silentRun >= d.holdSamples && !d.fired {
		d.fired = true
		select {
		case d.ch <- struct{}{}:
		default:
		}
	}
}

// LevelDBFS returns the RMS level of x in dB relative to full scale.
// Digital silence returns -Inf.
func LevelDBFS(x []float64) float64 {
	if len(x) == 0 {
		return math.Inf(-1)
	}
	rms := floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
	if rms == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms)
}
