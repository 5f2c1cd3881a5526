package device

import (
	"sync"
	"time"
)

// FakeCapture is a deterministic in-memory CaptureStream for tests: it
// serves frames from a preloaded buffer (or silence once exhausted,
// depending on SilenceAfterEOF) without touching real audio hardware.
type FakeCapture struct {
	channels        int
	fpb             int
	sampleRate      int
	SilenceAfterEOF bool

	mu     sync.Mutex
	source []float32 // interleaved
	pos    int
}

// NewFakeCapture creates a fake capture stream that serves the given
// interleaved source samples, then silence (if SilenceAfterEOF is set
// via the returned value) or a zero-frame read thereafter.
func NewFakeCapture(sampleRate, channels, framesPerBurst int, source []float32) *FakeCapture {
	return &FakeCapture{
		channels:   channels,
		fpb:        framesPerBurst,
		sampleRate: sampleRate,
		source:     source,
	}
}

func (f *FakeCapture) ChannelCount() int   { return f.channels }
func (f *FakeCapture) FramesPerBurst() int { return f.fpb }
func (f *FakeCapture) SampleRate() int     { return f.sampleRate }
func (f *FakeCapture) RequestStart() error { return nil }
func (f *FakeCapture) RequestStop() error  { return nil }

// Read never blocks; it returns immediately with whatever is
// available, matching the spec's "transient capture failure" class
// when nothing is ready (0 frames, nil error) rather than actually
// sleeping for timeout in tests.
func (f *FakeCapture) Read(dst []float32, frames int, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	remaining := len(f.source) - f.pos
	n := frames
	if n*f.channels > remaining {
		n = remaining / f.channels
	}
	if n <= 0 {
		if f.SilenceAfterEOF {
			n = frames
			for i := 0; i < n*f.channels && i < len(dst); i++ {
				dst[i] = 0
			}
			return n, nil
		}
		return 0, nil
	}

	copy(dst[:n*f.channels], f.source[f.pos:f.pos+n*f.channels])
	f.pos += n * f.channels
	return n, nil
}

// FakePlayback is a deterministic in-memory PlaybackStream for tests:
// it drives the installed pull callback on demand via Pull, instead of
// a real audio thread.
type FakePlayback struct {
	channels   int
	fpb        int
	sampleRate int
	pull       func(out []float32, numFrames int) int
}

// NewFakePlayback creates a fake playback stream.
func NewFakePlayback(sampleRate, channels, framesPerBurst int) *FakePlayback {
	return &FakePlayback{channels: channels, fpb: framesPerBurst, sampleRate: sampleRate}
}

func (f *FakePlayback) ChannelCount() int   { return f.channels }
func (f *FakePlayback) FramesPerBurst() int { return f.fpb }
func (f *FakePlayback) SampleRate() int     { return f.sampleRate }
func (f *FakePlayback) RequestStart() error { return nil }
func (f *FakePlayback) RequestStop() error  { return nil }

func (f *FakePlayback) SetPullCallback(pull func(out []float32, numFrames int) int) {
	f.pull = pull
}

// Pull drives the installed callback as if the device's audio thread
// requested numFrames frames, returning the interleaved output.
func (f *FakePlayback) Pull(numFrames int) []float32 {
	out := make([]float32, numFrames*f.channels)
	if f.pull != nil {
		f.pull(out, numFrames)
	}
	return out
}
