// Package device defines the capture/playback stream collaborators the
// pipeline orchestrator depends on, plus a malgo-backed implementation
// and a deterministic in-memory fake used by tests.
package device

import "time"

// CaptureStream is a blocking, pull-style audio input device.
type CaptureStream interface {
	ChannelCount() int
	FramesPerBurst() int
	SampleRate() int
	RequestStart() error
	RequestStop() error

	// Read blocks until frames are available, the timeout elapses, or
	// the stream errors, and returns the number of frames actually
	// read into dst (interleaved, ChannelCount() channels per frame).
	Read(dst []float32, frames int, timeout time.Duration) (int, error)
}

// PlaybackStream is a callback-driven audio output device. The
// orchestrator installs a pull callback that the device invokes from
// its own realtime audio thread whenever it needs more frames.
type PlaybackStream interface {
	ChannelCount() int
	FramesPerBurst() int
	SampleRate() int
	RequestStart() error
	RequestStop() error

	// SetPullCallback installs the function the device's audio callback
	// invokes to fill an output buffer. pull must not block or
	// allocate; it always fills exactly numFrames frames (interleaved)
	// and returns numFrames.
	SetPullCallback(pull func(out []float32, numFrames int) int)
}
