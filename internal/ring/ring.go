// Package ring implements a lock-free single-producer/single-consumer
// ring buffer over interleaved multi-channel float32 frames.
//
// A Producer and a Consumer share one preallocated backing array created
// once at New and never reallocated. Exactly one goroutine may call the
// Producer's methods and exactly one goroutine may call the Consumer's
// methods; either side may observe the other's counter for flow control.
// Behavior under multiple producers or consumers is undefined.
package ring

import (
	"fmt"
	"sync/atomic"
)

// nextPow2 rounds n up to the next power of two, with a floor of 2.
func nextPow2(n int) int {
	if n < 2 {
		return 2
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// shared is the backing storage and counters jointly owned by a
// Producer/Consumer pair.
type shared struct {
	buf            []float32 // capacityFrames * channels, preallocated
	capacityFrames int
	mask           uint64
	channels       int

	writePos atomic.Uint64 // mutated only by the Producer
	readPos  atomic.Uint64 // mutated only by the Consumer
}

// Producer is the write side of a ring buffer.
type Producer struct {
	s *shared
}

// Consumer is the read side of a ring buffer.
type Consumer struct {
	s *shared
}

// New allocates a ring buffer sized to the next power of two ≥
// capacityFrames (minimum 2) and returns a split Producer/Consumer pair
// over the shared backing storage. Returns an error for non-positive
// arguments.
func New(capacityFrames, channels int) (*Producer, *Consumer, error) {
	if capacityFrames <= 0 {
		return nil, nil, fmt.Errorf("ring: capacityFrames must be positive, got %d", capacityFrames)
	}
	if channels <= 0 {
		return nil, nil, fmt.Errorf("ring: channels must be positive, got %d", channels)
	}

	cap := nextPow2(capacityFrames)
	s := &shared{
		buf:            make([]float32, cap*channels),
		capacityFrames: cap,
		mask:           uint64(cap - 1),
		channels:       channels,
	}
	return &Producer{s: s}, &Consumer{s: s}, nil
}

// CapacityFrames returns the (power-of-two) capacity in frames.
func (p *Producer) CapacityFrames() int { return p.s.capacityFrames }

// CapacityFrames returns the (power-of-two) capacity in frames.
func (c *Consumer) CapacityFrames() int { return c.s.capacityFrames }

// Channels returns the number of interleaved channels per frame.
func (p *Producer) Channels() int { return p.s.channels }

// Channels returns the number of interleaved channels per frame.
func (c *Consumer) Channels() int { return c.s.channels }

// availableToRead returns write_pos - read_pos, in frames.
func (s *shared) availableToRead() int {
	w := s.writePos.Load()
	r := s.readPos.Load()
	return int(w - r)
}

// AvailableToWrite returns the number of frames that can be written
// without overflowing the ring.
func (p *Producer) AvailableToWrite() int {
	return p.s.capacityFrames - p.s.availableToRead()
}

// AvailableToRead returns the number of frames ready to be read.
func (c *Consumer) AvailableToRead() int {
	return c.s.availableToRead()
}

// Write copies up to len(src)/channels frames from src (interleaved) into
// the ring, clamped to AvailableToWrite. Returns the number of frames
// actually written.
func (p *Producer) Write(src []float32, frames int) int {
	s := p.s
	avail := p.AvailableToWrite()
	if frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return 0
	}
	if len(src) < frames*s.channels {
		frames = len(src) / s.channels
	}

	w := s.writePos.Load()
	start := w & s.mask
	first := uint64(s.capacityFrames) - start
	if first > uint64(frames) {
		first = uint64(frames)
	}
	second := uint64(frames) - first

	copy(s.buf[start*uint64(s.channels):], src[:first*uint64(s.channels)])
	if second > 0 {
		copy(s.buf[:second*uint64(s.channels)], src[first*uint64(s.channels):frames*s.channels])
	}

	s.writePos.Store(w + uint64(frames))
	return frames
}

// Read copies up to frames frames (interleaved) from the ring into dst,
// clamped to AvailableToRead. Returns the number of frames actually read.
func (c *Consumer) Read(dst []float32, frames int) int {
	s := c.s
	avail := s.availableToRead()
	if frames > avail {
		frames = avail
	}
	if frames <= 0 {
		return 0
	}
	if len(dst) < frames*s.channels {
		frames = len(dst) / s.channels
	}

	r := s.readPos.Load()
	start := r & s.mask
	first := uint64(s.capacityFrames) - start
	if first > uint64(frames) {
		first = uint64(frames)
	}
	second := uint64(frames) - first

	copy(dst[:first*uint64(s.channels)], s.buf[start*uint64(s.channels):])
	if second > 0 {
		copy(dst[first*uint64(s.channels):frames*s.channels], s.buf[:second*uint64(s.channels)])
	}

	s.readPos.Store(r + uint64(frames))
	return frames
}
