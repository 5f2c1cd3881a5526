package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/agalue/rtstft/internal/ring"
)

// periodMs converts a frames-per-burst hint to milliseconds the way
// malgo's DeviceConfig expects, with a floor of 1ms.
func periodMs(framesPerBurst, sampleRate int) uint32 {
	ms := framesPerBurst * 1000 / sampleRate
	if ms < 1 {
		ms = 1
	}
	return uint32(ms)
}

// captureDeviceRingFrames sizes the internal handoff ring between the
// malgo audio callback and the blocking Read side — enough headroom
// that a few missed Read polls never force the callback to drop data.
const captureDeviceRingFrames = 1 << 16

// MalgoCapture is a CaptureStream backed by a malgo input device. The
// malgo audio callback (realtime, must not block) pushes into a
// lock-free ring; Read drains it, polling with a short sleep up to the
// requested timeout.
type MalgoCapture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	channels   int
	sampleRate int
	fpb        int

	prod *ring.Producer
	cons *ring.Consumer
}

// NewMalgoCapture opens a malgo capture device configured for the given
// sample rate, channel count, and frames-per-burst hint.
func NewMalgoCapture(sampleRate, channels, framesPerBurst int) (*MalgoCapture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: failed to initialize malgo context: %w", err)
	}

	prod, cons, err := ring.New(captureDeviceRingFrames, channels)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("device: failed to allocate capture ring: %w", err)
	}

	c := &MalgoCapture{
		ctx:        ctx,
		channels:   channels,
		sampleRate: sampleRate,
		fpb:        framesPerBurst,
		prod:       prod,
		cons:       cons,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = periodMs(framesPerBurst, sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: c.onRecvFrames,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("device: failed to initialize capture device: %w", err)
	}
	c.device = device

	return c, nil
}

func (c *MalgoCapture) ChannelCount() int   { return c.channels }
func (c *MalgoCapture) FramesPerBurst() int { return c.fpb }
func (c *MalgoCapture) SampleRate() int     { return c.sampleRate }

func (c *MalgoCapture) RequestStart() error {
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("device: capture start failed: %w", err)
	}
	return nil
}

func (c *MalgoCapture) RequestStop() error {
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("device: capture stop failed: %w", err)
	}
	return nil
}

// onRecvFrames is the malgo audio callback: realtime, must not block.
func (c *MalgoCapture) onRecvFrames(_, pInputSamples []byte, framecount uint32) {
	n := int(framecount) * c.channels
	if n == 0 || len(pInputSamples) < n*4 {
		return
	}
	var scratch [4096]float32
	buf := scratch[:0]
	if n <= len(scratch) {
		buf = scratch[:n]
	} else {
		buf = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(pInputSamples[i*4:])
		buf[i] = math.Float32frombits(bits)
	}
	c.prod.Write(buf, int(framecount))
}

// Read blocks, polling the handoff ring, until frames are available,
// the timeout elapses, or a read yields zero frames after the deadline.
func (c *MalgoCapture) Read(dst []float32, frames int, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	for {
		if n := c.cons.Read(dst, frames); n > 0 {
			return n, nil
		}
		if time.Now().After(deadline) {
			return 0, nil
		}
		time.Sleep(200 * time.Microsecond)
	}
}

// Close releases all capture resources.
func (c *MalgoCapture) Close() {
	if c.device != nil {
		c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// MalgoPlayback is a PlaybackStream backed by a malgo output device. The
// orchestrator's pull callback is invoked directly from malgo's realtime
// audio callback; it must not block or allocate.
type MalgoPlayback struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	channels   int
	sampleRate int
	fpb        int

	pull  func(out []float32, numFrames int) int
	bytes [4096 * 8]float32 // scratch for the common case; larger callbacks allocate a per-call buffer
}

// NewMalgoPlayback opens a malgo playback device configured for the
// given sample rate, channel count, and frames-per-burst hint.
func NewMalgoPlayback(sampleRate, channels, framesPerBurst int) (*MalgoPlayback, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("device: failed to initialize malgo context: %w", err)
	}

	p := &MalgoPlayback{
		ctx:        ctx,
		channels:   channels,
		sampleRate: sampleRate,
		fpb:        framesPerBurst,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = periodMs(framesPerBurst, sampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: p.onSendFrames,
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("device: failed to initialize playback device: %w", err)
	}
	p.device = device

	return p, nil
}

func (p *MalgoPlayback) ChannelCount() int   { return p.channels }
func (p *MalgoPlayback) FramesPerBurst() int { return p.fpb }
func (p *MalgoPlayback) SampleRate() int     { return p.sampleRate }

func (p *MalgoPlayback) RequestStart() error {
	if err := p.device.Start(); err != nil {
		return fmt.Errorf("device: playback start failed: %w", err)
	}
	return nil
}

func (p *MalgoPlayback) RequestStop() error {
	if err := p.device.Stop(); err != nil {
		return fmt.Errorf("device: playback stop failed: %w", err)
	}
	return nil
}

// SetPullCallback installs the orchestrator's pull function.
func (p *MalgoPlayback) SetPullCallback(pull func(out []float32, numFrames int) int) {
	p.pull = pull
}

// onSendFrames is the malgo audio callback: realtime, must not block.
func (p *MalgoPlayback) onSendFrames(pOutputSample, _ []byte, framecount uint32) {
	if p.pull == nil {
		return
	}
	n := int(framecount) * p.channels
	var buf []float32
	if n <= len(p.bytes) {
		buf = p.bytes[:n]
	} else {
		buf = make([]float32, n)
	}
	p.pull(buf, int(framecount))
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(pOutputSample[i*4:], math.Float32bits(buf[i]))
	}
}

// Close releases all playback resources.
func (p *MalgoPlayback) Close() {
	if p.device != nil {
		p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
