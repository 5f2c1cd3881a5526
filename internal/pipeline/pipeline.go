// Package pipeline implements the end-to-end dataflow orchestrator: a
// capture/processing goroutine bridging a blocking capture device to a
// callback-driven playback device through lock-free SPSC rings, with
// a 3:1 downsample -> mono mix -> STFT -> 1:3 upsample -> stereo
// duplicate chain in between.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agalue/rtstft/internal/device"
	"github.com/agalue/rtstft/internal/diag"
	"github.com/agalue/rtstft/internal/resample"
	"github.com/agalue/rtstft/internal/ring"
	"github.com/agalue/rtstft/internal/stft"
)

const (
	diagInterval = time.Second

	defaultRingSeconds     = 0.2
	defaultMonoRingSeconds = 0.2
)

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithCaptureTimeout overrides the default 10ms blocking capture read
// timeout.
func WithCaptureTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.captureTimeout = d }
}

// WithPrefillBursts overrides the default number of fpb-sized silent
// bursts used to prefill the output ring at Start.
func WithPrefillBursts(n int) Option {
	return func(o *Orchestrator) { o.prefillBursts = n }
}

// WithWarmup overrides the default 300ms warm-up window during which
// playback underflow is not counted.
func WithWarmup(d time.Duration) Option {
	return func(o *Orchestrator) { o.warmup = d }
}

// WithLogger overrides the default diagnostic logger.
func WithLogger(lg *diag.Logger) Option {
	return func(o *Orchestrator) { o.logger = lg }
}

// WithRingSeconds overrides the default input/output ring size,
// expressed as a fraction of a second of buffering at the device
// sample rate.
func WithRingSeconds(s float64) Option {
	return func(o *Orchestrator) { o.ringSeconds = s }
}

// WithMonoRingSeconds overrides the default mono 16kHz ring size,
// expressed as a fraction of a second of buffering at the mono ring's
// own rate (sampleRate/3), so the ring holds s*sampleRate/3 frames.
func WithMonoRingSeconds(s float64) Option {
	return func(o *Orchestrator) { o.monoRingSeconds = s }
}

// Orchestrator owns the end-to-end dataflow, the processing goroutine,
// and all scratch buffers. It is created once per capture/playback
// device pair; Start/Stop may be called repeatedly but not concurrently
// with themselves.
type Orchestrator struct {
	capture  device.CaptureStream
	playback device.PlaybackStream

	captureTimeout  time.Duration
	prefillBursts   int
	warmup          time.Duration
	ringSeconds     float64
	monoRingSeconds float64
	logger          *diag.Logger

	counters diag.Counters

	channels int
	fpb      int
	sr       int

	inputProd *ring.Producer
	inputCons *ring.Consumer

	outputProd *ring.Producer
	outputCons *ring.Consumer

	monoProd *ring.Producer
	monoCons *ring.Consumer

	down3 []*resample.Down3 // one per channel
	up3   *resample.Up3
	stft  *stft.Engine

	// Scratch buffers, sized once at Start and never resized; see
	// spec §4.4's no-allocation discipline.
	tmpIn    []float32   // raw capture read, fpb*channels
	tmpXfer  []float32   // dequeued from input ring for processing, fpb*channels
	chanBuf  [][]float32 // per-channel deinterleaved 48k, fpb each
	down16   [][]float32 // per-channel downsampled 16k, fpb/3 each
	mono16   []float32   // mixed mono 16k, fpb/3
	hopIn16  [stft.H]float32
	hopOut16 [stft.H]float32
	up48Mono [3 * stft.H]float32
	tmpOut   []float32 // interleaved stereo output chunk, 3*H*channels

	startedAt time.Time
	running   atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	lastDiag   time.Time
	prevHops   int64
	prevPushed int64
	prevPopped int64
}

// New constructs an Orchestrator bound to the given capture and
// playback streams. Device parameters (channel count, frames-per-
// burst, sample rate) are read from the playback stream at Start, per
// spec §4.4.
func New(capture device.CaptureStream, playback device.PlaybackStream, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		capture:         capture,
		playback:        playback,
		captureTimeout:  10 * time.Millisecond,
		prefillBursts:   20,
		warmup:          300 * time.Millisecond,
		ringSeconds:     defaultRingSeconds,
		monoRingSeconds: defaultMonoRingSeconds,
		logger:          diag.NewLogger(nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start initializes rings and scratch buffers, prefills the output
// ring, requests both streams to start, and spawns the processing
// goroutine. Returns an error without spawning anything on
// configuration or stream-start failure.
func (o *Orchestrator) Start(ctx context.Context) error {
	channels := o.playback.ChannelCount()
	fpb := o.playback.FramesPerBurst()
	sr := o.playback.SampleRate()

	if channels <= 0 {
		return fmt.Errorf("pipeline: invalid channel count %d", channels)
	}
	if fpb <= 0 || fpb%3 != 0 {
		return fmt.Errorf("pipeline: frames-per-burst must be a positive multiple of 3, got %d", fpb)
	}
	if sr <= 0 {
		return fmt.Errorf("pipeline: invalid sample rate %d", sr)
	}

	o.channels = channels
	o.fpb = fpb
	o.sr = sr

	ringCapFrames := int(float64(sr) * o.ringSeconds)
	if ringCapFrames < fpb {
		ringCapFrames = fpb
	}
	inputProd, inputCons, err := ring.New(ringCapFrames, channels)
	if err != nil {
		return fmt.Errorf("pipeline: failed to allocate input ring: %w", err)
	}
	outputProd, outputCons, err := ring.New(ringCapFrames, channels)
	if err != nil {
		return fmt.Errorf("pipeline: failed to allocate output ring: %w", err)
	}

	monoRingCapFrames := int(o.monoRingSeconds * float64(sr) / 3)
	if monoRingCapFrames < stft.H {
		monoRingCapFrames = stft.H
	}
	monoProd, monoCons, err := ring.New(monoRingCapFrames, 1)
	if err != nil {
		return fmt.Errorf("pipeline: failed to allocate mono ring: %w", err)
	}

	o.inputProd, o.inputCons = inputProd, inputCons
	o.outputProd, o.outputCons = outputProd, outputCons
	o.monoProd, o.monoCons = monoProd, monoCons

	o.down3 = make([]*resample.Down3, channels)
	for i := range o.down3 {
		o.down3[i] = resample.NewDown3()
	}
	o.up3 = resample.NewUp3()
	o.stft = stft.NewEngine()

	o.tmpIn = make([]float32, fpb*channels)
	o.tmpXfer = make([]float32, fpb*channels)
	o.chanBuf = make([][]float32, channels)
	o.down16 = make([][]float32, channels)
	for c := 0; c < channels; c++ {
		o.chanBuf[c] = make([]float32, fpb)
		o.down16[c] = make([]float32, fpb/3)
	}
	o.mono16 = make([]float32, fpb/3)
	o.tmpOut = make([]float32, 3*stft.H*channels)

	// Prefill the output ring with silence to avoid first-callback
	// underflow.
	prefillFrames := o.prefillBursts * fpb
	silence := make([]float32, prefillFrames*channels)
	outputProd.Write(silence, prefillFrames)

	o.startedAt = time.Now()
	o.lastDiag = o.startedAt

	if err := o.capture.RequestStart(); err != nil {
		return fmt.Errorf("pipeline: capture stream failed to start: %w", err)
	}
	if err := o.playback.RequestStart(); err != nil {
		if rbErr := o.capture.RequestStop(); rbErr != nil {
			o.logger.Warnf("pipeline: rollback capture stop failed: %v", rbErr)
		}
		return fmt.Errorf("pipeline: playback stream failed to start: %w", err)
	}

	o.playback.SetPullCallback(o.PullTo)

	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.running.Store(true)

	o.wg.Add(1)
	go o.processLoop(loopCtx)

	return nil
}

// Stop halts the processing goroutine and requests both streams to
// stop. Best-effort: stream stop failures are logged, not returned.
func (o *Orchestrator) Stop() {
	if !o.running.CompareAndSwap(true, false) {
		return
	}
	o.cancel()
	o.wg.Wait()

	if err := o.capture.RequestStop(); err != nil {
		o.logger.Warnf("pipeline: capture stop failed: %v", err)
	}
	if err := o.playback.RequestStop(); err != nil {
		o.logger.Warnf("pipeline: playback stop failed: %v", err)
	}
}

// PullTo is invoked from the playback device's audio callback to fill
// an output buffer. It never blocks or allocates. If the output ring
// is short, the remainder is zero-filled and, outside the warm-up
// window, the deficit is added to the underflow counter. Always
// returns numFrames.
func (o *Orchestrator) PullTo(out []float32, numFrames int) int {
	n := o.outputCons.Read(out, numFrames)
	if n < numFrames {
		for i := n * o.channels; i < numFrames*o.channels && i < len(out); i++ {
			out[i] = 0
		}
		if time.Since(o.startedAt) >= o.warmup {
			o.counters.Underflows.Add(uint64(numFrames - n))
		}
	}
	return numFrames
}

// processLoop is the capture/processing goroutine. Each iteration
// performs one blocking capture read (with timeout), pushes captured
// frames into the input ring, then drains whole fpb-sized bursts
// through the downsample/mix/STFT/upsample/interleave chain into the
// output ring.
func (o *Orchestrator) processLoop(ctx context.Context) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := o.capture.Read(o.tmpIn, o.fpb, o.captureTimeout)
		if err != nil || n == 0 {
			continue
		}

		written := o.inputProd.Write(o.tmpIn, n)
		if written < n {
			o.counters.Overflows.Add(uint64(n - written))
		}

		for {
			availRead := o.inputCons.AvailableToRead()
			availWrite := o.outputProd.AvailableToWrite()
			if availRead < o.fpb || availWrite < o.fpb {
				break
			}

			o.inputCons.Read(o.tmpXfer, o.fpb)
			o.deinterleave()
			o.downsampleAndMix()

			monoWritten := o.monoProd.Write(o.mono16, len(o.mono16))
			if monoWritten < len(o.mono16) {
				o.counters.Overflows.Add(uint64(len(o.mono16) - monoWritten))
			}

			for o.monoCons.AvailableToRead() >= stft.H {
				o.monoCons.Read(o.hopIn16[:], stft.H)
				o.stft.PushTimeDomain(o.hopIn16[:])
				produced := o.stft.PopTimeDomain(o.hopOut16[:])

				upN := o.up3.ProcessInto(o.up48Mono[:], o.hopOut16[:produced])
				o.interleaveStereo(upN)

				outWritten := o.outputProd.Write(o.tmpOut[:upN*o.channels], upN)
				if outWritten < upN {
					o.counters.Overflows.Add(uint64(upN - outWritten))
				}
			}
		}

		o.maybeLogDiagnostics()
	}
}

// deinterleave splits tmpXfer (fpb frames, channels per frame) into
// per-channel buffers.
func (o *Orchestrator) deinterleave() {
	for i := 0; i < o.fpb; i++ {
		base := i * o.channels
		for c := 0; c < o.channels; c++ {
			o.chanBuf[c][i] = o.tmpXfer[base+c]
		}
	}
}

// downsampleAndMix downsamples each channel by 3 and mixes the first
// two channels to mono. Channels beyond the first two (should there be
// any) are downsampled but not mixed in, matching spec §4.4's
// L/R-only mix-to-mono step.
func (o *Orchestrator) downsampleAndMix() {
	for c := 0; c < o.channels; c++ {
		o.down3[c].ProcessInto(o.down16[c], o.chanBuf[c])
	}
	if o.channels >= 2 {
		l, r := o.down16[0], o.down16[1]
		for i := range o.mono16 {
			o.mono16[i] = 0.5 * (l[i] + r[i])
		}
	} else {
		copy(o.mono16, o.down16[0])
	}
}

// interleaveStereo duplicates the upsampled mono signal to every
// channel and interleaves it into tmpOut.
func (o *Orchestrator) interleaveStereo(n int) {
	for i := 0; i < n; i++ {
		v := o.up48Mono[i]
		base := i * o.channels
		for c := 0; c < o.channels; c++ {
			o.tmpOut[base+c] = v
		}
	}
}

func (o *Orchestrator) maybeLogDiagnostics() {
	now := time.Now()
	if now.Sub(o.lastDiag) < diagInterval {
		return
	}
	hops := o.stft.HopsProcessed()
	pushed := o.stft.FramesPushed()
	popped := o.stft.FramesPopped()

	o.logger.LogSnapshot(diag.Snapshot{
		InputRingFill:  o.inputCons.AvailableToRead(),
		OutputRingFill: o.outputCons.AvailableToRead(),
		Overflows:      o.counters.Overflows.Load(),
		Underflows:     o.counters.Underflows.Load(),
		HopsTotal:      hops,
		HopsDelta:      hops - o.prevHops,
		PushedTotal:    pushed,
		PushedDelta:    pushed - o.prevPushed,
		PoppedTotal:    popped,
		PoppedDelta:    popped - o.prevPopped,
	})

	o.prevHops, o.prevPushed, o.prevPopped = hops, pushed, popped
	o.lastDiag = now
}
