// Package stft implements a streaming overlap-add Short-Time Fourier
// Transform engine with fixed parameters: FFT size N=512, hop H=96,
// analysis window length L=480 (zero-padded by 32 leading zeros into
// the 512 slot), assuming a 16kHz mono sample rate.
//
// The spectral-processing step between forward and inverse transform is
// an intentional identity (Y=X) — a placeholder extension point for
// future spectral effects. Everything else (windowing, OLA
// reconstruction, normalization) is load-bearing and must not change
// without updating the 1e-3 RMS reconstruction tolerance tests depend
// on.
package stft

import (
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// N is the FFT size.
	N = 512
	// H is the hop size in samples.
	H = 96
	// L is the analysis window support length (zero-padded into N).
	L = 480
	// leadingZeros centers the L-sample window within the N-sample FFT
	// grid by pushing analysis content to the tail.
	leadingZeros = N - L // 32
	// histLen is the rolling history length feeding each new analysis
	// frame (L - H == 384).
	histLen = L - H

	// ringCap is the OLA/normalization ring capacity in samples; a power
	// of two >= 8*H.
	ringCap  = 32768
	ringMask = ringCap - 1

	// epsilon gates OLA normalization: positions with accumulated
	// squared-window energy at or below this are emitted as zero.
	epsilon = 1e-8
)

// Engine is a streaming overlap-add STFT processor. It is not safe for
// concurrent use by multiple goroutines, but push_time_domain and
// pop_time_domain contracts are correct when invoked from a single
// goroutine that both produces and consumes it, which is how the
// pipeline orchestrator uses it.
type Engine struct {
	window [N]float32 // Hann, analysis and synthesis

	hopBuf  [H]float32
	hopFill int

	hist384 [histLen]float32

	ola  [ringCap]float32
	norm [ringCap]float32

	olaWrite int
	olaRead  int
	avail    int

	fft        *fourier.FFT
	frame      [N]float64 // scratch: zero-pad + history + hop, windowed
	coeff      []complex128
	timeDomain [N]float64
	block      [N]float32 // scratch: windowed inverse-FFT output

	framesPushed atomic.Int64
	framesPopped atomic.Int64
	hopsDone     atomic.Int64
}

// NewEngine constructs a ready-to-use STFT engine with a non-periodic
// (symmetric) Hann window and a reusable FFT plan.
func NewEngine() *Engine {
	e := &Engine{
		fft: fourier.NewFFT(N),
	}
	for n := 0; n < N; n++ {
		e.window[n] = float32(0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(N-1))))
	}
	e.coeff = make([]complex128, N/2+1)
	return e
}

// PushTimeDomain appends mono 16kHz samples to the engine, triggering
// one process_one_hop call each time the internal hop buffer fills to H
// samples. Does not allocate.
func (e *Engine) PushTimeDomain(samples []float32) {
	for _, s := range samples {
		e.hopBuf[e.hopFill] = s
		e.hopFill++
		e.framesPushed.Add(1)
		if e.hopFill == H {
			e.processOneHop()
			e.hopFill = 0
		}
	}
}

// PopTimeDomain copies up to min(len(out), avail) normalized output
// samples from the OLA ring into out, zeroing the consumed ring cells.
// Returns the number of samples written.
func (e *Engine) PopTimeDomain(out []float32) int {
	n := len(out)
	if n > e.avail {
		n = e.avail
	}
	for i := 0; i < n; i++ {
		idx := (e.olaRead + i) & ringMask
		if e.norm[idx] > epsilon {
			out[i] = e.ola[idx] / e.norm[idx]
		} else {
			out[i] = 0
		}
		e.ola[idx] = 0
		e.norm[idx] = 0
	}
	e.olaRead = (e.olaRead + n) & ringMask
	e.avail -= n
	e.framesPopped.Add(int64(n))
	return n
}

// FramesPushed returns the monotonic count of samples pushed in.
func (e *Engine) FramesPushed() int64 { return e.framesPushed.Load() }

// FramesPopped returns the monotonic count of samples popped out.
func (e *Engine) FramesPopped() int64 { return e.framesPopped.Load() }

// HopsProcessed returns the monotonic count of completed hops.
func (e *Engine) HopsProcessed() int64 { return e.hopsDone.Load() }

// processOneHop runs one full analysis/synthesis cycle on the current
// hop buffer plus rolling history, and advances all engine state.
func (e *Engine) processOneHop() {
	// 1. Assemble the 512-sample analysis frame: leading zeros, then
	// history, then the current hop.
	for i := 0; i < leadingZeros; i++ {
		e.frame[i] = 0
	}
	for i := 0; i < histLen; i++ {
		e.frame[leadingZeros+i] = float64(e.hist384[i])
	}
	for i := 0; i < H; i++ {
		e.frame[leadingZeros+histLen+i] = float64(e.hopBuf[i])
	}

	// 2. Window the analysis frame.
	for i := 0; i < N; i++ {
		e.frame[i] *= float64(e.window[i])
	}

	// 3+4. Forward real FFT; spectral processing is the identity, so the
	// coefficients are fed straight back into the inverse transform.
	e.coeff = e.fft.Coefficients(e.coeff, e.frame[:])

	// 5. Inverse FFT. gonum's Sequence is unnormalized: a Coefficients/
	// Sequence round trip multiplies the input by N, so divide it back
	// out here to get an exact forward/inverse round trip.
	ts := e.fft.Sequence(e.timeDomain[:], e.coeff)

	// 6. Apply the synthesis window.
	for i := 0; i < N; i++ {
		e.block[i] = float32(ts[i]/float64(N)) * e.window[i]
	}

	// 7. Overlap-add into the OLA and normalization rings, then advance
	// the write cursor by one hop.
	for i := 0; i < N; i++ {
		idx := (e.olaWrite + i) & ringMask
		e.ola[idx] += e.block[i]
		e.norm[idx] += e.window[i] * e.window[i]
	}
	e.olaWrite = (e.olaWrite + H) & ringMask
	e.avail += H

	// 8. Roll the history: drop the first H samples, append the hop at
	// the tail.
	copy(e.hist384[:histLen-H], e.hist384[H:])
	copy(e.hist384[histLen-H:], e.hopBuf[:])

	e.hopsDone.Add(1)
}
