package pipeline

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agalue/rtstft/internal/device"
)

const (
	testSampleRate = 48000
	testChannels   = 2
	testFPB        = 96
)

func makeSilentSource(frames int) []float32 {
	return make([]float32, frames*testChannels)
}

func makeSineSource(frames int, freq float64) []float32 {
	src := make([]float32, frames*testChannels)
	for i := 0; i < frames; i++ {
		v := float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
		src[i*testChannels] = v
		src[i*testChannels+1] = v
	}
	return src
}

func Test_Pipeline_SilenceInProducesSilenceOut(t *testing.T) {
	cap := device.NewFakeCapture(testSampleRate, testChannels, testFPB, makeSilentSource(20*testFPB))
	cap.SilenceAfterEOF = true
	play := device.NewFakePlayback(testSampleRate, testChannels, testFPB)

	orch := New(cap, play, WithPrefillBursts(2), WithWarmup(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))
	time.Sleep(30 * time.Millisecond)

	out := play.Pull(testFPB)
	orch.Stop()

	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func Test_Pipeline_SineInputPreservesAmplitude(t *testing.T) {
	const sineFreq = 200.0     // low enough that Down3/Up3 attenuation is negligible
	const sourceFrames = 12000 // stays under the ~16384-frame output ring capacity

	cap := device.NewFakeCapture(testSampleRate, testChannels, testFPB, makeSineSource(sourceFrames, sineFreq))
	cap.SilenceAfterEOF = true
	play := device.NewFakePlayback(testSampleRate, testChannels, testFPB)

	orch := New(cap, play, WithPrefillBursts(0), WithWarmup(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))
	time.Sleep(150 * time.Millisecond) // ample time to process 12000 frames of non-blocking capture
	orch.Stop()

	out := make([]float32, sourceFrames*testChannels)
	n := orch.PullTo(out, sourceFrames)
	require.Equal(t, sourceFrames, n)

	// Skip the pipeline's resample+STFT group delay (roughly 416 16kHz
	// samples, i.e. 1248 48kHz samples) at the head, and the still-
	// in-flight tail, and check amplitude over the untouched middle.
	const skipHead = 2000
	const skipTail = 500
	require.Greater(t, sourceFrames-skipHead-skipTail, 0)

	var sumSq float64
	var count int
	for i := skipHead; i < sourceFrames-skipTail; i++ {
		v := float64(out[i*testChannels])
		require.False(t, math.IsNaN(v))
		require.False(t, math.IsInf(v, 0))
		sumSq += v * v
		count++
	}

	rms := math.Sqrt(sumSq / float64(count))
	amplitude := rms * math.Sqrt2

	assert.InDelta(t, 0.5, amplitude, 0.025, "sine amplitude must survive the downsample/STFT/upsample round trip within ±5%")
}

func Test_Pipeline_PullToAlwaysReturnsRequestedFrameCount(t *testing.T) {
	cap := device.NewFakeCapture(testSampleRate, testChannels, testFPB, makeSilentSource(10*testFPB))
	play := device.NewFakePlayback(testSampleRate, testChannels, testFPB)

	orch := New(cap, play, WithPrefillBursts(1), WithWarmup(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))
	orch.Stop()

	out := make([]float32, 3*testFPB*testChannels)
	n := orch.PullTo(out, 3*testFPB)
	assert.Equal(t, 3*testFPB, n)
}

func Test_Pipeline_OutputRingOverflowIsCounted(t *testing.T) {
	// A long source with nobody draining playback: the output ring
	// must eventually saturate and overflow get counted.
	cap := device.NewFakeCapture(testSampleRate, testChannels, testFPB, makeSineSource(80000, 220))
	play := device.NewFakePlayback(testSampleRate, testChannels, testFPB)

	orch := New(cap, play, WithPrefillBursts(1), WithWarmup(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))
	time.Sleep(150 * time.Millisecond)
	orch.Stop()

	assert.Greater(t, orch.counters.Overflows.Load(), uint64(0))
}

func Test_Pipeline_StopReturnsQuickly(t *testing.T) {
	cap := device.NewFakeCapture(testSampleRate, testChannels, testFPB, makeSilentSource(100*testFPB))
	play := device.NewFakePlayback(testSampleRate, testChannels, testFPB)

	orch := New(cap, play, WithPrefillBursts(2), WithWarmup(0))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))
	time.Sleep(5 * time.Millisecond)

	start := time.Now()
	orch.Stop()
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 100*time.Millisecond)
}

func Test_Pipeline_UnderflowNotCountedDuringWarmup(t *testing.T) {
	cap := device.NewFakeCapture(testSampleRate, testChannels, testFPB, nil)
	play := device.NewFakePlayback(testSampleRate, testChannels, testFPB)

	orch := New(cap, play,
		WithPrefillBursts(1),
		WithWarmup(40*time.Millisecond),
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, orch.Start(ctx))

	// Immediately request more than the prefilled ring holds: within
	// the warm-up window this must not be counted as underflow.
	out := make([]float32, 2*testFPB*testChannels)
	orch.PullTo(out, 2*testFPB)
	assert.Equal(t, uint64(0), orch.counters.Underflows.Load())

	time.Sleep(60 * time.Millisecond)

	orch.PullTo(out, 2*testFPB)
	orch.Stop()

	assert.Greater(t, orch.counters.Underflows.Load(), uint64(0))
}
