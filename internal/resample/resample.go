// Package resample implements the pipeline's two fixed-ratio mono
// converters: Down3 (48k -> 16k, three-tap mean) and Up3 (16k -> 48k,
// linear interpolation). Both operate on preallocated caller-provided
// output slices in the hot path to honor the pipeline's no-allocation
// scratch-buffer discipline.
package resample

// Down3 downsamples by a factor of 3 using a simple three-tap mean.
// It is stateless: output g = mean(in[3g], in[3g+1], in[3g+2]).
type Down3 struct{}

// NewDown3 returns a ready-to-use Down3 converter.
func NewDown3() *Down3 { return &Down3{} }

// Reset is a no-op for Down3, which carries no continuity state.
func (d *Down3) Reset() {}

// ProcessInto downsamples in (length must be a multiple of 3) into dst,
// writing at most len(dst) output samples. Returns the number of output
// samples written.
func (d *Down3) ProcessInto(dst, in []float32) int {
	outMax := len(in) / 3
	if outMax > len(dst) {
		outMax = len(dst)
	}
	for g := 0; g < outMax; g++ {
		i := g * 3
		dst[g] = (in[i] + in[i+1] + in[i+2]) / 3
	}
	return outMax
}

// Process downsamples in and returns a freshly allocated output slice.
// Intended for tests and one-shot callers; the pipeline hot path uses
// ProcessInto against a reused scratch buffer.
func (d *Down3) Process(in []float32) []float32 {
	out := make([]float32, len(in)/3)
	d.ProcessInto(out, in)
	return out
}

// Up3 upsamples by a factor of 3 using linear interpolation. For each
// input sample x_i it emits three output samples: x_i, x_i + d, x_i +
// 2d, where d = (x_{i+1} - x_i) / 3 (or 0 at the tail boundary).
//
// prevSample/hasPrev retain the last sample seen across calls but are
// deliberately not consumed as a leading interpolation tap — the first
// sample of a new block is simply the new input's first sample, not an
// interpolation from the previous block's tail. This introduces a tiny,
// inaudible discontinuity at 96-sample hop boundaries at 48kHz; fixing
// it (prepending prevSample as an extra tap) is the documented
// alternative design, not implemented here. See DESIGN.md.
type Up3 struct {
	prevSample float32
	hasPrev    bool
}

// NewUp3 returns a ready-to-use Up3 converter.
func NewUp3() *Up3 { return &Up3{} }

// Reset clears continuity state.
func (u *Up3) Reset() {
	u.prevSample = 0
	u.hasPrev = false
}

// ProcessInto upsamples in into dst, writing exactly 3*len(in) samples,
// clamped to len(dst). Returns the number of output samples written.
func (u *Up3) ProcessInto(dst, in []float32) int {
	outMax := len(in) * 3
	if outMax > len(dst) {
		outMax = len(dst)
	}
	for i := 0; i < len(in); i++ {
		base := i * 3
		if base >= outMax {
			break
		}
		x := in[i]
		var next float32
		if i+1 < len(in) {
			next = in[i+1]
		} else {
			next = x
		}
		d := (next - x) / 3

		for k := 0; k < 3 && base+k < outMax; k++ {
			dst[base+k] = x + float32(k)*d
		}
	}
	if len(in) > 0 {
		u.prevSample = in[len(in)-1]
		u.hasPrev = true
	}
	return outMax
}

// Process upsamples in and returns a freshly allocated output slice.
func (u *Up3) Process(in []float32) []float32 {
	out := make([]float32, len(in)*3)
	u.ProcessInto(out, in)
	return out
}
