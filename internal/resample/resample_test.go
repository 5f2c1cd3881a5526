package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Down3_ThreeTapMean(t *testing.T) {
	d := NewDown3()
	in := []float32{3, 6, 9, 0, 0, 0}
	out := d.Process(in)
	assert.Equal(t, []float32{6, 0}, out)
}

func Test_Down3_OutputLengthIsOneThird(t *testing.T) {
	d := NewDown3()
	in := make([]float32, 288)
	out := d.Process(in)
	assert.Len(t, out, 96)
}

func Test_Down3_ProcessInto_ClampsToDst(t *testing.T) {
	d := NewDown3()
	in := []float32{1, 1, 1, 2, 2, 2, 3, 3, 3}
	dst := make([]float32, 2)
	n := d.ProcessInto(dst, in)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{1, 2}, dst)
}

func Test_Up3_OutputLengthIsThreeTimesInput(t *testing.T) {
	u := NewUp3()
	in := make([]float32, 96)
	out := u.Process(in)
	assert.Len(t, out, 288)
}

func Test_Up3_LinearInterpolation(t *testing.T) {
	u := NewUp3()
	in := []float32{0, 3, 6}
	out := u.Process(in)
	// Sample 0 -> 3: d=1, emits 0,1,2. Sample 3 -> 6: d=1, emits 3,4,5.
	// Final sample has no successor, so d=0, emits 6,6,6.
	expected := []float32{0, 1, 2, 3, 4, 5, 6, 6, 6}
	assert.Equal(t, expected, out)
}

func Test_Up3_TailStepIsZeroWithoutASuccessor(t *testing.T) {
	u := NewUp3()
	in := []float32{5}
	out := u.Process(in)
	assert.Equal(t, []float32{5, 5, 5}, out)
}

func Test_Up3_ReturnsConsistentLengthAcrossCalls(t *testing.T) {
	u := NewUp3()
	first := u.Process([]float32{1, 2, 3})
	second := u.Process([]float32{4, 5, 6})
	assert.Len(t, first, 9)
	assert.Len(t, second, 9)
}

func Test_Up3_Reset_ClearsContinuityState(t *testing.T) {
	u := NewUp3()
	u.Process([]float32{1, 2, 3})
	assert.True(t, u.hasPrev)
	u.Reset()
	assert.False(t, u.hasPrev)
	assert.Equal(t, float32(0), u.prevSample)
}
