// SPDX-License-Identifier: MIT
package render

import (
	"binaural/internal/hrtf"
	"binaural/pkg/utils"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

const (
	testBlockSize  = 512
	testSampleRate = 44100
)

// testResponses returns distinct impulse-like responses per ear: the left
// ear delays by leftDelay samples, the right ear by rightDelay with a sign flip.
func testResponses(length, leftDelay, rightDelay int) (hrtf.ImpulseResponse, hrtf.ImpulseResponse) {
	left := hrtf.ImpulseResponse(utils.GenerateImpulse(length, leftDelay, 0.5))
	right := hrtf.ImpulseResponse(utils.GenerateImpulse(length, rightDelay, -0.25))
	return left, right
}

func TestRenderFullLength(t *testing.T) {
	signal := utils.GenerateComplexWave(1000, testSampleRate)
	for _, irLen := range []int{1, 64, 200, 257} {
		left, right := testResponses(irLen, 0, irLen-1)
		out, err := RenderFull(signal, left, right)
		require.NoError(t, err)
		assert.Len(t, out.Left, len(signal)+irLen-1)
		assert.Len(t, out.Right, len(signal)+irLen-1)
		assert.Equal(t, len(signal)+irLen-1, out.Frames())
	}
}

func TestRenderSameLength(t *testing.T) {
	tests := []struct {
		name      string
		signalLen int
		irLen     int
	}{
		{"block longer", testBlockSize, 200},
		{"equal", 200, 200},
		{"ir longer", 100, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := utils.GenerateSineWave(tt.signalLen, testSampleRate, 1000, 0.5)
			left, right := testResponses(tt.irLen, 3, 5)
			out, err := RenderSame(signal, left, right)
			require.NoError(t, err)
			want := max(tt.signalLen, tt.irLen)
			assert.Len(t, out.Left, want)
			assert.Len(t, out.Right, want)
		})
	}
}

func TestRenderUsesEachEarsResponse(t *testing.T) {
	signal := utils.GenerateImpulse(32, 0, 1)
	left, right := testResponses(100, 10, 40)

	out, err := RenderFull(signal, left, right)
	require.NoError(t, err)

	assert.Equal(t, 10, utils.FindPeak(out.Left))
	assert.Equal(t, 40, utils.FindPeak(out.Right))
	assert.InDelta(t, 0.5, out.Left[10], 1e-9)
	assert.InDelta(t, -0.25, out.Right[40], 1e-9)
	assert.False(t, floats.EqualApprox(out.Left, out.Right, 1e-9))
}

func TestRenderMissingResponse(t *testing.T) {
	left, _ := testResponses(16, 0, 0)
	_, err := RenderFull([]float64{1}, left, nil)
	assert.ErrorIs(t, err, ErrMissingResponse)
	_, err = RenderSame([]float64{1}, nil, left)
	assert.ErrorIs(t, err, ErrMissingResponse)
}

func TestStereoInterleave(t *testing.T) {
	s := Stereo{Left: []float64{1, 2, 3}, Right: []float64{-1, -2, -3}}
	dst := make([]float32, 6)
	assert.Equal(t, 3, s.Interleave(dst))
	assert.Equal(t, []float32{1, -1, 2, -2, 3, -3}, dst)

	short := make([]float32, 3)
	assert.Equal(t, 1, s.Interleave(short))
}

func TestNewRendererValidation(t *testing.T) {
	_, err := NewRenderer(0, 10)
	assert.Error(t, err)
	_, err = NewRenderer(128, 200)
	assert.Error(t, err)
	r, err := NewRenderer(testBlockSize, 200)
	require.NoError(t, err)
	assert.Equal(t, testBlockSize, r.BlockSize())
}

func TestRendererMatchesRenderSame(t *testing.T) {
	r, err := NewRenderer(testBlockSize, 200)
	require.NoError(t, err)

	signal := utils.GenerateComplexWave(testBlockSize, testSampleRate)
	left := hrtf.ImpulseResponse(utils.GenerateSineWave(200, testSampleRate, 3000, 0.3))
	right := hrtf.ImpulseResponse(utils.GenerateSineWave(180, testSampleRate, 5000, 0.2))
	res := &hrtf.Resolution{Left: left, Right: right}

	out := make([]float32, 2*testBlockSize)
	require.NoError(t, r.RenderSameInto(out, signal, res))

	want, err := RenderSame(signal, left, right)
	require.NoError(t, err)
	for i := range testBlockSize {
		assert.InDelta(t, want.Left[i], float64(out[2*i]), 1e-5)
		assert.InDelta(t, want.Right[i], float64(out[2*i+1]), 1e-5)
	}

	assert.ErrorIs(t, r.RenderSameInto(out[:10], signal, res), ErrBufferSize)
	assert.ErrorIs(t, r.RenderSameInto(out, signal, &hrtf.Resolution{Left: left}), ErrMissingResponse)
}

func TestRendererHotPath(t *testing.T) {
	r, err := NewRenderer(testBlockSize, 200)
	require.NoError(t, err)

	signal := utils.GenerateComplexWave(testBlockSize, testSampleRate)
	left, right := testResponses(200, 7, 9)
	res := &hrtf.Resolution{Left: left, Right: right}
	out := make([]float32, 2*testBlockSize)

	// Warm-up call caches both kernel spectra.
	require.NoError(t, r.RenderSameInto(out, signal, res))
	allocs := testing.AllocsPerRun(100, func() {
		_ = r.RenderSameInto(out, signal, res)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in RenderSameInto hot path, got %.1f", allocs)
	}
}

func BenchmarkRenderSameInto(b *testing.B) {
	r, err := NewRenderer(testBlockSize, 200)
	if err != nil {
		b.Fatal(err)
	}
	signal := utils.GenerateComplexWave(testBlockSize, testSampleRate)
	left, right := testResponses(200, 7, 9)
	res := &hrtf.Resolution{Left: left, Right: right}
	out := make([]float32, 2*testBlockSize)

	b.ReportAllocs()

	for b.Loop() {
		_ = r.RenderSameInto(out, signal, res)
	}
}
