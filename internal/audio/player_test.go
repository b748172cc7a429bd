// SPDX-License-Identifier: MIT
package audio

import (
	"binaural/internal/render"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFloat32LE(t *testing.T) {
	s := render.Stereo{Left: []float64{0.5, -1, 9}, Right: []float64{0.25, 1}}
	data := EncodeFloat32LE(s)
	require.Len(t, data, 2*2*4, "frames limited to the shorter channel")

	want := []float32{0.5, 0.25, -1, 1}
	for i, w := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		assert.Equal(t, w, got)
	}
}
