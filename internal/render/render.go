// SPDX-License-Identifier: MIT
/*
Package render turns a mono signal into binaural stereo by convolving it with
the left-ear and right-ear impulse responses of a resolved direction.

Each channel is always computed from its own ear's measurement; the right
channel is never derived from left-ear data.
*/
package render

import (
	"binaural/internal/fft"
	"binaural/internal/hrtf"
	"errors"
	"fmt"
)

var (
	// ErrMissingResponse is returned when either ear has no impulse response.
	ErrMissingResponse = errors.New("render: missing impulse response")
	// ErrBufferSize is returned when an output buffer does not fit the block.
	ErrBufferSize = errors.New("render: output buffer size mismatch")
)

// Stereo holds one rendered signal per ear.
type Stereo struct {
	Left  []float64
	Right []float64
}

// Frames returns the number of stereo frames.
func (s Stereo) Frames() int { return min(len(s.Left), len(s.Right)) }

// Interleave writes L,R frame pairs into dst and returns the frame count written.
func (s Stereo) Interleave(dst []float32) int {
	n := min(s.Frames(), len(dst)/2)
	for i := range n {
		dst[2*i] = float32(s.Left[i])
		dst[2*i+1] = float32(s.Right[i])
	}
	return n
}

func renderMode(signal []float64, left, right hrtf.ImpulseResponse, mode fft.Mode) (Stereo, error) {
	if len(left) == 0 || len(right) == 0 {
		return Stereo{}, ErrMissingResponse
	}
	l, err := fft.Convolve(signal, left, mode)
	if err != nil {
		return Stereo{}, fmt.Errorf("render: left ear: %w", err)
	}
	r, err := fft.Convolve(signal, right, mode)
	if err != nil {
		return Stereo{}, fmt.Errorf("render: right ear: %w", err)
	}
	return Stereo{Left: l, Right: r}, nil
}

// RenderFull convolves the whole signal with both responses. Each channel has
// len(signal)+len(ir)-1 samples. Intended for one-shot playback of a clip.
func RenderFull(signal []float64, left, right hrtf.ImpulseResponse) (Stereo, error) {
	return renderMode(signal, left, right, fft.Full)
}

// RenderSame convolves and keeps the centred max(len(signal), len(ir))
// samples of each channel, so a fixed-size block yields a fixed-size output.
func RenderSame(signal []float64, left, right hrtf.ImpulseResponse) (Stereo, error) {
	return renderMode(signal, left, right, fft.Same)
}

// Renderer is the allocation-free form of RenderSame used by the streaming
// render loop. It owns one convolver per ear so each keeps its own cached
// kernel spectrum across blocks.
//
// A Renderer is not safe for concurrent use.
type Renderer struct {
	blockSize int
	maxIR     int

	left  *fft.Convolver
	right *fft.Convolver

	// Pre-allocated per-ear outputs of blockSize samples.
	outL []float64
	outR []float64
}

// NewRenderer prepares a renderer for blocks of blockSize frames and responses
// of at most maxIR taps. maxIR must not exceed blockSize, otherwise the Same
// output would be longer than the block.
func NewRenderer(blockSize, maxIR int) (*Renderer, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("render: block size must be positive, got %d", blockSize)
	}
	if maxIR <= 0 || maxIR > blockSize {
		return nil, fmt.Errorf("render: impulse response length %d must be in [1, %d]", maxIR, blockSize)
	}
	return &Renderer{
		blockSize: blockSize,
		maxIR:     maxIR,
		left:      fft.NewConvolver(blockSize, maxIR),
		right:     fft.NewConvolver(blockSize, maxIR),
		outL:      make([]float64, blockSize),
		outR:      make([]float64, blockSize),
	}, nil
}

// BlockSize returns the number of frames per block.
func (r *Renderer) BlockSize() int { return r.blockSize }

// RenderSameInto renders one block and writes it interleaved (L, R) into out,
// which must hold exactly 2*BlockSize samples.
func (r *Renderer) RenderSameInto(out []float32, block []float64, res *hrtf.Resolution) error {
	if len(out) != 2*r.blockSize || len(block) != r.blockSize {
		return ErrBufferSize
	}
	if len(res.Left) == 0 || len(res.Right) == 0 {
		return ErrMissingResponse
	}
	if err := r.left.ConvolveInto(r.outL, block, res.Left, fft.Same); err != nil {
		return fmt.Errorf("render: left ear: %w", err)
	}
	if err := r.right.ConvolveInto(r.outR, block, res.Right, fft.Same); err != nil {
		return fmt.Errorf("render: right ear: %w", err)
	}
	Stereo{Left: r.outL, Right: r.outR}.Interleave(out)
	return nil
}
