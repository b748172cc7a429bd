// SPDX-License-Identifier: MIT
/*
Package fft implements discrete linear convolution for impulse-response
rendering, switching between a direct time-domain loop for short kernels and
a zero-padded FFT product for longer ones.

Two output shapes are supported:
- Full: len(signal) + len(kernel) - 1 samples
- Same: max(len(signal), len(kernel)) samples, centred on the full result

Convolver pre-allocates every buffer so repeated calls on the real-time
adjacent render path never allocate.
*/
package fft

import (
	"binaural/pkg/bitint"
	"errors"
	"fmt"

	"github.com/tphakala/simd/c128"
	"github.com/tphakala/simd/f64"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Mode selects the output shape of a convolution.
type Mode int

const (
	// Full returns all len(signal)+len(kernel)-1 output samples.
	Full Mode = iota
	// Same returns max(len(signal), len(kernel)) samples from the middle of
	// the full result.
	Same
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Full:
		return "full"
	case Same:
		return "same"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Kernels up to this many taps are convolved directly, longer ones via FFT.
const directThreshold = 64

var (
	ErrEmptyInput  = errors.New("fft: empty input signal")
	ErrEmptyKernel = errors.New("fft: empty kernel")
	ErrCapacity    = errors.New("fft: convolution exceeds workspace capacity")
	ErrDstLength   = errors.New("fft: destination length mismatch")
)

// OutputLength returns the number of samples produced for the given input
// lengths and mode.
func OutputLength(signalLen, kernelLen int, mode Mode) int {
	if signalLen == 0 || kernelLen == 0 {
		return 0
	}
	if mode == Same {
		return max(signalLen, kernelLen)
	}
	return signalLen + kernelLen - 1
}

// sameOffset is the index in the full result where the Same window starts.
func sameOffset(signalLen, kernelLen int) int {
	return (min(signalLen, kernelLen) - 1) / 2
}

// directFull writes the full convolution of a and b into dst.
// dst must hold len(a)+len(b)-1 samples.
func directFull(dst, a, b []float64) {
	clear(dst)
	for i, x := range a {
		if x == 0 {
			continue
		}
		row := dst[i : i+len(b)]
		for j, h := range b {
			row[j] += x * h
		}
	}
}

// directWindow writes full[offset : offset+len(dst)] of a*b into dst without
// materialising the full result.
func directWindow(dst, a, b []float64, offset int) {
	for k := range dst {
		n := k + offset
		lo := max(0, n-len(b)+1)
		hi := min(n, len(a)-1)
		var acc float64
		for i := lo; i <= hi; i++ {
			acc += a[i] * b[n-i]
		}
		dst[k] = acc
	}
}

// Convolve returns the convolution of signal and kernel, allocating the result.
func Convolve(signal, kernel []float64, mode Mode) ([]float64, error) {
	if len(signal) == 0 {
		return nil, ErrEmptyInput
	}
	if len(kernel) == 0 {
		return nil, ErrEmptyKernel
	}
	c := NewConvolver(len(signal), len(kernel))
	dst := make([]float64, OutputLength(len(signal), len(kernel), mode))
	if err := c.ConvolveInto(dst, signal, kernel, mode); err != nil {
		return nil, err
	}
	return dst, nil
}

// convolverWorkspace holds pre-allocated buffers for the FFT path.
type convolverWorkspace struct {
	signal   []float64    // zero-padded input
	kernel   []float64    // zero-padded kernel
	full     []float64    // inverse transform output
	signalFD []complex128 // input spectrum
	kernelFD []complex128 // kernel spectrum
	product  []complex128 // pointwise product
}

// Convolver convolves signals up to maxSignal samples with kernels up to
// maxKernel taps. It caches the spectrum of the most recent kernel by slice
// identity, so kernels must not be modified after first use. Call Reset if a
// kernel's backing array is reused.
//
// A Convolver is not safe for concurrent use.
type Convolver struct {
	maxSignal int
	maxKernel int

	fftSize int
	fftObj  *fourier.FFT
	scale   float64 // 1/fftSize, gonum does not normalise the inverse
	ws      convolverWorkspace

	cachedKernel *float64 // identity of the kernel behind ws.kernelFD
	cachedLen    int
}

// NewConvolver sizes a Convolver for the given maximum input lengths.
func NewConvolver(maxSignal, maxKernel int) *Convolver {
	maxSignal = max(maxSignal, 1)
	maxKernel = max(maxKernel, 1)

	fftSize := bitint.NextPowerOfTwo(maxSignal + maxKernel - 1)
	bins := fftSize/2 + 1

	return &Convolver{
		maxSignal: maxSignal,
		maxKernel: maxKernel,
		fftSize:   fftSize,
		fftObj:    fourier.NewFFT(fftSize),
		scale:     1.0 / float64(fftSize),
		ws: convolverWorkspace{
			signal:   make([]float64, fftSize),
			kernel:   make([]float64, fftSize),
			full:     make([]float64, fftSize),
			signalFD: make([]complex128, bins),
			kernelFD: make([]complex128, bins),
			product:  make([]complex128, bins),
		},
	}
}

// Reset drops the cached kernel spectrum.
func (c *Convolver) Reset() {
	c.cachedKernel = nil
	c.cachedLen = 0
}

// FFTSize returns the transform length used by the FFT path.
func (c *Convolver) FFTSize() int { return c.fftSize }

// ConvolveInto writes the convolution of signal and kernel into dst, which
// must have exactly OutputLength(len(signal), len(kernel), mode) samples.
func (c *Convolver) ConvolveInto(dst, signal, kernel []float64, mode Mode) error {
	if len(signal) == 0 {
		return ErrEmptyInput
	}
	if len(kernel) == 0 {
		return ErrEmptyKernel
	}
	if len(signal) > c.maxSignal || len(kernel) > c.maxKernel {
		return ErrCapacity
	}
	if len(dst) != OutputLength(len(signal), len(kernel), mode) {
		return ErrDstLength
	}

	offset := 0
	if mode == Same {
		offset = sameOffset(len(signal), len(kernel))
	}

	if len(kernel) <= directThreshold {
		if mode == Full {
			directFull(dst, signal, kernel)
		} else {
			directWindow(dst, signal, kernel, offset)
		}
		return nil
	}

	c.transform(signal, kernel)
	copy(dst, c.ws.full[offset:offset+len(dst)])
	return nil
}

// transform computes the full linear convolution into ws.full via the FFT.
func (c *Convolver) transform(signal, kernel []float64) {
	ws := &c.ws

	if c.cachedKernel != &kernel[0] || c.cachedLen != len(kernel) {
		clear(ws.kernel)
		copy(ws.kernel, kernel)
		c.fftObj.Coefficients(ws.kernelFD, ws.kernel)
		c.cachedKernel = &kernel[0]
		c.cachedLen = len(kernel)
	}

	clear(ws.signal)
	copy(ws.signal, signal)
	c.fftObj.Coefficients(ws.signalFD, ws.signal)

	c128.Mul(ws.product, ws.signalFD, ws.kernelFD)

	c.fftObj.Sequence(ws.full, ws.product)
	f64.Scale(ws.full, ws.full, c.scale)
}
