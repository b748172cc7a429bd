package utils

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given peak amplitude.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental plus two harmonics, peaking
// below full scale.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = 0.9 * (math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2)
	}
	return buffer
}

// GenerateImpulse returns size zero samples with a single value at position at.
func GenerateImpulse(size, at int, value float64) []float64 {
	buffer := make([]float64, size)
	if at >= 0 && at < size {
		buffer[at] = value
	}
	return buffer
}

// ToFloat32 converts samples for device-facing buffers.
func ToFloat32(samples []float64) []float32 {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v)
	}
	return out
}

// FindPeak returns the index of the largest absolute sample, or -1 when empty.
func FindPeak(samples []float64) int {
	if len(samples) == 0 {
		return -1
	}
	abs := make([]float64, len(samples))
	for i, v := range samples {
		abs[i] = math.Abs(v)
	}
	return floats.MaxIdx(abs)
}

// RMS returns the root mean square of samples, 0 when empty.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	return floats.Norm(samples, 2) / math.Sqrt(float64(len(samples)))
}
