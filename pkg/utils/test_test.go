// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0 // A4 note
)

func TestGenerateSineWave(t *testing.T) {
	wave := GenerateSineWave(testSize, testSampleRate, testFrequency, 0.5)
	if len(wave) != testSize {
		t.Fatalf("length = %d, want %d", len(wave), testSize)
	}
	if wave[0] != 0 {
		t.Errorf("sine should start at zero, got %f", wave[0])
	}
	for i, v := range wave {
		if math.Abs(v) > 0.5+1e-12 {
			t.Fatalf("sample %d = %f exceeds amplitude", i, v)
		}
	}
	// RMS of a sine is amplitude/sqrt(2), within a partial-period error.
	if rms := RMS(wave); math.Abs(rms-0.5/math.Sqrt2) > 0.01 {
		t.Errorf("RMS = %f, want ~%f", rms, 0.5/math.Sqrt2)
	}
}

func TestGenerateComplexWaveBelowFullScale(t *testing.T) {
	for i, v := range GenerateComplexWave(testSize, testSampleRate) {
		if math.Abs(v) >= 1 {
			t.Fatalf("sample %d = %f clips", i, v)
		}
	}
}

func TestGenerateImpulseAndFindPeak(t *testing.T) {
	tests := []struct {
		name string
		at   int
		want int
	}{
		{"start", 0, 0},
		{"middle", 100, 100},
		{"end", testSize - 1, testSize - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			imp := GenerateImpulse(testSize, tt.at, -0.75)
			if got := FindPeak(imp); got != tt.want {
				t.Errorf("FindPeak = %d, want %d", got, tt.want)
			}
		})
	}

	if FindPeak(nil) != -1 {
		t.Error("FindPeak(nil) should be -1")
	}
	if RMS(nil) != 0 {
		t.Error("RMS(nil) should be 0")
	}
}

func TestToFloat32(t *testing.T) {
	in := []float64{0, 0.5, -1}
	out := ToFloat32(in)
	for i := range in {
		if float64(out[i]) != in[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], in[i])
		}
	}
}
