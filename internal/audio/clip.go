// SPDX-License-Identifier: MIT
package audio

import (
	"binaural/internal/render"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Clip is a mono signal decoded from a file.
type Clip struct {
	Samples    []float64
	SampleRate int
}

// LoadClip decodes a PCM WAV file, mixes it down to mono and normalizes it to
// [-1, 1) by the source bit depth.
func LoadClip(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("failed to open clip: %w", err)
	}
	defer f.Close()

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		return Clip{}, fmt.Errorf("invalid WAV file: %s", path)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	channels := buf.Format.NumChannels
	bitDepth := int(decoder.BitDepth)
	if channels < 1 || bitDepth < 8 || bitDepth > 32 {
		return Clip{}, fmt.Errorf("unsupported WAV format: %d channels, %d-bit", channels, bitDepth)
	}

	frames := len(buf.Data) / channels
	scale := 1 / (float64(int64(1)<<(bitDepth-1)) * float64(channels))
	// 8-bit WAV is unsigned.
	var offset int
	if bitDepth == 8 {
		offset = 128
	}

	samples := make([]float64, frames)
	for i := range samples {
		var sum int
		for _, v := range buf.Data[i*channels : (i+1)*channels] {
			sum += v - offset
		}
		samples[i] = float64(sum) * scale
	}
	return Clip{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

// WriteClip encodes a stereo signal as a PCM WAV file.
func WriteClip(path string, s render.Stereo, sampleRate, bitDepth int) error {
	interleaved := make([]float32, 2*s.Frames())
	s.Interleave(interleaved)

	rec, err := NewRecorder(path, sampleRate, 2, bitDepth, len(interleaved))
	if err != nil {
		return err
	}
	if err := rec.Write(interleaved); err != nil {
		rec.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return rec.Close()
}
