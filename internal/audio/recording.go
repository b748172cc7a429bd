package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrRecording is returned when a recording is already running.
var ErrRecording = errors.New("audio: already recording")

// wavFormatPCM is the WAVE_FORMAT_PCM audio format tag.
const wavFormatPCM = 1

// Recorder writes interleaved float blocks to a PCM WAV file.
// Write and Close are safe to call from different goroutines.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    *audio.IntBuffer // Reusable buffer for format conversion
	scale  float64
	limit  int
	closed bool
}

// NewRecorder creates filename and prepares a WAV encoder. blockLen is the
// number of interleaved samples per Write, used to pre-size the buffer.
func NewRecorder(filename string, sampleRate, channels, bitDepth, blockLen int) (*Recorder, error) {
	if bitDepth != 16 && bitDepth != 24 {
		return nil, fmt.Errorf("audio: unsupported bit depth %d", bitDepth)
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	full := 1 << (bitDepth - 1)
	return &Recorder{
		file: file,
		enc:  wav.NewEncoder(file, sampleRate, bitDepth, channels, wavFormatPCM),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			Data:           make([]int, blockLen),
			SourceBitDepth: bitDepth,
		},
		scale: float64(full),
		limit: full - 1,
	}, nil
}

// Write converts and appends one block. Samples outside [-1, 1) are clipped.
func (r *Recorder) Write(interleaved []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	if cap(r.buf.Data) < len(interleaved) {
		r.buf.Data = make([]int, len(interleaved))
	}
	r.buf.Data = r.buf.Data[:len(interleaved)]
	for i, s := range interleaved {
		v := int(float64(s) * r.scale)
		r.buf.Data[i] = min(max(v, -r.limit-1), r.limit)
	}
	return r.enc.Write(r.buf)
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.enc.Close(), r.file.Close())
}

// RecordingName returns a timestamped file name inside dir.
func RecordingName(dir string, t time.Time) string {
	return filepath.Join(dir, "binaural-"+t.Format("20060102-150405")+".wav")
}

// StartRecording records the rendered stereo output to filename. The file is
// written by the render loop, never by the device callback, and is finalized
// when the session ends. It fails unless the pipeline is streaming.
func (p *Pipeline) StartRecording(filename string, bitDepth int) error {
	// Holding mu keeps teardown from running until the recorder is in place.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != Streaming {
		return fmt.Errorf("%w: recording needs a streaming pipeline", ErrInvalidConfig)
	}
	cfg := p.cfg
	if p.recorder.Load() != nil {
		return ErrRecording
	}

	rec, err := NewRecorder(filename, int(cfg.SampleRate), cfg.OutputChannels, bitDepth,
		cfg.FramesPerBuffer*cfg.OutputChannels)
	if err != nil {
		return err
	}
	if !p.recorder.CompareAndSwap(nil, rec) {
		rec.Close()
		os.Remove(filename)
		return ErrRecording
	}
	logger.Infof("recording to %s", filename)
	return nil
}

// StopRecording finalizes the current recording, if any.
func (p *Pipeline) StopRecording() error {
	rec := p.recorder.Swap(nil)
	if rec == nil {
		return nil
	}
	if err := rec.Close(); err != nil {
		return fmt.Errorf("finalizing recording: %w", err)
	}
	return nil
}
