// SPDX-License-Identifier: MIT
package audio

import (
	"binaural/internal/render"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
)

// playbackPoll is how often Play checks whether the player has drained.
const playbackPoll = 20 * time.Millisecond

// ClipPlayer plays rendered clips on the default output through oto. oto
// allows a single context per process, so one player serves every clip.
type ClipPlayer struct {
	ctx *oto.Context
}

// NewClipPlayer opens the output at sampleRate, stereo float32.
func NewClipPlayer(sampleRate int) (*ClipPlayer, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}
	<-ready
	return &ClipPlayer{ctx: ctx}, nil
}

// Play blocks until s has been played or ctx is cancelled.
func (c *ClipPlayer) Play(ctx context.Context, s render.Stereo) error {
	player := c.ctx.NewPlayer(bytes.NewReader(EncodeFloat32LE(s)))
	defer player.Close()

	player.Play()
	ticker := time.NewTicker(playbackPoll)
	defer ticker.Stop()
	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

// EncodeFloat32LE interleaves s into little-endian float32 frames.
func EncodeFloat32LE(s render.Stereo) []byte {
	frames := s.Frames()
	data := make([]byte, frames*2*4)
	for i := range frames {
		binary.LittleEndian.PutUint32(data[8*i:], math.Float32bits(float32(s.Left[i])))
		binary.LittleEndian.PutUint32(data[8*i+4:], math.Float32bits(float32(s.Right[i])))
	}
	return data
}
