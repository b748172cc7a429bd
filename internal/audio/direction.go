// SPDX-License-Identifier: MIT
package audio

import (
	"binaural/internal/hrtf"
	"sync/atomic"
)

// DirectionHandle is the shared current direction. Writers replace the whole
// pair in one atomic store, so readers never see an elevation from one write
// and an azimuth from another. The last write wins.
type DirectionHandle struct {
	p atomic.Pointer[hrtf.Direction]
}

// NewDirectionHandle returns a handle holding the initial direction.
func NewDirectionHandle(initial hrtf.Direction) *DirectionHandle {
	h := &DirectionHandle{}
	h.p.Store(&initial)
	return h
}

// Set publishes a new direction.
func (h *DirectionHandle) Set(elevation, azimuth float64) {
	h.p.Store(&hrtf.Direction{Elevation: elevation, Azimuth: azimuth})
}

// Get returns the most recently published direction.
func (h *DirectionHandle) Get() hrtf.Direction {
	if d := h.p.Load(); d != nil {
		return *d
	}
	return hrtf.Direction{}
}
