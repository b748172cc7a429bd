/*
Package transport exposes the streaming pipeline to the outside: a WebSocket
control surface that moves the virtual source and broadcasts status, and (in
the udp subpackage) binary telemetry.

Nothing here runs on the audio thread. Direction changes go through the
pipeline's atomic handle; status is read from Stats snapshots.
*/
package transport

import (
	"binaural/internal/audio"
	"context"
	"time"
)

// Transport defines a generic interface for sending status or events.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// DirectionSetter receives direction changes from a controller.
type DirectionSetter interface {
	SetDirection(elevation, azimuth float64)
}

// StatsSource provides pipeline snapshots.
type StatsSource interface {
	Stats() audio.Stats
}

// Status is the JSON status message broadcast to controllers.
type Status struct {
	Type      string  `json:"type"`
	Session   string  `json:"session,omitempty"`
	State     string  `json:"state"`
	Elevation float64 `json:"elevation"` // requested
	Azimuth   float64 `json:"azimuth"`   // requested

	Left  *EarStatus `json:"left,omitempty"`
	Right *EarStatus `json:"right,omitempty"`

	Underruns uint64 `json:"underruns"`
	Overflows uint64 `json:"overflows"`
	Rendered  uint64 `json:"rendered"`
	Gated     uint64 `json:"gated"`
}

// EarStatus is the measured direction an ear resolved to.
type EarStatus struct {
	Elevation int `json:"elevation"`
	Azimuth   int `json:"azimuth"`
}

// NewStatus converts a pipeline snapshot into a status message.
func NewStatus(s audio.Stats) Status {
	st := Status{
		Type:      "status",
		Session:   s.Session,
		State:     s.State.String(),
		Underruns: s.Underruns,
		Overflows: s.Overflows,
		Rendered:  s.Rendered,
		Gated:     s.Gated,
	}
	if r := s.Resolution; r != nil {
		st.Elevation = r.Requested.Elevation
		st.Azimuth = r.Requested.Azimuth
		st.Left = &EarStatus{Elevation: r.LeftElevation, Azimuth: r.LeftAzimuth}
		st.Right = &EarStatus{Elevation: r.RightElevation, Azimuth: r.RightAzimuth}
	}
	return st
}

// PublishStatus sends a status message on every tick until ctx is cancelled.
func PublishStatus(ctx context.Context, t Transport, src StatsSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Send(NewStatus(src.Stats())); err != nil {
				logger.Warnf("status: %v", err)
			}
		}
	}
}
