// SPDX-License-Identifier: MIT
package audio

import "math"

// EnableGate makes the render loop silence blocks whose input peak is below
// the gate threshold. Gated blocks still occupy their place in the stream.
func (p *Pipeline) EnableGate() {
	p.gateEnabled.Store(true)
}

func (p *Pipeline) DisableGate() {
	p.gateEnabled.Store(false)
}

// SetGateThreshold adjusts the noise gate threshold.
// The value is in the range of 0.0-1.0 where 0=always open, 1=always closed
// for a signal within full scale.
func (p *Pipeline) SetGateThreshold(threshold float64) {
	if threshold < 0.0 || math.IsNaN(threshold) {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	p.gateThreshold.Store(math.Float64bits(threshold))
}

// GetGateThreshold returns the current noise gate threshold.
func (p *Pipeline) GetGateThreshold() float64 {
	return math.Float64frombits(p.gateThreshold.Load())
}

// gateOpen reports whether a block should be rendered.
func (p *Pipeline) gateOpen(block []float64) bool {
	if !p.gateEnabled.Load() {
		return true
	}
	threshold := p.GetGateThreshold()
	if threshold == 0 {
		return true
	}
	return peak(block) >= threshold
}

// peak returns the largest absolute sample value.
func peak(block []float64) float64 {
	var m float64
	for _, s := range block {
		m = max(m, math.Abs(s))
	}
	return m
}
