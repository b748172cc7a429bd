// SPDX-License-Identifier: MIT
package hrtf

import (
	"fmt"
	"math"
)

// Direction is a requested source direction in degrees. Values are not
// constrained, Normalize brings them into the measured range.
type Direction struct {
	Elevation float64 `json:"elevation"`
	Azimuth   float64 `json:"azimuth"`
}

// Resolution is the outcome of mapping a requested direction onto the dataset.
// Each ear is resolved on its own; the two azimuths and elevations may differ
// when the dataset is not symmetric.
type Resolution struct {
	Requested  Direction
	Normalized Direction

	LeftElevation  int
	LeftAzimuth    int
	RightElevation int
	RightAzimuth   int

	Left  ImpulseResponse
	Right ImpulseResponse
}

// Normalize clamps elevation into [MinElevation, MaxElevation] and wraps
// azimuth into [0, 360). NaN and infinite inputs are treated as 0.
func Normalize(elevation, azimuth float64) (float64, float64) {
	if math.IsNaN(elevation) {
		elevation = 0
	}
	elevation = math.Max(MinElevation, math.Min(MaxElevation, elevation))

	if math.IsNaN(azimuth) || math.IsInf(azimuth, 0) {
		return elevation, 0
	}
	azimuth = math.Mod(azimuth, FullCircle)
	if azimuth < 0 {
		azimuth += FullCircle
	}
	if azimuth >= FullCircle || azimuth == 0 {
		// Rounding of tiny negatives and -0 both land here.
		azimuth = 0
	}
	return elevation, azimuth
}

// closer reports whether candidate beats best as a match for target.
// Equal distances go to the smaller key so the result never depends on
// the order candidates are visited in.
func closer(candidate, best int, target float64) bool {
	dc := math.Abs(float64(candidate) - target)
	db := math.Abs(float64(best) - target)
	return dc < db || (dc == db && candidate < best)
}

// NearestKey returns the key closest to target. An exact member of keys is
// returned unchanged, otherwise the key minimizing |key - target| wins, with
// ties broken towards the smaller key. The second result is false when keys
// is empty.
func NearestKey(keys []int, target float64) (int, bool) {
	if len(keys) == 0 {
		return 0, false
	}
	for _, k := range keys {
		if float64(k) == target {
			return k, true
		}
	}
	best := keys[0]
	for _, k := range keys[1:] {
		if closer(k, best, target) {
			best = k
		}
	}
	return best, true
}

// nearestElevation scans the populated elevations of one ear.
func (s *Store) nearestElevation(ear Ear, target float64) (int, bool) {
	best, found := 0, false
	for ei, c := range s.perElevation[ear] {
		if c == 0 {
			continue
		}
		if !found || closer(ei, best, (target-MinElevation)/ElevationStep) {
			best, found = ei, true
		}
	}
	return best, found
}

// nearestAzimuth scans the populated azimuths of one ear at a grid elevation.
func (s *Store) nearestAzimuth(ear Ear, elevIdx int, target float64) (int, bool) {
	best, found := 0, false
	for ai := range AzimuthCount {
		if !s.has(slotIndex(ear, elevIdx, ai)) {
			continue
		}
		if !found || closer(ai, best, target/AzimuthStep) {
			best, found = ai, true
		}
	}
	return best, found
}

// resolveEar finds the nearest populated (elevation, azimuth) for one ear.
func (s *Store) resolveEar(ear Ear, elevation, azimuth float64) (int, int, ImpulseResponse, error) {
	ei, ok := s.nearestElevation(ear, elevation)
	if !ok {
		return 0, 0, nil, fmt.Errorf("%w for ear %s", ErrNoImpulseResponse, ear)
	}
	// Populated elevations always hold at least one azimuth.
	ai, _ := s.nearestAzimuth(ear, ei, azimuth)
	return ElevationAt(ei), AzimuthAt(ai), s.slots[slotIndex(ear, ei, ai)], nil
}

// Resolve normalizes the requested direction and returns the nearest measured
// response for each ear. It fails with ErrNoImpulseResponse when either ear
// has no populated elevation at all. This is stricter than Build, which
// accepts any non-empty dataset: a left-only dataset builds, but nothing can
// be resolved or streamed from it.
func (s *Store) Resolve(elevation, azimuth float64) (Resolution, error) {
	res := Resolution{Requested: Direction{Elevation: elevation, Azimuth: azimuth}}
	if s == nil {
		return res, ErrNoImpulseResponse
	}

	el, az := Normalize(elevation, azimuth)
	res.Normalized = Direction{Elevation: el, Azimuth: az}

	var err error
	res.LeftElevation, res.LeftAzimuth, res.Left, err = s.resolveEar(Left, el, az)
	if err != nil {
		return res, err
	}
	res.RightElevation, res.RightAzimuth, res.Right, err = s.resolveEar(Right, el, az)
	if err != nil {
		return res, err
	}
	return res, nil
}
