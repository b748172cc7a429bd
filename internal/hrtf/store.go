// SPDX-License-Identifier: MIT
/*
Package hrtf loads a measured head-related impulse response dataset and maps
arbitrary source directions onto the nearest measured response.

Layout on disk:

	<root>/full/elev<E>/<side><E>e<A>a.dat

where <side> is L or R, <E> the elevation as a plain integer (-40 .. 90) and
<A> the azimuth zero-padded to three digits (000 .. 355). Each file holds raw
signed 16-bit big-endian samples without a header.

Thread Safety:
- A Store is immutable once Build returns and may be shared freely
- Lookup and Resolve never allocate
*/
package hrtf

import (
	"binaural/internal/log"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
)

// Ear selects the left or right channel of the dataset.
type Ear int

const (
	Left Ear = iota
	Right
)

// String returns the dataset prefix for the ear ("L" or "R").
func (e Ear) String() string {
	switch e {
	case Left:
		return "L"
	case Right:
		return "R"
	default:
		return "?"
	}
}

// Ears lists both ears in storage order.
var Ears = [...]Ear{Left, Right}

// Measurement grid of the dataset.
const (
	MinElevation  = -40
	MaxElevation  = 90
	ElevationStep = 10
	AzimuthStep   = 5
	FullCircle    = 360

	ElevationCount = (MaxElevation-MinElevation)/ElevationStep + 1 // 13
	AzimuthCount   = FullCircle / AzimuthStep                      // 72

	earCount  = len(Ears)
	slotCount = earCount * ElevationCount * AzimuthCount

	// sampleScale converts a signed 16-bit sample into [-1.0, 1.0).
	sampleScale = 1.0 / 32768.0
)

var (
	// ErrEmptyDataset is returned by Build when no response file was found.
	ErrEmptyDataset = errors.New("hrtf: dataset contains no impulse responses")

	// ErrNoImpulseResponse is returned by Resolve when an ear has nothing to resolve to.
	ErrNoImpulseResponse = errors.New("hrtf: no impulse response available")
)

var logger = log.New("HRTF")

// ImpulseResponse holds the normalized filter taps of one measurement.
type ImpulseResponse []float64

// Store is a flat table of impulse responses indexed by ear, elevation step
// and azimuth step, with a presence bitmap marking the populated slots.
type Store struct {
	slots   [slotCount]ImpulseResponse
	present [(slotCount + 63) / 64]uint64
	count   int

	// perElevation[ear][elevIdx] is the number of populated azimuths.
	perElevation [earCount][ElevationCount]int
}

// ElevationAt returns the elevation in degrees of step index i.
func ElevationAt(i int) int { return MinElevation + i*ElevationStep }

// AzimuthAt returns the azimuth in degrees of step index i.
func AzimuthAt(i int) int { return i * AzimuthStep }

// elevationIndex maps an elevation in degrees to its grid index.
func elevationIndex(elevation int) (int, bool) {
	off := elevation - MinElevation
	if off < 0 || elevation > MaxElevation || off%ElevationStep != 0 {
		return 0, false
	}
	return off / ElevationStep, true
}

// azimuthIndex maps an azimuth in degrees to its grid index.
func azimuthIndex(azimuth int) (int, bool) {
	if azimuth < 0 || azimuth >= FullCircle || azimuth%AzimuthStep != 0 {
		return 0, false
	}
	return azimuth / AzimuthStep, true
}

func slotIndex(ear Ear, elevIdx, azIdx int) int {
	return (int(ear)*ElevationCount+elevIdx)*AzimuthCount + azIdx
}

func (s *Store) has(slot int) bool {
	return s.present[slot/64]&(1<<(uint(slot)%64)) != 0
}

func (s *Store) put(ear Ear, elevIdx, azIdx int, ir ImpulseResponse) {
	slot := slotIndex(ear, elevIdx, azIdx)
	if !s.has(slot) {
		s.count++
		s.perElevation[ear][elevIdx]++
	}
	s.slots[slot] = ir
	s.present[slot/64] |= 1 << (uint(slot) % 64)
}

// DatasetPath returns the slash-separated path of a response file relative
// to the dataset root.
func DatasetPath(ear Ear, elevation, azimuth int) string {
	return fmt.Sprintf("full/elev%d/%s%de%03da.dat", elevation, ear, elevation, azimuth)
}

// Build scans the dataset rooted at root and loads every response it finds.
func Build(root string) (*Store, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("hrtf: dataset root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("hrtf: dataset root %q is not a directory", root)
	}
	return BuildFS(os.DirFS(root))
}

// BuildFS is Build over an arbitrary file system. Missing files are skipped,
// any other read failure aborts the build.
func BuildFS(fsys fs.FS) (*Store, error) {
	s := &Store{}
	for _, ear := range Ears {
		for ei := range ElevationCount {
			for ai := range AzimuthCount {
				name := DatasetPath(ear, ElevationAt(ei), AzimuthAt(ai))
				ir, err := readResponse(fsys, name)
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if err != nil {
					return nil, fmt.Errorf("hrtf: reading %s: %w", name, err)
				}
				if len(ir) == 0 {
					logger.Debugf("skipping %s: no complete samples", name)
					continue
				}
				s.put(ear, ei, ai, ir)
			}
		}
	}

	if s.count == 0 {
		return nil, ErrEmptyDataset
	}
	logger.Infof("loaded %d impulse responses (L: %d, R: %d)",
		s.count, s.earCount(Left), s.earCount(Right))
	return s, nil
}

// readResponse decodes one big-endian 16-bit file. A trailing odd byte is ignored.
func readResponse(fsys fs.FS, name string) (ImpulseResponse, error) {
	f, err := fsys.Open(path.Clean(name))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return Decode(raw), nil
}

// Decode converts raw signed 16-bit big-endian PCM into normalized samples.
func Decode(raw []byte) ImpulseResponse {
	n := len(raw) / 2
	if n == 0 {
		return nil
	}
	ir := make(ImpulseResponse, n)
	for i := range ir {
		ir[i] = float64(int16(binary.BigEndian.Uint16(raw[2*i:]))) * sampleScale
	}
	return ir
}

// Lookup returns the response stored for the exact key, or nil when absent.
func (s *Store) Lookup(ear Ear, elevation, azimuth int) ImpulseResponse {
	ei, ok := elevationIndex(elevation)
	if !ok {
		return nil
	}
	ai, ok := azimuthIndex(azimuth)
	if !ok {
		return nil
	}
	slot := slotIndex(ear, ei, ai)
	if !s.has(slot) {
		return nil
	}
	return s.slots[slot]
}

// MaxLength returns the length of the longest stored response.
func (s *Store) MaxLength() int {
	n := 0
	for slot, ir := range s.slots {
		if s.has(slot) {
			n = max(n, len(ir))
		}
	}
	return n
}

// Count returns the number of populated entries across both ears.
func (s *Store) Count() int { return s.count }

func (s *Store) earCount(ear Ear) int {
	n := 0
	for _, c := range s.perElevation[ear] {
		n += c
	}
	return n
}

// Elevations returns, in ascending order, the elevations holding at least one
// response for the ear.
func (s *Store) Elevations(ear Ear) []int {
	var out []int
	for ei, c := range s.perElevation[ear] {
		if c > 0 {
			out = append(out, ElevationAt(ei))
		}
	}
	return out
}

// Azimuths returns, in ascending order, the populated azimuths for the ear at
// the given elevation.
func (s *Store) Azimuths(ear Ear, elevation int) []int {
	ei, ok := elevationIndex(elevation)
	if !ok {
		return nil
	}
	var out []int
	for ai := range AzimuthCount {
		if s.has(slotIndex(ear, ei, ai)) {
			out = append(out, AzimuthAt(ai))
		}
	}
	return out
}
