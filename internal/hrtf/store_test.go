// SPDX-License-Identifier: MIT
package hrtf

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encode packs samples as raw big-endian 16-bit PCM.
func encode(samples ...int16) []byte {
	raw := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.BigEndian.PutUint16(raw[2*i:], uint16(s))
	}
	return raw
}

// datasetFS builds an in-memory dataset with the same samples in every listed slot.
func datasetFS(ears []Ear, elevation int, azimuths []int, samples ...int16) fstest.MapFS {
	fsys := fstest.MapFS{}
	for _, ear := range ears {
		for _, az := range azimuths {
			fsys[DatasetPath(ear, elevation, az)] = &fstest.MapFile{Data: encode(samples...)}
		}
	}
	return fsys
}

func TestDatasetPath(t *testing.T) {
	tests := []struct {
		ear       Ear
		elevation int
		azimuth   int
		want      string
	}{
		{Left, 0, 0, "full/elev0/L0e000a.dat"},
		{Right, -40, 5, "full/elev-40/R-40e005a.dat"},
		{Left, 90, 355, "full/elev90/L90e355a.dat"},
		{Right, 10, 120, "full/elev10/R10e120a.dat"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DatasetPath(tt.ear, tt.elevation, tt.azimuth))
		})
	}
}

func TestDecode(t *testing.T) {
	ir := Decode(encode(0, 16384, -32768, 32767))
	require.Len(t, ir, 4)
	assert.Equal(t, 0.0, ir[0])
	assert.Equal(t, 0.5, ir[1])
	assert.Equal(t, -1.0, ir[2])
	assert.InDelta(t, 32767.0/32768.0, ir[3], 1e-12)

	t.Run("odd trailing byte dropped", func(t *testing.T) {
		raw := append(encode(256, -256), 0x7f)
		ir := Decode(raw)
		require.Len(t, ir, 2)
		assert.Equal(t, 256.0/32768.0, ir[0])
		assert.Equal(t, -256.0/32768.0, ir[1])
	})

	t.Run("single byte is empty", func(t *testing.T) {
		assert.Empty(t, Decode([]byte{0x01}))
	})
}

func TestBuildFS_EmptyDataset(t *testing.T) {
	_, err := BuildFS(fstest.MapFS{})
	assert.ErrorIs(t, err, ErrEmptyDataset)

	// Files that decode to zero samples do not count.
	_, err = BuildFS(fstest.MapFS{
		DatasetPath(Left, 0, 0): &fstest.MapFile{Data: []byte{0x01}},
	})
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestBuildFS_SingleEntry(t *testing.T) {
	fsys := fstest.MapFS{
		DatasetPath(Right, 20, 45): &fstest.MapFile{Data: encode(100, -100, 50)},
	}
	store, err := BuildFS(fsys)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Count())
	ir := store.Lookup(Right, 20, 45)
	require.NotNil(t, ir)
	assert.Equal(t, ImpulseResponse{100.0 / 32768, -100.0 / 32768, 50.0 / 32768}, ir)

	assert.Nil(t, store.Lookup(Left, 20, 45), "ears must not share data")
	assert.Nil(t, store.Lookup(Right, 20, 50))
	assert.Nil(t, store.Lookup(Right, 25, 45), "off-grid elevation")
	assert.Nil(t, store.Lookup(Right, 20, 360), "out of range azimuth")
}

func TestBuildFS_IgnoresForeignFiles(t *testing.T) {
	fsys := datasetFS([]Ear{Left, Right}, 0, []int{0}, 1)
	fsys["full/elev0/L0e002a.dat"] = &fstest.MapFile{Data: encode(1, 2)}
	fsys["full/README"] = &fstest.MapFile{Data: []byte("notes")}

	store, err := BuildFS(fsys)
	require.NoError(t, err)
	assert.Equal(t, 2, store.Count())
}

func TestStore_ElevationsAndAzimuths(t *testing.T) {
	fsys := datasetFS([]Ear{Left}, 0, []int{270, 0, 90}, 1)
	for k, v := range datasetFS([]Ear{Left, Right}, -40, []int{355}, 2) {
		fsys[k] = v
	}
	store, err := BuildFS(fsys)
	require.NoError(t, err)

	assert.Equal(t, []int{-40, 0}, store.Elevations(Left))
	assert.Equal(t, []int{-40}, store.Elevations(Right))
	assert.Equal(t, []int{0, 90, 270}, store.Azimuths(Left, 0))
	assert.Empty(t, store.Azimuths(Right, 0))
	assert.Nil(t, store.Azimuths(Left, 15))
}

func TestBuild_Directory(t *testing.T) {
	root := t.TempDir()
	name := filepath.Join(root, filepath.FromSlash(DatasetPath(Left, -10, 180)))
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, encode(-32768, 0, 32767), 0o644))

	store, err := Build(root)
	require.NoError(t, err)
	ir := store.Lookup(Left, -10, 180)
	require.Len(t, ir, 3)
	assert.Equal(t, -1.0, ir[0])
}

func TestBuild_EmptyDirectory(t *testing.T) {
	_, err := Build(t.TempDir())
	assert.True(t, errors.Is(err, ErrEmptyDataset), "got %v", err)
}

func TestBuild_MissingRoot(t *testing.T) {
	_, err := Build(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLookupZeroAllocs(t *testing.T) {
	store, err := BuildFS(datasetFS([]Ear{Left, Right}, 0, []int{0, 90}, 1, 2, 3))
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(100, func() {
		_ = store.Lookup(Left, 0, 90)
		_ = store.Lookup(Right, 30, 90)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Lookup, got %.1f", allocs)
	}
}
