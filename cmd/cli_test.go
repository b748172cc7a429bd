// SPDX-License-Identifier: MIT
package cmd

import (
	"binaural/internal/config"
	"binaural/internal/log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no config.yaml is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	level := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(level) })
	return dir
}

func TestParseArgsDefaults(t *testing.T) {
	isolate(t)

	opts, err := ParseArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, CommandStream, opts.Command)
	assert.Equal(t, config.Default(), opts.Config)
	assert.False(t, opts.Record)
}

func TestParseArgsFlagsOverrideConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hrtf:
  dataset_root: /data/kemar
  elevation: 20
audio:
  frames_per_buffer: 1024
  queue_depth: 8
`), 0o644))

	opts, err := ParseArgs([]string{
		"-C", path,
		"-a", "135",
		"-b", "256",
		"-r", "--output-dir", dir,
		"--udp", "127.0.0.1:9999",
		"--websocket", ":0",
		"-v",
	})
	require.NoError(t, err)

	cfg := opts.Config
	assert.Equal(t, "/data/kemar", cfg.HRTF.DatasetRoot, "file value kept")
	assert.Equal(t, 20.0, cfg.HRTF.Elevation, "file value kept")
	assert.Equal(t, 135.0, cfg.HRTF.Azimuth)
	assert.Equal(t, 256, cfg.Audio.FramesPerBuffer, "flag wins over file")
	assert.Equal(t, 8, cfg.Audio.QueueDepth)
	assert.True(t, cfg.Recording.Enabled)
	assert.Equal(t, dir, cfg.Recording.OutputDir)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, "127.0.0.1:9999", cfg.Transport.UDPTargetAddress)
	assert.True(t, cfg.Transport.WebSocketEnabled)
	assert.Equal(t, ":0", cfg.Transport.WebSocketAddr)
	assert.Equal(t, log.LevelDebug, log.GetLevel())
}

func TestParseArgsSubcommands(t *testing.T) {
	isolate(t)

	tests := []struct {
		args    []string
		command string
		rest    []string
	}{
		{[]string{"list"}, CommandList, []string{}},
		{[]string{"devices"}, CommandDevices, []string{}},
		{[]string{"resolve", "-e", "45", "-a", "270"}, CommandResolve, []string{}},
		{[]string{"render", "in.wav", "out.wav"}, CommandRender, []string{"in.wav", "out.wav"}},
		{[]string{"play", "-a", "90", "in.wav"}, CommandPlay, []string{"in.wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			opts, err := ParseArgs(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.command, opts.Command)
			assert.ElementsMatch(t, tt.rest, opts.Args)
			require.NotNil(t, opts.Config)
		})
	}
}

func TestParseArgsErrors(t *testing.T) {
	isolate(t)

	tests := map[string][]string{
		"missing output":     {"render", "in.wav"},
		"extra argument":     {"resolve", "x"},
		"unknown flag":       {"--nope"},
		"invalid block size": {"-b", "0"},
		"missing file":       {"-C", "does-not-exist.yaml"},
		"gate out of range":  {"--gate", "2"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseArgs(args)
			assert.Error(t, err)
		})
	}

	_, err := ParseArgs([]string{"-b", "0"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestConfigureLogging(t *testing.T) {
	isolate(t)

	require.NoError(t, configureLogging("warn", false))
	assert.Equal(t, log.LevelWarn, log.GetLevel())
	require.NoError(t, configureLogging("error", true))
	assert.Equal(t, log.LevelDebug, log.GetLevel())
	assert.Error(t, configureLogging("loud", false))
}
