// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware and processing limits.
const (
	MinDeviceID     = -1 // -1 represents the system default device
	MinSampleRate   = 8000
	MaxSampleRate   = 192000
	MaxBufferFrames = 8192
	MaxQueueDepth   = 64
)

// DefaultPath is searched when LoadConfig is given an empty path.
const DefaultPath = "config.yaml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // debug, info, warn or error.
	HRTF      HRTFConfig      `yaml:"hrtf"`
	Audio     AudioConfig     `yaml:"audio"`
	Recording RecordingConfig `yaml:"recording"`
	Transport TransportConfig `yaml:"transport"`
}

// HRTFConfig locates the dataset and sets the initial source direction.
type HRTFConfig struct {
	DatasetRoot string `yaml:"dataset_root"` // Directory holding full/elev<E>/...
	// SampleRate is the rate the dataset was measured at. The files carry no
	// rate, so the stream is opened at this rate.
	SampleRate float64 `yaml:"sample_rate"`
	Elevation  float64 `yaml:"elevation"` // Initial elevation in degrees.
	Azimuth    float64 `yaml:"azimuth"`   // Initial azimuth in degrees.
}

// AudioConfig holds settings related to the duplex stream.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index (-1 for default).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Block size; must cover the longest response.
	LowLatency      bool    `yaml:"low_latency"`
	InputChannels   int     `yaml:"input_channels"`
	OutputChannels  int     `yaml:"output_channels"` // Always 2.
	PrefillBlocks   int     `yaml:"prefill_blocks"`  // Silent blocks queued before the stream starts.
	QueueDepth      int     `yaml:"queue_depth"`     // Blocks per capture/playback queue.
	GateThreshold   float64 `yaml:"gate_threshold"`  // Input peak below which a block renders as silence (0 disables).
}

// RecordingConfig controls WAV recording of the rendered output.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
	BitDepth  int    `yaml:"bit_depth"` // 16 or 24.
}

// TransportConfig holds the control and telemetry endpoints.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddr    string        `yaml:"websocket_addr"` // Listen address, e.g. ":8080".
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HRTF: HRTFConfig{
			DatasetRoot: "./hrtf",
			SampleRate:  44100,
		},
		Audio: AudioConfig{
			InputDevice:     MinDeviceID,
			OutputDevice:    MinDeviceID,
			FramesPerBuffer: 512,
			LowLatency:      false,
			InputChannels:   1,
			OutputChannels:  2,
			PrefillBlocks:   2,
			QueueDepth:      4,
			GateThreshold:   0,
		},
		Recording: RecordingConfig{
			Enabled:   false,
			OutputDir: "./recordings",
			BitDepth:  16,
		},
		Transport: TransportConfig{
			WebSocketEnabled: false,
			WebSocketAddr:    ":8080",
			UDPEnabled:       false,
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  100 * time.Millisecond,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches DefaultPath. If no file is found, it uses built-in defaults. After loading
// defaults or from file, it applies environment variable overrides and validates the
// final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.HRTF.DatasetRoot == "" {
		return invalid("hrtf.dataset_root must be set")
	}
	if c.HRTF.SampleRate < MinSampleRate || c.HRTF.SampleRate > MaxSampleRate {
		return invalid("hrtf.sample_rate %.0f outside [%d, %d]", c.HRTF.SampleRate, MinSampleRate, MaxSampleRate)
	}

	a := c.Audio
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return invalid("audio device ids must be >= %d", MinDeviceID)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return invalid("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputChannels < 1 {
		return invalid("audio.input_channels must be at least 1")
	}
	if a.OutputChannels != 2 {
		return invalid("audio.output_channels must be 2, got %d", a.OutputChannels)
	}
	if a.QueueDepth < 1 || a.QueueDepth > MaxQueueDepth {
		return invalid("audio.queue_depth %d outside [1, %d]", a.QueueDepth, MaxQueueDepth)
	}
	if a.PrefillBlocks < 0 || a.PrefillBlocks > a.QueueDepth {
		return invalid("audio.prefill_blocks %d outside [0, queue_depth]", a.PrefillBlocks)
	}
	if a.GateThreshold < 0 || a.GateThreshold > 1 {
		return invalid("audio.gate_threshold %.3f outside [0, 1]", a.GateThreshold)
	}

	if c.Recording.Enabled {
		if c.Recording.OutputDir == "" {
			return invalid("recording.output_dir must be set when recording is enabled")
		}
		if c.Recording.BitDepth != 16 && c.Recording.BitDepth != 24 {
			return invalid("recording.bit_depth must be 16 or 24, got %d", c.Recording.BitDepth)
		}
	}

	t := c.Transport
	if t.WebSocketEnabled && t.WebSocketAddr == "" {
		return invalid("transport.websocket_addr must be set when the websocket is enabled")
	}
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			return invalid("transport.udp_target_address must be set when UDP is enabled")
		}
		if t.UDPSendInterval <= 0 {
			return invalid("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	return nil
}

// applyEnvOverrides lets ENV_* variables replace selected file values.
// Unparseable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
	}

	// ENV_HRTF_{...}

	// ENV_HRTF_DATASET_ROOT
	if val, ok := os.LookupEnv("ENV_HRTF_DATASET_ROOT"); ok {
		c.HRTF.DatasetRoot = val
	}
	// ENV_HRTF_SAMPLE_RATE
	if val, ok := os.LookupEnv("ENV_HRTF_SAMPLE_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.HRTF.SampleRate = f
		}
	}

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = b
		}
	}
	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		c.Transport.WebSocketAddr = val
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = d
		}
	}
}
