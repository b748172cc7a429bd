package audio

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeviceInfoKind(t *testing.T) {
	tests := []struct {
		in, out int
		kind    string
		duplex  bool
	}{
		{2, 2, "Input/Output", true},
		{1, 0, "Input", false},
		{0, 2, "Output", false},
		{1, 1, "Input/Output", false},
		{0, 0, "", false},
	}
	for _, tt := range tests {
		d := DeviceInfo{MaxInputChannels: tt.in, MaxOutputChannels: tt.out}
		assert.Equal(t, tt.kind, d.Kind())
		assert.Equal(t, tt.duplex, d.Duplex())
	}
}

func TestWriteDevices(t *testing.T) {
	var buf bytes.Buffer
	WriteDevices(&buf, []DeviceInfo{{
		ID:                3,
		Name:              "USB Interface",
		HostAPI:           "Core Audio",
		MaxInputChannels:  2,
		MaxOutputChannels: 2,
		DefaultSampleRate: 48000,
		LowLatency:        3 * time.Millisecond,
		HighLatency:       12 * time.Millisecond,
	}})

	out := buf.String()
	assert.Contains(t, out, "[3] USB Interface (Input/Output)")
	assert.Contains(t, out, "Host API: Core Audio")
	assert.Contains(t, out, "Default sample rate: 48000 Hz")
	assert.Contains(t, out, "Latency: Low=3.00ms, High=12.00ms")
}

func TestHostDevices(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() { _ = Terminate() })

	devices, err := GetDevices()
	if err != nil {
		t.Skipf("no device list: %v", err)
	}
	for i, d := range devices {
		assert.Equal(t, i, d.ID)
		assert.NotEmpty(t, d.Name)
	}

	_, err = InputDevice(len(devices) + 10)
	assert.Error(t, err)
	_, err = OutputDevice(-2)
	assert.Error(t, err)
}
