package audio

import (
	"binaural/internal/config"
	"errors"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// ErrDeviceOpen is returned when the audio device cannot be opened or started.
var ErrDeviceOpen = errors.New("audio: failed to open device")

// Callback is invoked by the audio device once per block with interleaved
// input and output buffers. It runs on the real-time thread: it must not
// block, allocate, or log.
type Callback func(in, out []float32)

// StreamParams describes a full-duplex float32 stream.
type StreamParams struct {
	SampleRate      float64
	FramesPerBuffer int
	InputChannels   int
	OutputChannels  int
	InputDevice     int // config.MinDeviceID selects the system default
	OutputDevice    int // config.MinDeviceID selects the system default
	LowLatency      bool
}

// Stream is an opened device session.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Device opens duplex streams. PortAudioDevice is the hardware implementation.
type Device interface {
	Open(params StreamParams, cb Callback) (Stream, error)
}

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
// This should be deferred immediately after Initialize().
func Terminate() error {
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// PortAudioDevice opens full-duplex PortAudio streams. PortAudio must be
// initialized for the lifetime of every stream it returns.
type PortAudioDevice struct{}

// Open opens, but does not start, a duplex stream delivering float32 blocks to cb.
func (PortAudioDevice) Open(p StreamParams, cb Callback) (Stream, error) {
	in, err := InputDevice(p.InputDevice)
	if err != nil {
		return nil, err
	}
	out, err := OutputDevice(p.OutputDevice)
	if err != nil {
		return nil, err
	}

	var params portaudio.StreamParameters
	if p.LowLatency {
		params = portaudio.LowLatencyParameters(in, out)
	} else {
		params = portaudio.HighLatencyParameters(in, out)
	}
	params.Input.Channels = p.InputChannels
	params.Output.Channels = p.OutputChannels
	params.SampleRate = p.SampleRate
	params.FramesPerBuffer = p.FramesPerBuffer

	stream, err := portaudio.OpenStream(params, func(in, out []float32) {
		cb(in, out)
	})
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// InputDevice retrieves the audio input device for the given device ID.
// If deviceID is MinDeviceID (-1), returns the system default input device.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		return portaudio.DefaultInputDevice()
	}
	return deviceByID(deviceID, func(d *portaudio.DeviceInfo) bool { return d.MaxInputChannels > 0 })
}

// OutputDevice retrieves the audio output device for the given device ID.
// If deviceID is MinDeviceID (-1), returns the system default output device.
func OutputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	if deviceID == config.MinDeviceID {
		return portaudio.DefaultOutputDevice()
	}
	return deviceByID(deviceID, func(d *portaudio.DeviceInfo) bool { return d.MaxOutputChannels > 0 })
}

func deviceByID(deviceID int, usable func(*portaudio.DeviceInfo) bool) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	if deviceID < 0 || deviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	}
	if !usable(devices[deviceID]) {
		return nil, fmt.Errorf("device %d (%s) has no channels in the requested direction",
			deviceID, devices[deviceID].Name)
	}
	return devices[deviceID], nil
}
