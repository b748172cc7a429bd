// SPDX-License-Identifier: MIT
package cmd

import (
	"binaural/internal/audio"
	"binaural/internal/config"
	"binaural/internal/hrtf"
	"binaural/internal/log"
	"binaural/internal/render"
	"binaural/internal/transport"
	"binaural/internal/transport/udp"
	"binaural/internal/tui"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/floats"
	"gopkg.in/yaml.v3"
)

var logger = log.New("Main")

// statusInterval paces status messages to control clients and the log.
const statusInterval = 500 * time.Millisecond

// Run executes the command selected in opts until it completes or ctx is
// cancelled. Output meant for the user goes to w.
func Run(ctx context.Context, opts *Options, w io.Writer) error {
	cfg := opts.Config
	switch opts.Command {
	case CommandList:
		return withPortAudio(func() error { return audio.ListDevices(w) })
	case CommandDevices:
		return withPortAudio(func() error { return runDevices(w) })
	case CommandResolve:
		return runResolve(w, cfg)
	case CommandRender:
		return runRender(cfg, opts.Args[0], opts.Args[1])
	case CommandPlay:
		return runPlay(ctx, cfg, opts.Args[0])
	case CommandStream:
		return withPortAudio(func() error { return runStream(ctx, cfg) })
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

func withPortAudio(fn func() error) (err error) {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, audio.Terminate())
	}()
	return fn()
}

func buildStore(cfg *config.Config) (*hrtf.Store, error) {
	start := time.Now()
	store, err := hrtf.Build(cfg.HRTF.DatasetRoot)
	if err != nil {
		return nil, err
	}
	logger.Debugf("loaded %d impulse responses from %s in %s",
		store.Count(), cfg.HRTF.DatasetRoot, time.Since(start).Round(time.Millisecond))
	return store, nil
}

func runResolve(w io.Writer, cfg *config.Config) error {
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	res, err := store.Resolve(cfg.HRTF.Elevation, cfg.HRTF.Azimuth)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Requested:  elevation %g, azimuth %g\n", res.Requested.Elevation, res.Requested.Azimuth)
	fmt.Fprintf(w, "Normalized: elevation %g, azimuth %g\n", res.Normalized.Elevation, res.Normalized.Azimuth)
	fmt.Fprintf(w, "Left ear:   elevation %d, azimuth %d (%d taps)\n", res.LeftElevation, res.LeftAzimuth, len(res.Left))
	fmt.Fprintf(w, "Right ear:  elevation %d, azimuth %d (%d taps)\n", res.RightElevation, res.RightAzimuth, len(res.Right))
	return nil
}

// renderClip loads in and convolves it in full with the responses for the
// configured direction.
func renderClip(cfg *config.Config, in string) (render.Stereo, int, error) {
	clip, err := audio.LoadClip(in)
	if err != nil {
		return render.Stereo{}, 0, err
	}
	if float64(clip.SampleRate) != cfg.HRTF.SampleRate {
		logger.Warnf("%s is %d Hz but the dataset is %.0f Hz; rendering without resampling",
			in, clip.SampleRate, cfg.HRTF.SampleRate)
	}

	store, err := buildStore(cfg)
	if err != nil {
		return render.Stereo{}, 0, err
	}
	res, err := store.Resolve(cfg.HRTF.Elevation, cfg.HRTF.Azimuth)
	if err != nil {
		return render.Stereo{}, 0, err
	}
	out, err := render.RenderFull(clip.Samples, res.Left, res.Right)
	if err != nil {
		return render.Stereo{}, 0, err
	}

	if peak := math.Max(peakOf(out.Left), peakOf(out.Right)); peak > 1 {
		logger.Warnf("rendered peak %.2f exceeds full scale and will clip", peak)
	}
	logger.Infof("rendered %d frames at elevation %d/%d, azimuth %d/%d (left/right)",
		out.Frames(), res.LeftElevation, res.RightElevation, res.LeftAzimuth, res.RightAzimuth)
	return out, clip.SampleRate, nil
}

func peakOf(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return math.Max(floats.Max(x), -floats.Min(x))
}

func runRender(cfg *config.Config, in, out string) error {
	stereo, rate, err := renderClip(cfg, in)
	if err != nil {
		return err
	}
	if err := audio.WriteClip(out, stereo, rate, cfg.Recording.BitDepth); err != nil {
		return err
	}
	logger.Infof("wrote %s", out)
	return nil
}

func runPlay(ctx context.Context, cfg *config.Config, in string) error {
	stereo, rate, err := renderClip(cfg, in)
	if err != nil {
		return err
	}
	player, err := audio.NewClipPlayer(rate)
	if err != nil {
		return err
	}
	return player.Play(ctx, stereo)
}

// deviceSnippet is the part of the configuration a device selection sets.
type deviceSnippet struct {
	HRTF struct {
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"hrtf"`
	Audio struct {
		InputDevice  int `yaml:"input_device"`
		OutputDevice int `yaml:"output_device"`
	} `yaml:"audio"`
}

func runDevices(w io.Writer) error {
	sel, ok, err := tui.StartDeviceListUI()
	if err != nil || !ok {
		return err
	}
	return writeSelection(w, sel)
}

func writeSelection(w io.Writer, sel tui.Selection) error {
	var snippet deviceSnippet
	snippet.HRTF.SampleRate = sel.SampleRate
	snippet.Audio.InputDevice = sel.InputDevice
	snippet.Audio.OutputDevice = sel.OutputDevice

	fmt.Fprintf(w, "# Add to %s\n", config.DefaultPath)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(snippet); err != nil {
		return err
	}
	return enc.Close()
}

// streamConfig maps the application configuration onto a pipeline session.
func streamConfig(cfg *config.Config) audio.StreamConfig {
	return audio.StreamConfig{
		SampleRate:      cfg.HRTF.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		InputChannels:   cfg.Audio.InputChannels,
		OutputChannels:  cfg.Audio.OutputChannels,
		InputDevice:     cfg.Audio.InputDevice,
		OutputDevice:    cfg.Audio.OutputDevice,
		LowLatency:      cfg.Audio.LowLatency,
		PrefillBlocks:   cfg.Audio.PrefillBlocks,
		QueueDepth:      cfg.Audio.QueueDepth,
	}
}

func runStream(ctx context.Context, cfg *config.Config) error {
	return stream(ctx, cfg, audio.PortAudioDevice{})
}

// stream runs a pipeline on device with the configured control and telemetry
// endpoints until ctx is cancelled or the pipeline stops on its own.
func stream(ctx context.Context, cfg *config.Config, device audio.Device) (err error) {
	store, err := buildStore(cfg)
	if err != nil {
		return err
	}

	direction := audio.NewDirectionHandle(hrtf.Direction{Elevation: cfg.HRTF.Elevation, Azimuth: cfg.HRTF.Azimuth})
	p := audio.NewPipeline(store, device, direction)
	if cfg.Audio.GateThreshold > 0 {
		p.SetGateThreshold(cfg.Audio.GateThreshold)
		p.EnableGate()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := p.Start(ctx, streamConfig(cfg)); err != nil {
		return err
	}
	var recording string
	defer func() {
		err = errors.Join(err, p.Stop())
		s := p.Stats()
		logger.Infof("session %s: %d blocks rendered, %d underruns, %d overflows",
			s.Session, s.Rendered, s.Underruns, s.Overflows)
		if recording != "" {
			logger.Infof("recording saved to %s", recording)
		}
	}()

	if cfg.Recording.Enabled {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			return err
		}
		name := audio.RecordingName(cfg.Recording.OutputDir, time.Now())
		if err := p.StartRecording(name, cfg.Recording.BitDepth); err != nil {
			return err
		}
		recording = name
	}

	var status transport.Transport = transport.NewLoggingTransport()
	if cfg.Transport.WebSocketEnabled {
		server := transport.NewControlServer(cfg.Transport.WebSocketAddr, p)
		if err := server.Start(); err != nil {
			_ = server.Close()
			return fmt.Errorf("control server: %w", err)
		}
		status = server
	}
	defer status.Close()

	statusCtx, stopStatus := context.WithCancel(ctx)
	defer stopStatus()
	go transport.PublishStatus(statusCtx, status, p, statusInterval)

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, p)
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Close()
	}

	select {
	case <-ctx.Done():
	case <-p.Done():
		logger.Warnf("stream ended")
	}
	return nil
}
