// SPDX-License-Identifier: MIT
/*
Package audio streams live input through the binaural renderer:

	device callback -> capture queue -> render loop -> playback queue -> device callback

The real-time callback only moves blocks between pre-allocated queues. It
never blocks, allocates, logs, or touches the dataset. All resolution and
convolution happens in the render loop goroutine, which is the only
consumer of the capture queue and the only producer of the playback queue.

Thread Safety:
- Uses atomic operations for state, counters, and the shared direction
- Pre-allocates every buffer before the device starts
- Start and Stop are serialized by a mutex that the callback never takes
*/
package audio

import (
	"binaural/internal/hrtf"
	"binaural/internal/log"
	"binaural/internal/render"
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotIdle is returned by Start when the pipeline has already been started.
	ErrNotIdle = errors.New("audio: pipeline is not idle")
	// ErrInvalidConfig is returned by Start for unusable stream settings.
	ErrInvalidConfig = errors.New("audio: invalid stream configuration")
)

var logger = log.New("Pipeline")

// State is the pipeline lifecycle phase.
type State int32

const (
	Idle State = iota
	Streaming
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// underrunReportInterval bounds how often the render loop logs new underruns.
const underrunReportInterval = 2 * time.Second

// StreamConfig is the per-session stream setup passed to Start.
type StreamConfig struct {
	SampleRate      float64
	FramesPerBuffer int
	InputChannels   int
	OutputChannels  int
	InputDevice     int
	OutputDevice    int
	LowLatency      bool

	// PrefillBlocks silent blocks are queued for playback before the device
	// starts, giving the render loop that much headroom.
	PrefillBlocks int
	// QueueDepth is the capacity, in blocks, of each queue.
	QueueDepth int
}

func (c StreamConfig) validate(maxIR int) error {
	switch {
	case c.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	case c.FramesPerBuffer <= 0:
		return fmt.Errorf("%w: frames per buffer must be positive", ErrInvalidConfig)
	case c.InputChannels < 1:
		return fmt.Errorf("%w: at least one input channel is required", ErrInvalidConfig)
	case c.OutputChannels != 2:
		return fmt.Errorf("%w: output must be stereo, got %d channels", ErrInvalidConfig, c.OutputChannels)
	case c.QueueDepth < 1:
		return fmt.Errorf("%w: queue depth must be at least 1", ErrInvalidConfig)
	case c.PrefillBlocks < 0 || c.PrefillBlocks > c.QueueDepth:
		return fmt.Errorf("%w: prefill %d outside [0, %d]", ErrInvalidConfig, c.PrefillBlocks, c.QueueDepth)
	case maxIR > c.FramesPerBuffer:
		return fmt.Errorf("%w: block of %d frames is shorter than the longest impulse response (%d taps)",
			ErrInvalidConfig, c.FramesPerBuffer, maxIR)
	}
	return nil
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Session   string
	State     State
	Underruns uint64 // playback blocks replaced by silence
	Overflows uint64 // captured blocks dropped on a full queue
	Rendered  uint64 // blocks handed to the playback queue
	Gated     uint64 // rendered blocks silenced by the input gate
	// Resolution is the most recent resolution used by the render loop, or
	// nil before the first block.
	Resolution *hrtf.Resolution
}

// Pipeline is the full-duplex streaming renderer.
type Pipeline struct {
	store     *hrtf.Store
	device    Device
	direction *DirectionHandle

	mu      sync.Mutex // serializes Start and Stop
	state   atomic.Int32
	session uuid.UUID
	cfg     StreamConfig
	stream  Stream
	cancel  context.CancelFunc
	loop    chan struct{} // closed when the render loop returns
	done    chan struct{} // closed when the session has been torn down

	capture  *BlockQueue
	playback *BlockQueue
	renderer *render.Renderer

	underruns atomic.Uint64
	overflows atomic.Uint64
	rendered  atomic.Uint64
	gated     atomic.Uint64
	current   atomic.Pointer[hrtf.Resolution]

	// Input gate.
	gateEnabled   atomic.Bool
	gateThreshold atomic.Uint64 // math.Float64bits of the peak threshold

	recorder atomic.Pointer[Recorder]
}

// NewPipeline creates an idle pipeline. The direction handle is shared with
// whatever controls the source position; the pipeline only reads it.
func NewPipeline(store *hrtf.Store, device Device, direction *DirectionHandle) *Pipeline {
	if direction == nil {
		direction = NewDirectionHandle(hrtf.Direction{})
	}
	return &Pipeline{
		store:     store,
		device:    device,
		direction: direction,
	}
}

// State returns the current lifecycle phase.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Direction returns the shared direction handle.
func (p *Pipeline) Direction() *DirectionHandle { return p.direction }

// SetDirection publishes a new source direction. It may be called from any
// goroutine at any time, including while streaming.
func (p *Pipeline) SetDirection(elevation, azimuth float64) {
	p.direction.Set(elevation, azimuth)
}

// Done is closed once the session has ended and the device is released,
// whether through Stop, cancellation of the Start context or a render
// failure. It is nil before Start.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats()
}

func (p *Pipeline) stats() Stats {
	s := Stats{
		State:      p.State(),
		Underruns:  p.underruns.Load(),
		Overflows:  p.overflows.Load(),
		Rendered:   p.rendered.Load(),
		Gated:      p.gated.Load(),
		Resolution: p.current.Load(),
	}
	if p.session != uuid.Nil {
		s.Session = p.session.String()
	}
	return s
}

// Start validates the configuration, pre-allocates all buffers, queues the
// prefill, opens the device and starts streaming. It returns once the device
// is running. Cancelling ctx ends the session as Stop would: the pipeline
// drains, releases the device and finalizes any recording.
//
// A failed Start leaves the pipeline Closed with the device released.
func (p *Pipeline) Start(ctx context.Context, cfg StreamConfig) (err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != Idle {
		return ErrNotIdle
	}
	if p.store == nil || p.device == nil {
		return fmt.Errorf("%w: pipeline needs a dataset and a device", ErrInvalidConfig)
	}
	if err := cfg.validate(p.store.MaxLength()); err != nil {
		return err
	}
	// Both ears must be resolvable before any audio flows.
	dir := p.direction.Get()
	if _, err := p.store.Resolve(dir.Elevation, dir.Azimuth); err != nil {
		return err
	}

	renderer, err := render.NewRenderer(cfg.FramesPerBuffer, p.store.MaxLength())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	p.cfg = cfg
	p.session = uuid.New()
	p.renderer = renderer
	p.capture = NewBlockQueue(cfg.QueueDepth, cfg.FramesPerBuffer*cfg.InputChannels)
	p.playback = NewBlockQueue(cfg.QueueDepth, cfg.FramesPerBuffer*cfg.OutputChannels)

	silence := make([]float32, p.playback.BlockLen())
	for range cfg.PrefillBlocks {
		p.playback.TryPush(silence)
	}

	defer func() {
		if err != nil {
			p.state.Store(int32(Closed))
		}
	}()

	stream, err := p.device.Open(StreamParams{
		SampleRate:      cfg.SampleRate,
		FramesPerBuffer: cfg.FramesPerBuffer,
		InputChannels:   cfg.InputChannels,
		OutputChannels:  cfg.OutputChannels,
		InputDevice:     cfg.InputDevice,
		OutputDevice:    cfg.OutputDevice,
		LowLatency:      cfg.LowLatency,
	}, p.process)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}
	p.stream = stream

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.loop = make(chan struct{})
	p.done = make(chan struct{})
	go p.renderLoop(loopCtx, p.loop)
	go p.closeOnExit(p.loop)

	if err := stream.Start(); err != nil {
		cancel()
		<-p.loop
		if cerr := stream.Close(); cerr != nil {
			logger.Warnf("closing stream after failed start: %v", cerr)
		}
		p.stream = nil
		close(p.done)
		return fmt.Errorf("%w: %w", ErrDeviceOpen, err)
	}

	p.state.Store(int32(Streaming))
	logger.Infof("session %s streaming: %.0f Hz, %d frames/block, %d in / %d out, prefill %d of %d",
		p.session, cfg.SampleRate, cfg.FramesPerBuffer, cfg.InputChannels, cfg.OutputChannels,
		cfg.PrefillBlocks, cfg.QueueDepth)
	return nil
}

// Stop ends the session: the render loop is cancelled and joined, the device
// is stopped and closed, and any recording is finalized. The pipeline ends
// Closed on every path. Stop is idempotent.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case Closed:
		return nil
	case Idle:
		p.state.Store(int32(Closed))
		return nil
	}
	return p.teardown()
}

// closeOnExit tears the session down when the render loop returns without
// Stop having been called.
func (p *Pipeline) closeOnExit(loop <-chan struct{}) {
	<-loop
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.State() != Streaming {
		return
	}
	if err := p.teardown(); err != nil {
		logger.Warnf("session %s: %v", p.session, err)
	}
}

// teardown drains a streaming session and releases the device. p.mu must be
// held.
func (p *Pipeline) teardown() error {
	p.state.Store(int32(Draining))
	defer func() {
		p.state.Store(int32(Closed))
		close(p.done)
	}()

	p.cancel()
	<-p.loop

	var errs []error
	if p.stream != nil {
		if err := p.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping stream: %w", err))
		}
		if err := p.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing stream: %w", err))
		}
		p.stream = nil
	}
	if err := p.StopRecording(); err != nil {
		errs = append(errs, err)
	}

	st := p.stats()
	logger.Infof("session %s closed: %d rendered, %d gated, %d underruns, %d overflows",
		p.session, st.Rendered, st.Gated, st.Underruns, st.Overflows)
	return errors.Join(errs...)
}

// process is the device callback.
// Performance Critical (Hot Path):
// - No allocations, locks, or logging
// - Never waits on the render loop
func (p *Pipeline) process(in, out []float32) {
	if len(in) > 0 && !p.capture.TryPush(in) {
		p.overflows.Add(1)
	}
	if !p.playback.TryPop(out) {
		clear(out)
		p.underruns.Add(1)
	}
}

// renderLoop consumes captured blocks in order and produces one rendered
// block for each. It suspends on an empty capture queue or a full playback
// queue and exits on cancellation.
func (p *Pipeline) renderLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	frames := p.cfg.FramesPerBuffer
	channels := p.cfg.InputChannels
	captured := make([]float32, frames*channels)
	mono := make([]float64, frames)
	out := make([]float32, frames*p.cfg.OutputChannels)

	var (
		last       hrtf.Direction
		published  bool
		reported   uint64
		lastReport time.Time
	)

	for {
		if err := p.capture.Pop(ctx, captured); err != nil {
			return
		}

		// The direction is sampled once per block, so a block never mixes
		// two directions.
		dir := p.direction.Get()
		res, err := p.store.Resolve(dir.Elevation, dir.Azimuth)
		if err != nil {
			// Unreachable for a store that resolved at Start.
			logger.Errorf("resolving %+v: %v", dir, err)
			return
		}
		if !published || dir != last {
			snapshot := res
			p.current.Store(&snapshot)
			last, published = dir, true
			logger.Debugf("direction (%.1f, %.1f) -> L (%d, %d) R (%d, %d)",
				dir.Elevation, dir.Azimuth, res.LeftElevation, res.LeftAzimuth,
				res.RightElevation, res.RightAzimuth)
		}

		downmix(mono, captured, channels)

		if p.gateOpen(mono) {
			if err := p.renderer.RenderSameInto(out, mono, &res); err != nil {
				logger.Errorf("rendering block: %v", err)
				return
			}
		} else {
			clear(out)
			p.gated.Add(1)
		}

		if rec := p.recorder.Load(); rec != nil {
			if err := rec.Write(out); err != nil {
				logger.Errorf("recording: %v", err)
				p.recorder.CompareAndSwap(rec, nil)
				_ = rec.Close()
			}
		}

		if err := p.playback.Push(ctx, out); err != nil {
			return
		}
		p.rendered.Add(1)

		if u := p.underruns.Load(); u != reported && time.Since(lastReport) >= underrunReportInterval {
			logger.Warnf("%d playback underruns (%d new)", u, u-reported)
			reported, lastReport = u, time.Now()
		}
	}
}

// downmix averages interleaved frames into mono.
func downmix(dst []float64, interleaved []float32, channels int) {
	if channels == 1 {
		for i := range dst {
			dst[i] = float64(interleaved[i])
		}
		return
	}
	scale := 1 / float64(channels)
	for i := range dst {
		var sum float64
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += float64(s)
		}
		dst[i] = sum * scale
	}
}
