package cmd

import (
	"binaural/internal/config"
	"binaural/internal/log"
	"binaural/pkg/build"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Commands selected by ParseArgs. The empty command streams.
const (
	CommandStream  = ""
	CommandList    = "list"
	CommandDevices = "devices"
	CommandResolve = "resolve"
	CommandRender  = "render"
	CommandPlay    = "play"
)

// Options is the result of parsing the command line: the merged
// configuration and the command to run.
type Options struct {
	Config     *config.Config
	ConfigPath string
	Command    string
	Args       []string // positional arguments of the command
	Record     bool
	Verbose    bool
}

// flagValues receives flag values before they are merged over the config.
type flagValues struct {
	dataset        string
	sampleRate     float64
	elevation      float64
	azimuth        float64
	inputDevice    int
	outputDevice   int
	frames         int
	inputChannels  int
	lowLatency     bool
	prefill        int
	queueDepth     int
	gate           float64
	outputDir      string
	websocketAddr  string
	udpTarget      string
	recordBitDepth int
}

// ParseArgs parses args (without the program name), loads the configuration
// file and applies every explicitly set flag on top of it.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	opts := &Options{}
	var fv flagValues

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			applyFlags(cmd.Flags(), &fv, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts.Config = cfg
			return configureLogging(cfg.LogLevel, opts.Verbose)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Command = CommandStream
			return nil
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	selects := func(name string) func(*cobra.Command, []string) {
		return func(_ *cobra.Command, args []string) {
			opts.Command = name
			opts.Args = args
		}
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List available audio devices",
			Args:  cobra.NoArgs,
			Run:   selects(CommandList),
		},
		&cobra.Command{
			Use:   "devices",
			Short: "Browse audio devices and print a config snippet for the chosen one",
			Args:  cobra.NoArgs,
			Run:   selects(CommandDevices),
		},
		&cobra.Command{
			Use:   "resolve",
			Short: "Show which measurements a direction resolves to",
			Args:  cobra.NoArgs,
			Run:   selects(CommandResolve),
		},
		&cobra.Command{
			Use:   "render <input.wav> <output.wav>",
			Short: "Render a clip binaurally to a stereo WAV file",
			Args:  cobra.ExactArgs(2),
			Run:   selects(CommandRender),
		},
		&cobra.Command{
			Use:   "play <input.wav>",
			Short: "Render a clip binaurally and play it",
			Args:  cobra.ExactArgs(1),
			Run:   selects(CommandPlay),
		},
	)

	defaults := config.Default()
	pf := rootCmd.PersistentFlags()

	pf.StringVarP(&opts.ConfigPath, "config", "C", "",
		"Configuration file (default: ./"+config.DefaultPath+" when present)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false,
		"Show verbose output")

	// Dataset and direction
	pf.StringVarP(&fv.dataset, "dataset", "D", defaults.HRTF.DatasetRoot,
		"HRTF dataset root containing full/elev<E>/")
	pf.Float64VarP(&fv.sampleRate, "sample-rate", "s", defaults.HRTF.SampleRate,
		"Sample rate of the dataset in Hz; the stream runs at this rate")
	pf.Float64VarP(&fv.elevation, "elevation", "e", defaults.HRTF.Elevation,
		"Source elevation in degrees (-40 to 90)")
	pf.Float64VarP(&fv.azimuth, "azimuth", "a", defaults.HRTF.Azimuth,
		"Source azimuth in degrees")

	// Audio Device Configuration
	pf.IntVarP(&fv.inputDevice, "input-device", "i", defaults.Audio.InputDevice,
		"Input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&fv.outputDevice, "output-device", "o", defaults.Audio.OutputDevice,
		"Output device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&fv.frames, "frames-per-buffer", "b", defaults.Audio.FramesPerBuffer,
		"Frames per block; must be at least the impulse response length")
	pf.IntVarP(&fv.inputChannels, "channels", "c", defaults.Audio.InputChannels,
		"Number of input channels to capture (mixed to mono)")
	pf.BoolVarP(&fv.lowLatency, "low-latency", "l", defaults.Audio.LowLatency,
		"Use low latency device settings")
	pf.IntVar(&fv.prefill, "prefill", defaults.Audio.PrefillBlocks,
		"Silent blocks queued before playback starts")
	pf.IntVar(&fv.queueDepth, "queue-depth", defaults.Audio.QueueDepth,
		"Capacity of the capture and playback queues, in blocks")
	pf.Float64Var(&fv.gate, "gate", defaults.Audio.GateThreshold,
		"Input peak below which blocks are silenced (0 disables)")

	// Recording Configuration
	pf.BoolVarP(&opts.Record, "record", "r", false,
		"Record the rendered output")
	pf.StringVar(&fv.outputDir, "output-dir", defaults.Recording.OutputDir,
		"Directory for recordings")
	pf.IntVar(&fv.recordBitDepth, "bit-depth", defaults.Recording.BitDepth,
		"Bit depth of recordings and rendered files (16 or 24)")

	// Transport Configuration
	pf.StringVar(&fv.websocketAddr, "websocket", "",
		"Enable the WebSocket direction control on this address (e.g. :8080)")
	pf.StringVar(&fv.udpTarget, "udp", "",
		"Enable UDP telemetry to this address (e.g. 127.0.0.1:9090)")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return opts, nil
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(fs *pflag.FlagSet, fv *flagValues, cfg *config.Config, opts *Options) {
	set := fs.Changed
	if set("dataset") {
		cfg.HRTF.DatasetRoot = fv.dataset
	}
	if set("sample-rate") {
		cfg.HRTF.SampleRate = fv.sampleRate
	}
	if set("elevation") {
		cfg.HRTF.Elevation = fv.elevation
	}
	if set("azimuth") {
		cfg.HRTF.Azimuth = fv.azimuth
	}
	if set("input-device") {
		cfg.Audio.InputDevice = fv.inputDevice
	}
	if set("output-device") {
		cfg.Audio.OutputDevice = fv.outputDevice
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = fv.frames
	}
	if set("channels") {
		cfg.Audio.InputChannels = fv.inputChannels
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if set("prefill") {
		cfg.Audio.PrefillBlocks = fv.prefill
	}
	if set("queue-depth") {
		cfg.Audio.QueueDepth = fv.queueDepth
	}
	if set("gate") {
		cfg.Audio.GateThreshold = fv.gate
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = fv.outputDir
	}
	if set("bit-depth") {
		cfg.Recording.BitDepth = fv.recordBitDepth
	}
	if opts.Record {
		cfg.Recording.Enabled = true
	}
	if set("websocket") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddr = fv.websocketAddr
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = fv.udpTarget
	}
}

func configureLogging(level string, verbose bool) error {
	if verbose {
		log.SetLevel(log.LevelDebug)
		return nil
	}
	if level == "" {
		return nil
	}
	l, ok := log.ParseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}
	log.SetLevel(l)
	return nil
}
