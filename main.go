package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/framepipe/cmd"
	"github.com/smazurov/framepipe/internal/capture"
	"github.com/smazurov/framepipe/internal/config"
	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/internal/display"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/internal/pipeline"
	"github.com/spf13/cobra"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"/etc/framepipe/config.toml"`

	// Capture settings
	CaptureEnabled bool   `help:"Capture from the camera; false shows the test pattern only" default:"true" toml:"capture.enabled" env:"CAPTURE_ENABLED"`
	CaptureDevice  string `help:"V4L2 capture node" default:"/dev/video11" toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureFormat  string `help:"Capture pixel format fourcc" default:"NV12" toml:"capture.format" env:"CAPTURE_FORMAT"`
	CaptureWidth   int    `help:"Capture width" default:"1920" toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureHeight  int    `help:"Capture height" default:"1080" toml:"capture.height" env:"CAPTURE_HEIGHT"`
	CaptureMemory  string `help:"Buffer memory: mmap copies into scanout buffers, dmabuf imports without copy" default:"mmap" toml:"capture.memory" env:"CAPTURE_MEMORY"`
	CaptureBuffers int    `help:"Buffers to request from the driver" default:"5" toml:"capture.buffers" env:"CAPTURE_BUFFERS"`

	// Display settings
	DisplayDevices     string `help:"Comma-separated DRM nodes probed in order" default:"/dev/dri/card0,/dev/dri/card1,/dev/dri/renderD128" toml:"display.devices" env:"DISPLAY_DEVICES"`
	DisplayFormat      string `help:"Scanout format" default:"NV12" toml:"display.format" env:"DISPLAY_FORMAT"`
	DisplayTestPattern bool   `help:"Show a solid test pattern until the first frame" default:"true" toml:"display.test_pattern" env:"DISPLAY_TEST_PATTERN"`
	DisplaySplash      string `help:"Image shown until the first frame when the test pattern is off" default:"" toml:"display.splash" env:"DISPLAY_SPLASH"`
	DisplayColor       string `help:"Test pattern color as 0xRRGGBB or #RRGGBB" default:"0x2060a0" toml:"display.color" env:"DISPLAY_COLOR"`
	DisplayGPU         bool   `help:"Require a node that can import GPU buffers" default:"false" toml:"display.gpu" env:"DISPLAY_GPU"`

	// Loop settings
	LoopPollTimeoutMs     int `help:"Display event wait in milliseconds" default:"100" toml:"loop.poll_timeout_ms" env:"LOOP_POLL_TIMEOUT_MS"`
	LoopShutdownTimeoutMs int `help:"Wait for a pending flip on shutdown, in milliseconds" default:"500" toml:"loop.shutdown_timeout_ms" env:"LOOP_SHUTDOWN_TIMEOUT_MS"`

	// Server settings
	ServerEnabled    bool   `help:"Serve the status API" default:"true" toml:"server.enabled" env:"SERVER_ENABLED"`
	ServerListen     string `help:"API listen address" default:":8091" toml:"server.listen" env:"SERVER_LISTEN"`
	ServerCORSOrigin string `help:"Access-Control-Allow-Origin for the API" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`
	ServerMetrics    bool   `help:"Expose Prometheus metrics at /metrics" default:"true" toml:"server.metrics" env:"SERVER_METRICS"`
	ServerUnit       string `help:"systemd unit controllable through the API, empty to disable" default:"framepipe.service" toml:"server.unit" env:"SERVER_UNIT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username, empty disables auth" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// LED settings
	LEDEnabled bool   `help:"Show pipeline state on a board LED" default:"false" toml:"led.enabled" env:"LED_ENABLED"`
	LEDName    string `help:"Logical LED to drive" default:"system" toml:"led.name" env:"LED_NAME"`

	// Hotplug
	Hotplug bool `help:"Stop when the capture or display device is unplugged" default:"true" toml:"hotplug.enabled" env:"HOTPLUG_ENABLED"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingCapture  string `help:"Capture logging level" default:"" toml:"logging.capture" env:"LOGGING_CAPTURE"`
	LoggingDisplay  string `help:"Display logging level" default:"" toml:"logging.display" env:"LOGGING_DISPLAY"`
	LoggingPipeline string `help:"Pipeline logging level" default:"" toml:"logging.pipeline" env:"LOGGING_PIPELINE"`
	LoggingAPI      string `help:"API logging level" default:"" toml:"logging.api" env:"LOGGING_API"`
}

func parseColor(s string) (uint32, error) {
	s = strings.TrimSpace(s)
	base := 0
	if rest, ok := strings.CutPrefix(s, "#"); ok {
		s, base = rest, 16
	}
	v, err := strconv.ParseUint(s, base, 32)
	if err != nil {
		return 0, deverr.Configf("parse color", "invalid color %q", s)
	}
	return uint32(v), nil
}

func nonNegative(name string, v int) (uint32, error) {
	if v < 0 {
		return 0, deverr.Configf("parse options", "%s must not be negative", name)
	}
	return uint32(v), nil
}

func (o *Options) displayConfig() (display.Config, error) {
	cfg := display.DefaultConfig()
	if list := config.SplitList(o.DisplayDevices); len(list) > 0 {
		cfg.Devices = list
	}
	cfg.Format = o.DisplayFormat
	cfg.TestPattern = o.DisplayTestPattern
	cfg.Splash = o.DisplaySplash
	cfg.GPU = o.DisplayGPU
	color, err := parseColor(o.DisplayColor)
	if err != nil {
		return cfg, err
	}
	cfg.Color = color
	return cfg, nil
}

func (o *Options) runConfig() (cmd.RunConfig, error) {
	memory, err := capture.ParseMemoryType(o.CaptureMemory)
	if err != nil {
		return cmd.RunConfig{}, err
	}
	width, errW := nonNegative("capture width", o.CaptureWidth)
	height, errH := nonNegative("capture height", o.CaptureHeight)
	buffers, errB := nonNegative("capture buffers", o.CaptureBuffers)
	disp, errD := o.displayConfig()
	if err := errors.Join(errW, errH, errB, errD); err != nil {
		return cmd.RunConfig{}, err
	}

	loop := pipeline.DefaultConfig()
	loop.PollTimeout = time.Duration(o.LoopPollTimeoutMs) * time.Millisecond
	loop.ShutdownTimeout = time.Duration(o.LoopShutdownTimeoutMs) * time.Millisecond

	return cmd.RunConfig{
		ConfigPath:     o.Config,
		CaptureEnabled: o.CaptureEnabled,
		Capture: capture.Config{
			Device:  o.CaptureDevice,
			Format:  o.CaptureFormat,
			Width:   width,
			Height:  height,
			Memory:  memory,
			Buffers: buffers,
		},
		Display:       disp,
		Loop:          loop,
		ServerEnabled: o.ServerEnabled,
		Listen:        o.ServerListen,
		CORSOrigin:    o.ServerCORSOrigin,
		AuthUsername:  o.AuthUsername,
		AuthPassword:  o.AuthPassword,
		Metrics:       o.ServerMetrics,
		LEDEnabled:    o.LEDEnabled,
		LEDName:       o.LEDName,
		Unit:          o.ServerUnit,
		Hotplug:       o.Hotplug,
	}, nil
}

func (o *Options) loggingConfig() logging.Config {
	modules := map[string]string{}
	for name, level := range map[string]string{
		"capture":  o.LoggingCapture,
		"display":  o.LoggingDisplay,
		"pipeline": o.LoggingPipeline,
		"api":      o.LoggingAPI,
	} {
		if level != "" {
			modules[name] = level
		}
	}
	// Module levels from [logging.modules] in the file, when present.
	if fileCfg, err := config.LoadLogging(o.Config); err == nil {
		for name, level := range fileCfg.Modules {
			if _, set := modules[name]; !set {
				modules[name] = level
			}
		}
	}
	return logging.Config{Level: o.LoggingLevel, Format: o.LoggingFormat, Modules: modules}
}

func main() {
	var cli humacli.CLI
	var options *Options

	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		options = opts
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}
		logging.Initialize(opts.loggingConfig())
		logger := logging.GetLogger("main")

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			runCfg, err := opts.runConfig()
			if err == nil {
				err = runCfg.Validate()
			}
			if err != nil {
				logger.Error("Invalid configuration", "error", err)
				os.Exit(cmd.ExitConfig)
			}
			if err := cmd.Run(ctx, runCfg); err != nil {
				logger.Error("Pipeline failed", "error", err, "kind", deverr.KindOf(err))
				os.Exit(cmd.ExitCode(err))
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancel()
			<-done
		})
	})

	root := cli.Root()
	root.Use = "framepipe"
	root.Short = "Show V4L2 camera frames on a DRM/KMS display"

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the capture to display pipeline (the default)",
		Args:  cobra.NoArgs,
		Run: func(c *cobra.Command, args []string) {
			root.Run(c, args)
		},
	})
	root.AddCommand(cmd.CreateDevicesCmd())
	root.AddCommand(cmd.CreateProbeDisplayCmd(func() (display.Config, error) {
		if options == nil {
			return display.Config{}, fmt.Errorf("options not parsed")
		}
		return options.displayConfig()
	}))
	root.AddCommand(cmd.CreateVersionCmd())

	cli.Run()
}
