// Package cmd holds the framepipe subcommands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/smazurov/framepipe/internal/api"
	"github.com/smazurov/framepipe/internal/capture"
	"github.com/smazurov/framepipe/internal/config"
	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/internal/display"
	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/led"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/internal/metrics/collectors"
	"github.com/smazurov/framepipe/internal/metrics/exporters"
	"github.com/smazurov/framepipe/internal/pipeline"
	"github.com/smazurov/framepipe/internal/systemd"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
	"github.com/smazurov/framepipe/pkg/linuxav/hotplug"
)

// RunConfig is the resolved configuration of the run command.
type RunConfig struct {
	// ConfigPath is watched for logging changes when it exists.
	ConfigPath string

	CaptureEnabled bool
	Capture        capture.Config
	Display        display.Config
	Loop           pipeline.Config

	ServerEnabled bool
	Listen        string
	CORSOrigin    string
	AuthUsername  string
	AuthPassword  string
	Metrics       bool

	LEDEnabled bool
	LEDName    string

	// Unit is the systemd unit exposed through the API. Empty disables
	// service control.
	Unit    string
	Hotplug bool
}

// Validate checks every section before any device is opened.
func (c RunConfig) Validate() error {
	var errs []error
	if c.CaptureEnabled {
		errs = append(errs, c.Capture.Validate(), c.checkFormats())
	}
	errs = append(errs, c.Display.Validate())
	if c.Loop.PollTimeout <= 0 {
		errs = append(errs, deverr.Configf("validate", "loop poll timeout must be positive"))
	}
	if c.Loop.ShutdownTimeout < 0 {
		errs = append(errs, deverr.Configf("validate", "loop shutdown timeout must not be negative"))
	}
	if c.ServerEnabled && c.Listen == "" {
		errs = append(errs, deverr.Configf("validate", "server listen address is empty"))
	}
	return errors.Join(errs...)
}

// checkFormats rejects capture and display formats the loop cannot join:
// camera frames reach the plane as NV12, copied from NV12 or NM12 slots or
// imported from them. Unparsable codes are left to the section checks.
func (c RunConfig) checkFormats() error {
	capFmt, errC := fourcc.Encode(c.Capture.Format)
	dispFmt, errD := fourcc.Encode(c.Display.Format)
	if errC != nil || errD != nil {
		return nil
	}
	var errs []error
	if capFmt != fourcc.NV12 && capFmt != fourcc.NM12 {
		errs = append(errs, deverr.Configf("validate", "capture format %s cannot be displayed, want NV12 or NM12", capFmt))
	}
	if dispFmt != fourcc.NV12 {
		errs = append(errs, deverr.Configf("validate", "display format %s cannot show camera frames, want NV12", dispFmt))
	}
	return errors.Join(errs...)
}

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// ExitCode maps a Run error to the process exit status: invalid
// configuration exits 2, any other failure 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, deverr.Configuration):
		return ExitConfig
	default:
		return ExitFailure
	}
}

// ErrDeviceRemoved is the cause of a run stopped by hotplug removal.
var ErrDeviceRemoved = errors.New("device removed")

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Run streams camera frames to the display until ctx is done or a device
// is unplugged.
func Run(ctx context.Context, cfg RunConfig) error {
	logger := logging.GetLogger("main")
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	bus := events.New()
	logging.SetEntryCallback(func(e logging.Entry) {
		bus.Publish(api.LogEvent(e))
	})
	defer logging.SetEntryCallback(nil)

	var disp *display.Device
	disp, err := display.New(cfg.Display,
		display.WithLogger(logging.GetLogger("display")),
		display.WithStateHook(func(from, to display.State) {
			bus.Publish(events.DisplayStateEvent{
				DevicePath: disp.Stats().Device,
				From:       string(from),
				To:         string(to),
				Scanning:   to.Scanning(),
				Timestamp:  timestamp(),
			})
		}),
	)
	if err != nil {
		return err
	}

	var source pipeline.Source
	if cfg.CaptureEnabled {
		cam, err := capture.New(cfg.Capture,
			capture.WithLogger(logging.GetLogger("capture")),
			capture.WithStateHook(func(from, to capture.State) {
				bus.Publish(events.CaptureStateEvent{
					DevicePath: cfg.Capture.Device,
					From:       string(from),
					To:         string(to),
					Timestamp:  timestamp(),
				})
			}),
		)
		if err != nil {
			return err
		}
		source = cam
	} else {
		logger.Info("Capture disabled, showing the test pattern only")
	}

	notifier := systemd.NewNotifier(logging.GetLogger("systemd"))
	cfg.Loop.Color = cfg.Display.Color
	if cfg.CaptureEnabled {
		cfg.Loop.Memory = cfg.Capture.Memory
	}

	var loop *pipeline.Loop
	loop = pipeline.New(cfg.Loop, source, disp,
		pipeline.WithLogger(logging.GetLogger("pipeline")),
		pipeline.WithPublisher(bus),
		pipeline.WithReadyHook(func() {
			st := loop.Stats()
			notifier.Ready()
			notifier.Status("%s %s on %s", st.Display.Mode, cfg.Display.Format, st.Display.Device)
			if cfg.Hotplug {
				go watchRemovals(ctx, cancel, bus, logger, cfg.Capture.Device, st.Display.Device, cfg.CaptureEnabled)
			}
		}),
	)

	collector := collectors.NewPipelineCollector(loop.Metrics)
	collector.Start(ctx)
	defer collector.Stop()

	sseExporter := exporters.NewSSEExporter(bus)
	sseExporter.Start(ctx)
	defer sseExporter.Stop()

	go notifier.Watchdog(ctx, func() bool {
		st := loop.Stats()
		return !st.Running || st.Display.State.Scanning()
	})

	var ledCtrl led.Controller
	if cfg.LEDEnabled {
		ledCtrl = led.New(logging.GetLogger("led"))
		mgr := led.NewManager(ledCtrl, bus, cfg.LEDName, logging.GetLogger("led"))
		mgr.Start()
		defer mgr.Stop()
	}

	if cfg.ConfigPath != "" {
		if _, statErr := os.Stat(cfg.ConfigPath); statErr == nil {
			watcher, err := config.WatchLogging(cfg.ConfigPath, logger)
			if err != nil {
				logger.Warn("Config watcher unavailable, log levels will not reload", "error", err)
			} else {
				defer func() { _ = watcher.Stop() }()
			}
		}
	}

	if cfg.ServerEnabled {
		server := api.NewServer(serverOptions(ctx, cfg, bus, loop, ledCtrl, logger))
		go func() {
			if err := server.Start(cfg.Listen); err != nil {
				logger.Error("API server failed", "addr", cfg.Listen, "error", err)
			}
		}()
		defer func() { _ = server.Stop() }()
	}

	logger.Info("Starting pipeline", "capture", cfg.CaptureEnabled, "capture_config", cfg.Capture.String(), "display_config", cfg.Display.String())
	err = loop.Run(ctx)
	notifier.Stopping()

	if cause := context.Cause(ctx); errors.Is(cause, ErrDeviceRemoved) {
		return errors.Join(cause, err)
	}
	if err != nil {
		logger.Debug("Pipeline error detail", "detail", deverr.Detail(err))
	}
	return err
}

func serverOptions(ctx context.Context, cfg RunConfig, bus *events.Bus, loop *pipeline.Loop, leds led.Controller, logger *slog.Logger) *api.Options {
	opts := &api.Options{
		AuthUsername:  cfg.AuthUsername,
		AuthPassword:  cfg.AuthPassword,
		CORSOrigin:    cfg.CORSOrigin,
		EventBus:      bus,
		Pipeline:      loop,
		LEDController: leds,
	}
	if cfg.Metrics {
		opts.PrometheusHandler = exporters.HTTPHandler()
	}
	if cfg.Unit != "" {
		mgr, err := systemd.NewManager(ctx, cfg.Unit, true)
		if err != nil {
			logger.Debug("systemd bus unavailable, service routes disabled", "error", err)
		} else {
			go func() {
				<-ctx.Done()
				mgr.Close()
			}()
			opts.Service = mgr
		}
	}
	return opts
}

// watchRemovals cancels the run when the capture or display node goes
// away.
func watchRemovals(ctx context.Context, cancel context.CancelCauseFunc, bus *events.Bus, logger *slog.Logger, captureDev, displayDev string, withCapture bool) {
	paths := []string{displayDev}
	if withCapture {
		paths = append(paths, captureDev)
	}
	removals := hotplug.NewRemovals(paths...)
	err := removals.Watch(ctx, func(path string, ev hotplug.Event) {
		logger.Error("Device removed, stopping pipeline", "device", path, "subsystem", ev.Subsystem)
		bus.Publish(events.DeviceRemovedEvent{
			DevicePath: path,
			Subsystem:  ev.Subsystem,
			Timestamp:  timestamp(),
		})
		cancel(fmt.Errorf("%w: %s", ErrDeviceRemoved, path))
	})
	if err != nil {
		logger.Warn("Hotplug monitoring unavailable", "error", err)
	}
}
