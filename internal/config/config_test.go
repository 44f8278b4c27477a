package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	CaptureDevice  string   `toml:"capture.device" env:"CAPTURE_DEVICE"`
	CaptureWidth   int      `toml:"capture.width" env:"CAPTURE_WIDTH"`
	CaptureEnabled bool     `toml:"capture.enabled" env:"CAPTURE_ENABLED"`
	DisplayColor   uint32   `toml:"display.color" env:"DISPLAY_COLOR"`
	DisplayDevices []string `toml:"display.devices" env:"DISPLAY_DEVICES"`
	LoopRatio      float64  `toml:"loop.ratio"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framepipe.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleConfig = `
[capture]
device = "/dev/video0"
width = 1280
enabled = true

[display]
color = "0xff0000"
devices = ["/dev/dri/card1", "/dev/dri/card0"]

[loop]
ratio = 2
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := testOptions{
		Config:         opts.Config,
		CaptureDevice:  "/dev/video0",
		CaptureWidth:   1280,
		CaptureEnabled: true,
		DisplayColor:   0xff0000,
		DisplayDevices: []string{"/dev/dri/card1", "/dev/dri/card0"},
		LoopRatio:      2,
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("LoadConfig() = %+v, want %+v", *opts, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("FRAMEPIPE_CAPTURE_DEVICE", "/dev/video11")
	t.Setenv("FRAMEPIPE_CAPTURE_WIDTH", "1920")
	t.Setenv("FRAMEPIPE_CAPTURE_ENABLED", "false")
	t.Setenv("FRAMEPIPE_DISPLAY_DEVICES", "/dev/dri/card0, ,/dev/dri/renderD128")

	opts := &testOptions{Config: writeFile(t, sampleConfig)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if opts.CaptureDevice != "/dev/video11" || opts.CaptureWidth != 1920 || opts.CaptureEnabled {
		t.Errorf("env did not override file: %+v", opts)
	}
	if want := []string{"/dev/dri/card0", "/dev/dri/renderD128"}; !reflect.DeepEqual(opts.DisplayDevices, want) {
		t.Errorf("DisplayDevices = %v, want %v", opts.DisplayDevices, want)
	}
	if opts.DisplayColor != 0xff0000 {
		t.Errorf("DisplayColor = %#x, want file value", opts.DisplayColor)
	}
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv("FRAMEPIPE_CAPTURE_DEVICE", "/dev/video11")

	opts := &testOptions{Config: writeFile(t, sampleConfig)}
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().StringVar(&opts.CaptureDevice, "capture-device", "", "")
	cmd.Flags().IntVar(&opts.CaptureWidth, "capture-width", 0, "")
	if err := cmd.Flags().Parse([]string{"--capture-device", "/dev/video2", "--capture-width", "640"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.CaptureDevice != "/dev/video2" || opts.CaptureWidth != 640 {
		t.Errorf("flags overwritten: %+v", opts)
	}
	if !opts.CaptureEnabled {
		t.Error("unflagged field not loaded from file")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), CaptureWidth: 1920}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.CaptureWidth != 1920 {
		t.Errorf("default changed to %d", opts.CaptureWidth)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     string
	}{
		{name: "invalid toml", content: "[capture\nwidth ="},
		{name: "wrong type", content: "[capture]\nwidth = true\n"},
		{name: "negative unsigned", content: "[display]\ncolor = -1\n"},
		{name: "bad env", content: "", env: "wide"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env != "" {
				t.Setenv("FRAMEPIPE_CAPTURE_WIDTH", tt.env)
			}
			opts := &testOptions{Config: writeFile(t, tt.content)}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("LoadConfig() error = nil, want error")
			}
		})
	}

	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig(non-pointer) error = nil")
	}
}

func TestFlagName(t *testing.T) {
	tests := map[string]string{
		"Config":             "config",
		"CaptureWidth":       "capture-width",
		"DisplayTestPattern": "display-test-pattern",
		"ServerCORSOrigin":   "server-cors-origin",
		"LEDEnabled":         "led-enabled",
		"DisplayGPU":         "display-gpu",
		"LoopPollTimeoutMs":  "loop-poll-timeout-ms",
	}
	for in, want := range tests {
		if got := flagName(in); got != want {
			t.Errorf("flagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLoadLogging(t *testing.T) {
	path := writeFile(t, `
[logging]
level = "warn"
format = "json"
capture = "debug"

[logging.modules]
display = "error"
`)

	cfg, err := LoadLogging(path)
	if err != nil {
		t.Fatalf("LoadLogging() error = %v", err)
	}
	if cfg.Level != "warn" || cfg.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}
	want := map[string]string{"capture": "debug", "display": "error"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}

	cfg, err = LoadLogging("")
	if err != nil || cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("LoadLogging(\"\") = %+v, %v", cfg, err)
	}
}
