package display

import (
	"fmt"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// DefaultDevices are probed in order when no device list is configured.
var DefaultDevices = []string{"/dev/dri/card0", "/dev/dri/card1", "/dev/dri/renderD128"}

// Config describes the display side of the pipeline.
type Config struct {
	// Devices are the candidate DRM nodes, probed in order.
	Devices []string
	// Format is the scanout format the primary plane must accept.
	Format string
	// TestPattern fills the initial framebuffer with Color. When false
	// Splash is shown instead, falling back to the pattern if it cannot be
	// loaded.
	TestPattern bool
	// Splash is an image file (PNG, JPEG, BMP, TIFF or WebP) scaled to the
	// mode.
	Splash string
	// Color is the test pattern color as 0xRRGGBB.
	Color uint32
	// GPU requires PRIME import so GPU-rendered buffers can be shown.
	GPU bool
}

// DefaultConfig returns a config for showing NV12 camera frames.
func DefaultConfig() Config {
	return Config{
		Devices:     DefaultDevices,
		Format:      "NV12",
		TestPattern: true,
		Color:       0x2060a0,
	}
}

// Validate checks the config before any device is opened.
func (c Config) Validate() error {
	if len(c.Devices) == 0 {
		return deverr.Configf("validate", "no display devices configured")
	}
	code, err := fourcc.Encode(c.Format)
	if err != nil {
		return deverr.New(deverr.KindConfiguration, "validate", "invalid display format", err)
	}
	if !code.Packed32() && code != fourcc.NV12 {
		return deverr.Configf("validate", "display format %s is not supported", code)
	}
	if c.Color > 0xffffff {
		return deverr.Configf("validate", "color %#x is not 0xRRGGBB", c.Color)
	}
	return nil
}

func (c Config) String() string {
	s := fmt.Sprintf("%s test_pattern=%t color=%06x gpu=%t", c.Format, c.TestPattern, c.Color, c.GPU)
	if !c.TestPattern && c.Splash != "" {
		s += " splash=" + c.Splash
	}
	return s
}
