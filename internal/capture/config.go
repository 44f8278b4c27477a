package capture

import (
	"fmt"
	"strings"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// MemoryType selects how buffer memory reaches the application.
type MemoryType string

// Memory types.
const (
	// MemoryMMAP maps each plane into the process.
	MemoryMMAP MemoryType = "mmap"
	// MemoryDMABUF exports each plane as a DMA-BUF descriptor for
	// zero-copy import by another device.
	MemoryDMABUF MemoryType = "dmabuf"
)

// ParseMemoryType parses "mmap" or "dmabuf", case-insensitively.
func ParseMemoryType(s string) (MemoryType, error) {
	switch MemoryType(strings.ToLower(strings.TrimSpace(s))) {
	case MemoryMMAP:
		return MemoryMMAP, nil
	case MemoryDMABUF:
		return MemoryDMABUF, nil
	}
	return "", deverr.Configf("parse memory type", "unknown memory type %q", s)
}

// Config describes the requested capture session.
type Config struct {
	Device  string
	Format  string
	Width   uint32
	Height  uint32
	Memory  MemoryType
	Buffers uint32
}

// DefaultConfig returns the settings for the on-board ISP node.
func DefaultConfig() Config {
	return Config{
		Device:  "/dev/video11",
		Format:  "NV12",
		Width:   1920,
		Height:  1080,
		Memory:  MemoryMMAP,
		Buffers: 5,
	}
}

// Validate checks the config before any device is touched.
func (c Config) Validate() error {
	if c.Device == "" {
		return deverr.Configf("validate", "device path is empty")
	}
	if _, err := fourcc.Encode(c.Format); err != nil {
		return deverr.New(deverr.KindConfiguration, "validate", "invalid pixel format", err)
	}
	if c.Width == 0 || c.Height == 0 {
		return deverr.Configf("validate", "invalid frame size %dx%d", c.Width, c.Height)
	}
	if c.Buffers == 0 {
		return deverr.Configf("validate", "buffer count must be at least 1")
	}
	if c.Memory != MemoryMMAP && c.Memory != MemoryDMABUF {
		return deverr.Configf("validate", "unknown memory type %q", c.Memory)
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("%s %s %dx%d %s x%d", c.Device, c.Format, c.Width, c.Height, c.Memory, c.Buffers)
}
