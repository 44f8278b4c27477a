//go:build linux

package v4l2

import "time"

// Buffer types.
const (
	BufTypeVideoCapture       = 1
	BufTypeVideoCaptureMPlane = 9
)

// Memory types.
const (
	MemoryMMAP   = 1
	MemoryDMABUF = 4
)

// Capability flags.
const (
	CapVideoCapture       = 0x00000001
	CapVideoCaptureMPlane = 0x00001000
	CapStreaming          = 0x04000000
	CapDeviceCaps         = 0x80000000
)

// Format flags.
const (
	FmtFlagCompressed = 0x0001
	FmtFlagEmulated   = 0x0002
)

// Field orders.
const (
	FieldAny  = 0
	FieldNone = 1
)

// FrameSizeType is the shape of a frame size description.
type FrameSizeType uint32

// Frame size types.
const (
	FrameSizeDiscrete   FrameSizeType = 1
	FrameSizeContinuous FrameSizeType = 2
	FrameSizeStepwise   FrameSizeType = 3
)

func (t FrameSizeType) String() string {
	switch t {
	case FrameSizeDiscrete:
		return "discrete"
	case FrameSizeContinuous:
		return "continuous"
	case FrameSizeStepwise:
		return "stepwise"
	}
	return "unknown"
}

// DeviceInfo contains information about a V4L2 device.
type DeviceInfo struct {
	DevicePath string
	DeviceName string
	DeviceID   string // Stable identifier (from /dev/v4l/by-id/ or synthetic)
	Caps       uint32
}

// MultiPlanar reports whether the device captures through the MPLANE API.
func (d DeviceInfo) MultiPlanar() bool {
	return d.Caps&CapVideoCaptureMPlane != 0
}

// Capability is the result of VIDIOC_QUERYCAP.
type Capability struct {
	Driver       string
	Card         string
	BusInfo      string
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
}

// Effective returns the capabilities of the opened node, which are the
// device caps when the driver reports them.
func (c Capability) Effective() uint32 {
	if c.Capabilities&CapDeviceCaps != 0 {
		return c.DeviceCaps
	}
	return c.Capabilities
}

// Streaming reports support for the streaming I/O method.
func (c Capability) Streaming() bool {
	return c.Effective()&CapStreaming != 0
}

// CaptureMPlane reports multi-planar capture support.
func (c Capability) CaptureMPlane() bool {
	return c.Effective()&CapVideoCaptureMPlane != 0
}

// Capture reports single-planar capture support.
func (c Capability) Capture() bool {
	return c.Effective()&CapVideoCapture != 0
}

// FormatInfo contains information about a supported pixel format.
type FormatInfo struct {
	PixelFormat uint32
	FormatName  string
	Emulated    bool
	Compressed  bool
}

// FrameSize describes one entry of VIDIOC_ENUM_FRAMESIZES. Discrete sizes
// have equal min and max and zero steps.
type FrameSize struct {
	Type       FrameSizeType
	MinWidth   uint32
	MaxWidth   uint32
	StepWidth  uint32
	MinHeight  uint32
	MaxHeight  uint32
	StepHeight uint32
}

// Accepts reports whether width x height is a size this entry allows.
func (s FrameSize) Accepts(width, height uint32) bool {
	switch s.Type {
	case FrameSizeDiscrete:
		return width == s.MinWidth && height == s.MinHeight
	case FrameSizeStepwise:
		if !s.inRange(width, height) {
			return false
		}
		return onStep(width, s.StepWidth) && onStep(height, s.StepHeight)
	case FrameSizeContinuous:
		return s.inRange(width, height)
	}
	return false
}

func (s FrameSize) inRange(width, height uint32) bool {
	return width >= s.MinWidth && width <= s.MaxWidth &&
		height >= s.MinHeight && height <= s.MaxHeight
}

// onStep reports whether v is a multiple of step. The step is not offset
// by the minimum.
func onStep(v, step uint32) bool {
	if step == 0 {
		return true
	}
	return v%step == 0
}

// SizeSupported reports whether any entry accepts the size. An empty list
// means the driver does not enumerate sizes, so every size is accepted.
func SizeSupported(sizes []FrameSize, width, height uint32) bool {
	if len(sizes) == 0 {
		return true
	}
	for _, s := range sizes {
		if s.Accepts(width, height) {
			return true
		}
	}
	return false
}

// PlaneFormat is the per-plane layout of a multi-planar format.
type PlaneFormat struct {
	SizeImage    uint32
	BytesPerLine uint32
}

// PixFormatMPlane is the multi-planar pixel format exchanged with S_FMT.
type PixFormatMPlane struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Field       uint32
	Colorspace  uint32
	Planes      []PlaneFormat
}

// Plane is one memory plane of a queued or dequeued buffer.
type Plane struct {
	BytesUsed  uint32
	Length     uint32
	MemOffset  uint32
	DataOffset uint32
	FD         int32
}

// Buffer is a multi-planar buffer descriptor.
type Buffer struct {
	Index     uint32
	Type      uint32
	Memory    uint32
	Flags     uint32
	Field     uint32
	Sequence  uint32
	Timestamp time.Duration
	Planes    []Plane
}
