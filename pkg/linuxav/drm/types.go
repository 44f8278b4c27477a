//go:build linux

package drm

import (
	"bytes"
	"unsafe"
)

// Mode type flags.
const (
	ModeTypePreferred = 1 << 3
	ModeTypeDriver    = 1 << 6
)

// ModeInfo mirrors struct drm_mode_modeinfo.
type ModeInfo struct {
	Clock      uint32
	Hdisplay   uint16
	HsyncStart uint16
	HsyncEnd   uint16
	Htotal     uint16
	Hskew      uint16
	Vdisplay   uint16
	VsyncStart uint16
	VsyncEnd   uint16
	Vtotal     uint16
	Vscan      uint16
	Vrefresh   uint32
	Flags      uint32
	Type       uint32
	RawName    [displayModeLen]byte
}

// Name returns the mode name, e.g. "1920x1080".
func (m *ModeInfo) Name() string {
	name, _, _ := bytes.Cut(m.RawName[:], []byte{0})
	return string(name)
}

// Preferred reports whether the connector flags this mode as preferred.
func (m *ModeInfo) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

// Bytes returns the raw kernel representation, used as a property blob.
func (m *ModeInfo) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(m)), unsafe.Sizeof(*m))
}

// Resources lists the mode objects of a card.
type Resources struct {
	Fbs        []uint32
	Crtcs      []uint32
	Connectors []uint32
	Encoders   []uint32
	MinWidth   uint32
	MaxWidth   uint32
	MinHeight  uint32
	MaxHeight  uint32
}

// Connector describes a display output.
type Connector struct {
	ID         uint32
	EncoderID  uint32
	Type       uint32
	TypeID     uint32
	Connection uint32
	MMWidth    uint32
	MMHeight   uint32
	Modes      []ModeInfo
	Encoders   []uint32
}

// IsConnected reports whether a sink is attached.
func (c *Connector) IsConnected() bool {
	return c.Connection == Connected
}

// Encoder describes an encoder and the CRTCs it can drive.
type Encoder struct {
	ID             uint32
	Type           uint32
	CrtcID         uint32
	PossibleCrtcs  uint32
	PossibleClones uint32
}

// Crtc describes a scanout engine.
type Crtc struct {
	ID        uint32
	FbID      uint32
	X, Y      uint32
	GammaSize uint32
	ModeValid bool
	Mode      ModeInfo
}

// Plane describes a hardware plane.
type Plane struct {
	ID            uint32
	CrtcID        uint32
	FbID          uint32
	PossibleCrtcs uint32
	GammaSize     uint32
	Formats       []uint32
}

// Property is the metadata of a mode object property.
type Property struct {
	ID     uint32
	Name   string
	Flags  uint32
	Values []uint64
	Enums  []PropertyEnum
}

// PropertyEnum is one named value of an enum property.
type PropertyEnum struct {
	Value uint64
	Name  string
}

// ObjectProperties holds the property ids and current values of an object.
type ObjectProperties struct {
	ObjectID   uint32
	ObjectType uint32
	Props      []uint32
	Values     []uint64
}

// DumbBuffer is a CPU-mappable scanout buffer.
type DumbBuffer struct {
	Handle uint32
	Width  uint32
	Height uint32
	Bpp    uint32
	Pitch  uint32
	Size   uint64
}

// FramebufferCmd is the input to AddFB2.
type FramebufferCmd struct {
	Width       uint32
	Height      uint32
	PixelFormat uint32
	Flags       uint32
	Handles     [4]uint32
	Pitches     [4]uint32
	Offsets     [4]uint32
	Modifiers   [4]uint64
}
