//go:build linux

package drm

import "unsafe"

// Compile-time struct size assertions.
var (
	_ [68]byte  = [unsafe.Sizeof(ModeInfo{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(sysResources{})]byte{}
	_ [104]byte = [unsafe.Sizeof(sysCrtc{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(sysGetEncoder{})]byte{}
	_ [80]byte  = [unsafe.Sizeof(sysGetConnector{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(sysGetProperty{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(sysGetPlaneResources{})]byte{}
	_ [32]byte  = [unsafe.Sizeof(sysGetPlane{})]byte{}
	_ [104]byte = [unsafe.Sizeof(sysFBCmd2{})]byte{}
	_ [32]byte  = [unsafe.Sizeof(sysObjGetProperties{})]byte{}
	_ [56]byte  = [unsafe.Sizeof(sysAtomic{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(sysCreateBlob{})]byte{}
	_ [32]byte  = [unsafe.Sizeof(sysCreateDumb{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(sysMapDumb{})]byte{}
	_ [12]byte  = [unsafe.Sizeof(sysPrimeHandle{})]byte{}
	_ [16]byte  = [unsafe.Sizeof(sysGetCap{})]byte{}
	_ [8]byte   = [unsafe.Sizeof(sysGemClose{})]byte{}
	_ [32]byte  = [unsafe.Sizeof(sysEventVblank{})]byte{}
)

// IOCTL constants ('d' base).
const (
	ioctlGemClose            = 0x40086409
	ioctlGetCap              = 0xc010640c
	ioctlSetClientCap        = 0x4010640d
	ioctlPrimeHandleToFD     = 0xc00c642d
	ioctlPrimeFDToHandle     = 0xc00c642e
	ioctlModeGetResources    = 0xc04064a0
	ioctlModeGetCrtc         = 0xc06864a1
	ioctlModeGetEncoder      = 0xc01464a6
	ioctlModeGetConnector    = 0xc05064a7
	ioctlModeGetProperty     = 0xc04064aa
	ioctlModeRmFB            = 0xc00464af
	ioctlModeCreateDumb      = 0xc02064b2
	ioctlModeMapDumb         = 0xc01064b3
	ioctlModeDestroyDumb     = 0xc00464b4
	ioctlModeGetPlaneRes     = 0xc01064b5
	ioctlModeGetPlane        = 0xc02064b6
	ioctlModeAddFB2          = 0xc06864b8
	ioctlModeObjGetProps     = 0xc02064b9
	ioctlModeAtomic          = 0xc03864bc
	ioctlModeCreatePropBlob  = 0xc01064bd
	ioctlModeDestroyPropBlob = 0xc00464be
)

const (
	displayModeLen = 32
	propNameLen    = 32
)

type sysResources struct {
	fbIDPtr         uint64
	crtcIDPtr       uint64
	connectorIDPtr  uint64
	encoderIDPtr    uint64
	countFbs        uint32
	countCrtcs      uint32
	countConnectors uint32
	countEncoders   uint32
	minWidth        uint32
	maxWidth        uint32
	minHeight       uint32
	maxHeight       uint32
}

type sysCrtc struct {
	setConnectorsPtr uint64
	countConnectors  uint32
	crtcID           uint32
	fbID             uint32
	x, y             uint32
	gammaSize        uint32
	modeValid        uint32
	mode             ModeInfo
}

type sysGetEncoder struct {
	encoderID      uint32
	encoderType    uint32
	crtcID         uint32
	possibleCrtcs  uint32
	possibleClones uint32
}

type sysGetConnector struct {
	encodersPtr     uint64
	modesPtr        uint64
	propsPtr        uint64
	propValuesPtr   uint64
	countModes      uint32
	countProps      uint32
	countEncoders   uint32
	encoderID       uint32
	connectorID     uint32
	connectorType   uint32
	connectorTypeID uint32
	connection      uint32
	mmWidth         uint32
	mmHeight        uint32
	subpixel        uint32
	_               uint32
}

type sysGetProperty struct {
	valuesPtr      uint64
	enumBlobPtr    uint64
	propID         uint32
	flags          uint32
	name           [propNameLen]byte
	countValues    uint32
	countEnumBlobs uint32
}

type sysPropertyEnum struct {
	value uint64
	name  [propNameLen]byte
}

type sysGetPlaneResources struct {
	planeIDPtr  uint64
	countPlanes uint32
	_           uint32
}

type sysGetPlane struct {
	planeID          uint32
	crtcID           uint32
	fbID             uint32
	possibleCrtcs    uint32
	gammaSize        uint32
	countFormatTypes uint32
	formatTypePtr    uint64
}

type sysFBCmd2 struct {
	fbID        uint32
	width       uint32
	height      uint32
	pixelFormat uint32
	flags       uint32
	handles     [4]uint32
	pitches     [4]uint32
	offsets     [4]uint32
	_           uint32 // keeps modifier 8-byte aligned on 32-bit
	modifier    [4]uint64
}

type sysObjGetProperties struct {
	propsPtr      uint64
	propValuesPtr uint64
	countProps    uint32
	objID         uint32
	objType       uint32
	_             uint32
}

type sysAtomic struct {
	flags         uint32
	countObjs     uint32
	objsPtr       uint64
	countPropsPtr uint64
	propsPtr      uint64
	propValuesPtr uint64
	reserved      uint64
	userData      uint64
}

type sysCreateBlob struct {
	data   uint64
	length uint32
	blobID uint32
}

type sysCreateDumb struct {
	height uint32
	width  uint32
	bpp    uint32
	flags  uint32
	handle uint32
	pitch  uint32
	size   uint64
}

type sysMapDumb struct {
	handle uint32
	_      uint32
	offset uint64
}

type sysPrimeHandle struct {
	handle uint32
	flags  uint32
	fd     int32
}

type sysGetCap struct {
	capability uint64
	value      uint64
}

type sysSetClientCap struct {
	capability uint64
	value      uint64
}

type sysGemClose struct {
	handle uint32
	_      uint32
}

type sysEventVblank struct {
	typ      uint32
	length   uint32
	userData uint64
	tvSec    uint32
	tvUsec   uint32
	sequence uint32
	crtcID   uint32
}
