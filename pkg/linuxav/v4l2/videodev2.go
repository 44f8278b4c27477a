//go:build linux

package v4l2

import "unsafe"

// Layouts shared by every architecture (fixed-width fields only).
var (
	_ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Fmtdesc{})]byte{}
	_ [44]byte  = [unsafe.Sizeof(v4l2Frmsizeenum{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2PlanePixFormat{})]byte{}
	_ [192]byte = [unsafe.Sizeof(v4l2PixFormatMplane{})]byte{}
	_ [20]byte  = [unsafe.Sizeof(v4l2Requestbuffers{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Exportbuffer{})]byte{}
)

// Size-independent ioctl numbers.
const (
	vidiocQuerycap       = 0x80685600
	vidiocEnumFmt        = 0xc0405602
	vidiocReqbufs        = 0xc0145608
	vidiocExpbuf         = 0xc0405610
	vidiocStreamon       = 0x40045612
	vidiocStreamoff      = 0x40045613
	vidiocEnumFramesizes = 0xc02c564a
)

// videoMaxPlanes is VIDEO_MAX_PLANES.
const videoMaxPlanes = 8

type v4l2Capability struct {
	driver       [16]byte  // offset 0
	card         [32]byte  // offset 16
	busInfo      [32]byte  // offset 48
	version      uint32    // offset 80
	capabilities uint32    // offset 84
	deviceCaps   uint32    // offset 88
	reserved     [3]uint32 // offset 92
}

type v4l2Fmtdesc struct {
	index       uint32    // offset 0
	typ         uint32    // offset 4
	flags       uint32    // offset 8
	description [32]byte  // offset 12
	pixelformat uint32    // offset 44
	mbusCode    uint32    // offset 48
	reserved    [3]uint32 // offset 52
}

// v4l2Frmsizeenum carries either a discrete size (u[0], u[1]) or a
// stepwise range (min_w, max_w, step_w, min_h, max_h, step_h) in u.
type v4l2Frmsizeenum struct {
	index       uint32    // offset 0
	pixelFormat uint32    // offset 4
	typ         uint32    // offset 8
	u           [6]uint32 // offset 12
	reserved    [2]uint32 // offset 36
}

type v4l2PlanePixFormat struct {
	sizeimage    uint32
	bytesperline uint32
	reserved     [6]uint16
}

type v4l2PixFormatMplane struct {
	width        uint32                             // offset 0
	height       uint32                             // offset 4
	pixelformat  uint32                             // offset 8
	field        uint32                             // offset 12
	colorspace   uint32                             // offset 16
	planeFmt     [videoMaxPlanes]v4l2PlanePixFormat // offset 20
	numPlanes    uint8                              // offset 180
	flags        uint8                              // offset 181
	ycbcrEnc     uint8                              // offset 182
	quantization uint8                              // offset 183
	xferFunc     uint8                              // offset 184
	reserved     [7]uint8                           // offset 185
}

type v4l2Requestbuffers struct {
	count        uint32
	typ          uint32
	memory       uint32
	capabilities uint32
	flags        uint8
	reserved     [3]uint8
}

type v4l2Exportbuffer struct {
	typ      uint32
	index    uint32
	plane    uint32
	flags    uint32
	fd       int32
	reserved [11]uint32
}

// pixMplane views the format union as a multi-planar pixel format.
func (f *v4l2Format) pixMplane() *v4l2PixFormatMplane {
	return (*v4l2PixFormatMplane)(unsafe.Pointer(&f.fmt[0]))
}
