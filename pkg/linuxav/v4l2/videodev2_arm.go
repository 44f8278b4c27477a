//go:build linux && arm && !arm64

package v4l2

import (
	"time"
	"unsafe"
)

// Compile-time struct size assertions for 32-bit ARM.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [204]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [60]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [68]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants for 32-bit ARM. The format and buffer structs are
// smaller because pointers and longs are 4 bytes.
const (
	vidiocGFmt     = 0xc0cc5604
	vidiocSFmt     = 0xc0cc5605
	vidiocQuerybuf = 0xc0445609
	vidiocQbuf     = 0xc044560f
	vidiocDqbuf    = 0xc0445611
)

// v4l2Format has size 204 bytes.
type v4l2Format struct {
	typ uint32
	fmt [200]byte
}

// v4l2Plane has size 60 bytes.
type v4l2Plane struct {
	bytesused  uint32
	length     uint32
	m          uint32
	dataOffset uint32
	reserved   [11]uint32
}

// v4l2Buffer has size 68 bytes.
type v4l2Buffer struct {
	index     uint32
	typ       uint32
	bytesused uint32
	flags     uint32
	field     uint32
	timestamp timeval
	timecode  [16]byte
	sequence  uint32
	memory    uint32
	m         uint32
	length    uint32
	reserved2 uint32
	requestFd int32
}

type timeval struct {
	sec  int32
	usec int32
}

func (tv timeval) duration() time.Duration {
	return time.Duration(tv.sec)*time.Second + time.Duration(tv.usec)*time.Microsecond
}

func (b *v4l2Buffer) setPlanes(planes []v4l2Plane) {
	b.m = uint32(uintptr(unsafe.Pointer(&planes[0])))
	b.length = uint32(len(planes))
}

func (p *v4l2Plane) memOffset() uint32 { return p.m }
func (p *v4l2Plane) fd() int32         { return int32(p.m) }
func (p *v4l2Plane) setFd(fd int32)    { p.m = uint32(fd) }
