//go:build linux && (amd64 || arm64)

package v4l2

import (
	"time"
	"unsafe"
)

// Compile-time struct size assertions.
// These will cause build failures if struct sizes don't match kernel expectations.
var (
	_ [208]byte = [unsafe.Sizeof(v4l2Format{})]byte{}
	_ [64]byte  = [unsafe.Sizeof(v4l2Plane{})]byte{}
	_ [88]byte  = [unsafe.Sizeof(v4l2Buffer{})]byte{}
)

// IOCTL constants whose size field depends on pointer width.
const (
	vidiocGFmt     = 0xc0d05604
	vidiocSFmt     = 0xc0d05605
	vidiocQuerybuf = 0xc0585609
	vidiocQbuf     = 0xc058560f
	vidiocDqbuf    = 0xc0585611
)

// v4l2Format has size 208 bytes; the union is 8-byte aligned because
// v4l2_window carries pointers.
type v4l2Format struct {
	typ uint32    // offset 0
	_   [4]byte   // padding
	fmt [200]byte // offset 8
}

// v4l2Plane has size 64 bytes.
type v4l2Plane struct {
	bytesused  uint32     // offset 0
	length     uint32     // offset 4
	m          uint64     // offset 8 (mem_offset / userptr / fd)
	dataOffset uint32     // offset 16
	reserved   [11]uint32 // offset 20
}

// v4l2Buffer has size 88 bytes.
type v4l2Buffer struct {
	index     uint32   // offset 0
	typ       uint32   // offset 4
	bytesused uint32   // offset 8
	flags     uint32   // offset 12
	field     uint32   // offset 16
	_         uint32   // padding
	timestamp timeval  // offset 24
	timecode  [16]byte // offset 40
	sequence  uint32   // offset 56
	memory    uint32   // offset 60
	m         uint64   // offset 64 (offset / userptr / planes / fd)
	length    uint32   // offset 72
	reserved2 uint32   // offset 76
	requestFd int32    // offset 80
	_         uint32   // padding
}

type timeval struct {
	sec  int64
	usec int64
}

func (tv timeval) duration() time.Duration {
	return time.Duration(tv.sec)*time.Second + time.Duration(tv.usec)*time.Microsecond
}

func (b *v4l2Buffer) setPlanes(planes []v4l2Plane) {
	b.m = uint64(uintptr(unsafe.Pointer(&planes[0])))
	b.length = uint32(len(planes))
}

func (p *v4l2Plane) memOffset() uint32 { return uint32(p.m) }
func (p *v4l2Plane) fd() int32         { return int32(uint32(p.m)) }
func (p *v4l2Plane) setFd(fd int32)    { p.m = uint64(uint32(fd)) }
