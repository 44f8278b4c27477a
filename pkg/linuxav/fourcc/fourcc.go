// Package fourcc converts between four-character pixel format codes and
// their packed 32-bit little-endian form as used by both V4L2 and DRM.
//
// The two kernel APIs share the same packing for the formats this project
// moves between them (NV12 in particular), so a single codec serves both.
package fourcc

import (
	"errors"
	"fmt"
)

// ErrInvalidCode is returned when a code is not exactly four characters.
var ErrInvalidCode = errors.New("fourcc must be exactly 4 ASCII characters")

// Code is a packed fourcc value.
type Code uint32

// Well-known codes.
const (
	NV12 Code = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	NM12 Code = 'N' | 'M'<<8 | '1'<<16 | '2'<<24
	YUYV Code = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
	MJPG Code = 'M' | 'J'<<8 | 'P'<<16 | 'G'<<24
	XR24 Code = 'X' | 'R'<<8 | '2'<<16 | '4'<<24 // DRM_FORMAT_XRGB8888
	AR24 Code = 'A' | 'R'<<8 | '2'<<16 | '4'<<24 // DRM_FORMAT_ARGB8888
	XB24 Code = 'X' | 'B'<<8 | '2'<<16 | '4'<<24 // DRM_FORMAT_XBGR8888
	AB24 Code = 'A' | 'B'<<8 | '2'<<16 | '4'<<24 // DRM_FORMAT_ABGR8888
	RG24 Code = 'R' | 'G'<<8 | '2'<<16 | '4'<<24 // DRM_FORMAT_RGB888
)

// Encode packs a four-character ASCII code.
func Encode(code string) (Code, error) {
	if len(code) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] > 0x7f {
			return 0, fmt.Errorf("%w: %q is not ASCII", ErrInvalidCode, code)
		}
	}
	return Code(uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24), nil
}

// MustEncode is like Encode but panics on invalid input.
func MustEncode(code string) Code {
	c, err := Encode(code)
	if err != nil {
		panic(err)
	}
	return c
}

// Decode unpacks a code into its four characters.
func Decode(v uint32) string {
	return string([]byte{
		byte(v),
		byte(v >> 8),
		byte(v >> 16),
		byte(v >> 24),
	})
}

func (c Code) String() string {
	return Decode(uint32(c))
}

// Bpp returns bits per pixel for packed RGB formats and the luma depth for
// YUV formats. Unknown formats return 0.
func (c Code) Bpp() uint32 {
	switch c {
	case XR24, AR24, XB24, AB24:
		return 32
	case RG24:
		return 24
	case YUYV:
		return 16
	case NV12, NM12:
		return 8
	}
	return 0
}

// Planes returns the number of color planes of the format. NV12 keeps both
// in one allocation while NM12 splits them across two.
func (c Code) Planes() int {
	switch c {
	case NV12, NM12:
		return 2
	}
	return 1
}

// Packed32 reports whether the format stores one pixel per 32-bit word.
func (c Code) Packed32() bool {
	return c.Bpp() == 32
}
