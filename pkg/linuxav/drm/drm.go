//go:build linux

// Package drm provides pure Go bindings to the Linux DRM/KMS mode-setting
// API: resource enumeration, object properties, atomic commits, dumb
// buffers, PRIME import and page-flip event decoding.
//
// All kernel structs used here are built from fixed-width fields, so one
// layout serves every architecture.
package drm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Client capabilities.
const (
	ClientCapStereo3D        = 1
	ClientCapUniversalPlanes = 2
	ClientCapAtomic          = 3
)

// Driver capabilities for GetCap.
const (
	CapDumbBuffer         = 0x1
	CapPrime              = 0x5
	CapTimestampMonotonic = 0x6
	CapAddFB2Modifiers    = 0x10
)

// PRIME capability bits.
const (
	PrimeCapImport = 0x1
	PrimeCapExport = 0x2
)

// Object types.
const (
	ObjectCRTC      = 0xcccccccc
	ObjectConnector = 0xc0c0c0c0
	ObjectEncoder   = 0xe0e0e0e0
	ObjectPlane     = 0xeeeeeeee
	ObjectFB        = 0xfbfbfbfb
	ObjectBlob      = 0xbbbbbbbb
)

// Atomic commit flags.
const (
	PageFlipEvent      = 0x01
	PageFlipAsync      = 0x02
	AtomicTestOnly     = 0x0100
	AtomicNonBlock     = 0x0200
	AtomicAllowModeset = 0x0400
)

// Connection states.
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Plane types as reported by the "type" property.
const (
	PlaneTypeOverlay = 0
	PlaneTypePrimary = 1
	PlaneTypeCursor  = 2
)

// Card is an open DRM device node.
type Card struct {
	fd   int
	path string
}

// Open opens a DRM node read/write.
func Open(path string) (*Card, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Card{fd: fd, path: path}, nil
}

// Fd returns the file descriptor.
func (c *Card) Fd() int {
	return c.fd
}

// Path returns the node path.
func (c *Card) Path() string {
	return c.path
}

// Close closes the node. It is safe to call more than once.
func (c *Card) Close() error {
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}
