package display

import (
	"fmt"

	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// Card is the kernel interface of a DRM node. *drm.Card implements it.
type Card interface {
	Fd() int
	Path() string
	Close() error

	SetClientCap(capability, value uint64) error
	GetCap(capability uint64) (uint64, error)

	Resources() (*drm.Resources, error)
	Connector(id uint32) (*drm.Connector, error)
	Encoder(id uint32) (*drm.Encoder, error)
	Crtc(id uint32) (*drm.Crtc, error)
	PlaneResources() ([]uint32, error)
	Plane(id uint32) (*drm.Plane, error)
	ObjectProperties(objectID, objectType uint32) (*drm.ObjectProperties, error)
	Property(id uint32) (*drm.Property, error)

	CreatePropertyBlob(data []byte) (uint32, error)
	DestroyPropertyBlob(id uint32) error
	AtomicCommit(req *drm.AtomicRequest, flags uint32, userData uint64) error

	CreateDumb(width, height, bpp uint32) (*drm.DumbBuffer, error)
	MapDumb(handle uint32) (uint64, error)
	DestroyDumb(handle uint32) error
	Mmap(offset uint64, length int) ([]byte, error)
	Munmap(data []byte) error

	AddFB2(cmd *drm.FramebufferCmd) (uint32, error)
	RmFB(id uint32) error
	PrimeFDToHandle(fd int) (uint32, error)
	CloseHandle(handle uint32) error

	ReadEvents() ([]drm.Event, error)
}

// Opener opens a DRM node.
type Opener func(path string) (Card, error)

func openDRM(path string) (Card, error) {
	return drm.Open(path)
}

// Usage is what an allocated buffer will be used for.
type Usage uint32

// Buffer usages.
const (
	UsageScanout Usage = 1 << iota
	UsageRendering
)

// bufferObject is an imported GEM object. release drops the handle.
type bufferObject struct {
	handle  uint32
	release func() error
}

// allocator creates and imports buffer objects on one card.
type allocator interface {
	// Check reports whether format can be allocated for usage.
	Check(format fourcc.Code, usage Usage) error
	// Import turns a DMA-BUF descriptor into a buffer object.
	Import(fd int) (bufferObject, error)
}

// dumbAllocator allocates through dumb buffers and imports through PRIME.
type dumbAllocator struct {
	card      Card
	dumb      bool
	primeCaps uint64
}

func newDumbAllocator(card Card) *dumbAllocator {
	a := &dumbAllocator{card: card}
	if v, err := card.GetCap(drm.CapDumbBuffer); err == nil && v != 0 {
		a.dumb = true
	}
	if v, err := card.GetCap(drm.CapPrime); err == nil {
		a.primeCaps = v
	}
	return a
}

func (a *dumbAllocator) Check(format fourcc.Code, usage Usage) error {
	if !format.Packed32() && format != fourcc.NV12 {
		return fmt.Errorf("format %s cannot be allocated", format)
	}
	if usage&UsageScanout != 0 && !a.dumb {
		return fmt.Errorf("%s has no dumb buffer support", a.card.Path())
	}
	if usage&UsageRendering != 0 && a.primeCaps&drm.PrimeCapImport == 0 {
		return fmt.Errorf("%s cannot import PRIME buffers", a.card.Path())
	}
	return nil
}

func (a *dumbAllocator) Import(fd int) (bufferObject, error) {
	handle, err := a.card.PrimeFDToHandle(fd)
	if err != nil {
		return bufferObject{}, err
	}
	return bufferObject{
		handle:  handle,
		release: func() error { return a.card.CloseHandle(handle) },
	}, nil
}
