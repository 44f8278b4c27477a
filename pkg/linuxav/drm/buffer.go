//go:build linux

package drm

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// CreateDumb allocates a dumb buffer. The driver chooses the pitch; callers
// must use DumbBuffer.Pitch rather than width*bpp/8.
func (c *Card) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	req := sysCreateDumb{width: width, height: height, bpp: bpp}
	if err := xioctl(c.fd, ioctlModeCreateDumb, unsafe.Pointer(&req)); err != nil {
		return nil, err
	}
	return &DumbBuffer{
		Handle: req.handle,
		Width:  req.width,
		Height: req.height,
		Bpp:    req.bpp,
		Pitch:  req.pitch,
		Size:   req.size,
	}, nil
}

// MapDumb returns the fake mmap offset for a dumb buffer.
func (c *Card) MapDumb(handle uint32) (uint64, error) {
	req := sysMapDumb{handle: handle}
	if err := xioctl(c.fd, ioctlModeMapDumb, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.offset, nil
}

// DestroyDumb frees a dumb buffer.
func (c *Card) DestroyDumb(handle uint32) error {
	h := handle
	return xioctl(c.fd, ioctlModeDestroyDumb, unsafe.Pointer(&h))
}

// Mmap maps a region of the card at the offset returned by MapDumb.
func (c *Card) Mmap(offset uint64, length int) ([]byte, error) {
	return unix.Mmap(c.fd, int64(offset), length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Munmap releases a mapping returned by Mmap.
func (c *Card) Munmap(data []byte) error {
	return unix.Munmap(data)
}

// AddFB2 creates a framebuffer object from per-plane handles, pitches and
// offsets and returns its id.
func (c *Card) AddFB2(cmd *FramebufferCmd) (uint32, error) {
	req := sysFBCmd2{
		width:       cmd.Width,
		height:      cmd.Height,
		pixelFormat: cmd.PixelFormat,
		flags:       cmd.Flags,
		handles:     cmd.Handles,
		pitches:     cmd.Pitches,
		offsets:     cmd.Offsets,
		modifier:    cmd.Modifiers,
	}
	if err := xioctl(c.fd, ioctlModeAddFB2, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.fbID, nil
}

// RmFB removes a framebuffer.
func (c *Card) RmFB(id uint32) error {
	fb := id
	return xioctl(c.fd, ioctlModeRmFB, unsafe.Pointer(&fb))
}

// PrimeFDToHandle imports a DMA-BUF file descriptor as a GEM handle. The
// caller owns the handle and must release it with CloseHandle.
func (c *Card) PrimeFDToHandle(fd int) (uint32, error) {
	req := sysPrimeHandle{fd: int32(fd)}
	if err := xioctl(c.fd, ioctlPrimeFDToHandle, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.handle, nil
}

// PrimeHandleToFD exports a GEM handle as a DMA-BUF file descriptor.
func (c *Card) PrimeHandleToFD(handle uint32) (int, error) {
	req := sysPrimeHandle{handle: handle, flags: unix.O_CLOEXEC | unix.O_RDWR}
	if err := xioctl(c.fd, ioctlPrimeHandleToFD, unsafe.Pointer(&req)); err != nil {
		return -1, err
	}
	return int(req.fd), nil
}

// CloseHandle releases a GEM handle. Framebuffers created from the handle
// keep their own reference.
func (c *Card) CloseHandle(handle uint32) error {
	req := sysGemClose{handle: handle}
	return xioctl(c.fd, ioctlGemClose, unsafe.Pointer(&req))
}
