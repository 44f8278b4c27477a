//go:build linux

package v4l2

import (
	"fmt"
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

// RequestBuffers issues VIDIOC_REQBUFS and returns the count the driver
// confirmed, which may differ from the requested count. A count of zero
// releases all buffers.
func (d *Device) RequestBuffers(bufType, memory, count uint32) (uint32, error) {
	req := v4l2Requestbuffers{
		count:  count,
		typ:    bufType,
		memory: memory,
	}
	if err := xioctl(d.fd, vidiocReqbufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.count, nil
}

// QueryBufferMPlane issues VIDIOC_QUERYBUF for one multi-planar buffer.
func (d *Device) QueryBufferMPlane(index, memory uint32, numPlanes int) (Buffer, error) {
	if numPlanes < 1 || numPlanes > videoMaxPlanes {
		return Buffer{}, fmt.Errorf("invalid plane count %d", numPlanes)
	}

	planes := make([]v4l2Plane, numPlanes)
	buf := v4l2Buffer{
		index:  index,
		typ:    BufTypeVideoCaptureMPlane,
		memory: memory,
	}
	buf.setPlanes(planes)

	err := xioctl(d.fd, vidiocQuerybuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(planes)
	if err != nil {
		return Buffer{}, err
	}
	return bufferFromKernel(&buf, planes), nil
}

// ExportPlane issues VIDIOC_EXPBUF and returns a DMA-BUF file descriptor
// for one plane of an MMAP buffer. The caller owns the descriptor.
func (d *Device) ExportPlane(index, plane uint32) (int, error) {
	exp := v4l2Exportbuffer{
		typ:   BufTypeVideoCaptureMPlane,
		index: index,
		plane: plane,
		flags: unix.O_RDWR | unix.O_CLOEXEC,
	}
	if err := xioctl(d.fd, vidiocExpbuf, unsafe.Pointer(&exp)); err != nil {
		return -1, err
	}
	return int(exp.fd), nil
}

// Map maps one plane of an MMAP buffer into memory.
func (d *Device) Map(offset, length uint32) ([]byte, error) {
	return unix.Mmap(d.fd, int64(offset), int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

// Unmap releases a mapping returned by Map.
func (d *Device) Unmap(data []byte) error {
	return unix.Munmap(data)
}

// CloseFD closes a descriptor returned by ExportPlane.
func (d *Device) CloseFD(fd int) error {
	return unix.Close(fd)
}

// QueueBufferMPlane issues VIDIOC_QBUF. For DMABUF memory the plane file
// descriptors are passed to the driver.
func (d *Device) QueueBufferMPlane(index, memory uint32, planes []Plane) error {
	if len(planes) < 1 || len(planes) > videoMaxPlanes {
		return fmt.Errorf("invalid plane count %d", len(planes))
	}

	kplanes := make([]v4l2Plane, len(planes))
	for i, p := range planes {
		kplanes[i].length = p.Length
		kplanes[i].bytesused = p.BytesUsed
		if memory == MemoryDMABUF {
			kplanes[i].setFd(p.FD)
		}
	}

	buf := v4l2Buffer{
		index:  index,
		typ:    BufTypeVideoCaptureMPlane,
		memory: memory,
	}
	buf.setPlanes(kplanes)

	err := xioctl(d.fd, vidiocQbuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(kplanes)
	return err
}

// DequeueBufferMPlane issues VIDIOC_DQBUF and blocks until a filled buffer
// is available (the device is opened in blocking mode).
func (d *Device) DequeueBufferMPlane(memory uint32, numPlanes int) (Buffer, error) {
	if numPlanes < 1 || numPlanes > videoMaxPlanes {
		return Buffer{}, fmt.Errorf("invalid plane count %d", numPlanes)
	}

	planes := make([]v4l2Plane, numPlanes)
	buf := v4l2Buffer{
		typ:    BufTypeVideoCaptureMPlane,
		memory: memory,
	}
	buf.setPlanes(planes)

	err := xioctl(d.fd, vidiocDqbuf, unsafe.Pointer(&buf))
	runtime.KeepAlive(planes)
	if err != nil {
		return Buffer{}, err
	}
	return bufferFromKernel(&buf, planes), nil
}

// StreamOn starts streaming on a buffer type.
func (d *Device) StreamOn(bufType uint32) error {
	typ := int32(bufType)
	return xioctl(d.fd, vidiocStreamon, unsafe.Pointer(&typ))
}

// StreamOff stops streaming and returns all buffers to the dequeued state.
func (d *Device) StreamOff(bufType uint32) error {
	typ := int32(bufType)
	return xioctl(d.fd, vidiocStreamoff, unsafe.Pointer(&typ))
}

func bufferFromKernel(buf *v4l2Buffer, planes []v4l2Plane) Buffer {
	out := Buffer{
		Index:     buf.index,
		Type:      buf.typ,
		Memory:    buf.memory,
		Flags:     buf.flags,
		Field:     buf.field,
		Sequence:  buf.sequence,
		Timestamp: buf.timestamp.duration(),
		Planes:    make([]Plane, len(planes)),
	}
	for i := range planes {
		p := &planes[i]
		out.Planes[i] = Plane{
			BytesUsed:  p.bytesused,
			Length:     p.length,
			DataOffset: p.dataOffset,
		}
		if buf.memory == MemoryDMABUF {
			out.Planes[i].FD = p.fd()
		} else {
			out.Planes[i].MemOffset = p.memOffset()
		}
	}
	return out
}
