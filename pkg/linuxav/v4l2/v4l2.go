//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for device enumeration, format negotiation, and multi-planar streaming
// capture with mmap or exported DMA-BUF buffers.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video capture devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Streaming
//
// A capture session is a sequence of calls on an open Device:
//
//	dev, _ := v4l2.Open("/dev/video11")
//	formats, _ := dev.Formats(v4l2.BufTypeVideoCaptureMPlane)
//	applied, _ := dev.SetFormatMPlane(v4l2.PixFormatMPlane{Width: 1920, Height: 1080, PixelFormat: nv12})
//	count, _ := dev.RequestBuffers(v4l2.BufTypeVideoCaptureMPlane, v4l2.MemoryMMAP, 4)
//	buf, _ := dev.QueryBufferMPlane(0, v4l2.MemoryMMAP, int(applied.NumPlanes))
//	data, _ := dev.Map(buf.Planes[0].MemOffset, buf.Planes[0].Length)
//
// Every ioctl issued through a Device is retried when interrupted by a
// signal (EINTR); any other errno is returned to the caller.
package v4l2
