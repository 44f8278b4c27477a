//go:build linux

package v4l2

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Formats enumerates the pixel formats of a buffer type. Enumeration ends
// at the first EINVAL.
func (d *Device) Formats(bufType uint32) ([]FormatInfo, error) {
	var formats []FormatInfo

	for i := uint32(0); ; i++ {
		fmtdesc := v4l2Fmtdesc{
			index: i,
			typ:   bufType,
		}

		if err := xioctl(d.fd, vidiocEnumFmt, unsafe.Pointer(&fmtdesc)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break
			}
			return nil, fmt.Errorf("failed to enumerate format %d: %w", i, err)
		}

		formats = append(formats, FormatInfo{
			PixelFormat: fmtdesc.pixelformat,
			FormatName:  cstr(fmtdesc.description[:]),
			Emulated:    fmtdesc.flags&FmtFlagEmulated != 0,
			Compressed:  fmtdesc.flags&FmtFlagCompressed != 0,
		})
	}

	return formats, nil
}

// FrameSizes enumerates the frame sizes of a pixel format. A driver that
// does not implement the ioctl yields an empty list.
func (d *Device) FrameSizes(pixelFormat uint32) ([]FrameSize, error) {
	var sizes []FrameSize

	for i := uint32(0); ; i++ {
		frmsize := v4l2Frmsizeenum{
			index:       i,
			pixelFormat: pixelFormat,
		}

		if err := xioctl(d.fd, vidiocEnumFramesizes, unsafe.Pointer(&frmsize)); err != nil {
			if errors.Is(err, unix.EINVAL) {
				break
			}
			if errors.Is(err, unix.ENOTTY) {
				return []FrameSize{}, nil
			}
			return nil, fmt.Errorf("failed to enumerate frame size %d: %w", i, err)
		}

		size := FrameSize{Type: FrameSizeType(frmsize.typ)}
		switch size.Type {
		case FrameSizeDiscrete:
			size.MinWidth, size.MaxWidth = frmsize.u[0], frmsize.u[0]
			size.MinHeight, size.MaxHeight = frmsize.u[1], frmsize.u[1]
		case FrameSizeStepwise, FrameSizeContinuous:
			size.MinWidth = frmsize.u[0]
			size.MaxWidth = frmsize.u[1]
			size.StepWidth = frmsize.u[2]
			size.MinHeight = frmsize.u[3]
			size.MaxHeight = frmsize.u[4]
			size.StepHeight = frmsize.u[5]
		default:
			continue
		}
		sizes = append(sizes, size)

		// Stepwise and continuous ranges are reported as a single entry.
		if size.Type != FrameSizeDiscrete {
			break
		}
	}

	return sizes, nil
}

// SetFormatMPlane issues VIDIOC_S_FMT for the multi-planar capture type
// and returns the format the driver actually applied.
func (d *Device) SetFormatMPlane(pix PixFormatMPlane) (PixFormatMPlane, error) {
	var f v4l2Format
	f.typ = BufTypeVideoCaptureMPlane
	mp := f.pixMplane()
	mp.width = pix.Width
	mp.height = pix.Height
	mp.pixelformat = pix.PixelFormat
	mp.field = pix.Field
	mp.colorspace = pix.Colorspace
	mp.numPlanes = uint8(min(len(pix.Planes), videoMaxPlanes))
	for i := 0; i < int(mp.numPlanes); i++ {
		mp.planeFmt[i].sizeimage = pix.Planes[i].SizeImage
		mp.planeFmt[i].bytesperline = pix.Planes[i].BytesPerLine
	}

	if err := xioctl(d.fd, vidiocSFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormatMPlane{}, err
	}
	return pixFromKernel(mp), nil
}

// FormatMPlane issues VIDIOC_G_FMT for the multi-planar capture type.
func (d *Device) FormatMPlane() (PixFormatMPlane, error) {
	var f v4l2Format
	f.typ = BufTypeVideoCaptureMPlane
	if err := xioctl(d.fd, vidiocGFmt, unsafe.Pointer(&f)); err != nil {
		return PixFormatMPlane{}, err
	}
	return pixFromKernel(f.pixMplane()), nil
}

func pixFromKernel(mp *v4l2PixFormatMplane) PixFormatMPlane {
	n := min(int(mp.numPlanes), videoMaxPlanes)
	out := PixFormatMPlane{
		Width:       mp.width,
		Height:      mp.height,
		PixelFormat: mp.pixelformat,
		Field:       mp.field,
		Colorspace:  mp.colorspace,
		Planes:      make([]PlaneFormat, n),
	}
	for i := range n {
		out.Planes[i] = PlaneFormat{
			SizeImage:    mp.planeFmt[i].sizeimage,
			BytesPerLine: mp.planeFmt[i].bytesperline,
		}
	}
	return out
}
