package display

import (
	"errors"
	"fmt"
	"slices"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// Framebuffer is a framebuffer id owned by the display. It stays valid
// until RemoveFramebuffer or Close.
type Framebuffer struct {
	ID     uint32
	Width  uint32
	Height uint32
	Format fourcc.Code
	Pitch  uint32
	// Data is the CPU mapping of a scanout buffer; nil for imports and
	// for the test pattern once it is filled.
	Data []byte

	dumb *dumbBuffer
}

type dumbBuffer struct {
	handle uint32
	data   []byte
}

func (b *dumbBuffer) release(card Card) error {
	var errs []error
	if b.data != nil {
		if err := card.Munmap(b.data); err != nil {
			errs = append(errs, fmt.Errorf("unmap dumb buffer %d: %w", b.handle, err))
		}
		b.data = nil
	}
	if err := card.DestroyDumb(b.handle); err != nil {
		errs = append(errs, fmt.Errorf("destroy dumb buffer %d: %w", b.handle, err))
	}
	return errors.Join(errs...)
}

// cleanup collects release functions and runs them in reverse order.
type cleanup []func()

func (c *cleanup) add(f func()) {
	*c = append(*c, f)
}

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// DmaBuf describes a GPU-rendered single-plane buffer.
type DmaBuf struct {
	FD     int
	Width  uint32
	Height uint32
	Stride uint32
	Format fourcc.Code
}

// CameraBuffer describes an exported capture buffer. An NV12 buffer has
// one descriptor with the chroma plane after the luma plane; an NM12
// buffer has one descriptor per plane.
type CameraBuffer struct {
	FDs    []int
	Width  uint32
	Height uint32
	Stride uint32
	Format fourcc.Code
}

func (d *Device) trackFB(fb *Framebuffer) {
	d.fbs = append(d.fbs, fb)
	if fb.dumb != nil {
		d.dumbs = append(d.dumbs, fb.dumb)
	}
	d.mu.Lock()
	d.nfbs = len(d.fbs)
	d.mu.Unlock()
}

func (d *Device) requireCard(op string) error {
	if d.card == nil {
		return fmt.Errorf("%s: %w: %s", op, ErrInvalidState, StateClosed)
	}
	return nil
}

// createDumbFramebuffer allocates a dumb buffer of the given format, lets
// fill write into it through its real pitch and wraps it in a
// framebuffer. Unless keepMapped is set the mapping is dropped afterwards.
func (d *Device) createDumbFramebuffer(format fourcc.Code, width, height uint32, keepMapped bool, fill func(data []byte, pitch uint32)) (fb *Framebuffer, err error) {
	var undo cleanup
	defer func() {
		if err != nil {
			undo.run()
		}
	}()

	bpp, rows := format.Bpp(), height
	if format == fourcc.NV12 {
		rows = height * 3 / 2
	}

	db, err := d.card.CreateDumb(width, rows, bpp)
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_CREATE_DUMB", err, "create %dx%d %s buffer", width, height, format)
	}
	buf := &dumbBuffer{handle: db.Handle}
	undo.add(func() { buf.release(d.card) })

	offset, err := d.card.MapDumb(db.Handle)
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_MAP_DUMB", err, "map dumb buffer %d", db.Handle)
	}
	data, err := d.card.Mmap(offset, int(db.Size))
	if err != nil {
		return nil, deverr.Devicef("mmap", err, "map dumb buffer %d", db.Handle)
	}
	buf.data = data

	if fill != nil {
		fill(data, db.Pitch)
	}

	cmd := drm.FramebufferCmd{
		Width:       width,
		Height:      height,
		PixelFormat: uint32(format),
	}
	cmd.Handles[0], cmd.Pitches[0] = db.Handle, db.Pitch
	if format == fourcc.NV12 {
		cmd.Handles[1], cmd.Pitches[1], cmd.Offsets[1] = db.Handle, db.Pitch, db.Pitch*height
	}
	id, err := d.card.AddFB2(&cmd)
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_ADDFB2", err, "add %s framebuffer", format)
	}

	fb = &Framebuffer{
		ID:     id,
		Width:  width,
		Height: height,
		Format: format,
		Pitch:  db.Pitch,
		dumb:   buf,
	}
	if keepMapped {
		fb.Data = data
	} else {
		if err := d.card.Munmap(data); err != nil {
			d.logger.Warn("Failed to unmap dumb buffer", "handle", db.Handle, "error", err)
		}
		buf.data = nil
	}
	d.trackFB(fb)
	return fb, nil
}

// CreateTestPattern returns a framebuffer of the mode size filled with
// color (0xRRGGBB). The first call creates it; later calls return the same
// framebuffer.
func (d *Device) CreateTestPattern(color uint32) (*Framebuffer, error) {
	if d.pattern != nil {
		return d.pattern, nil
	}
	if d.State() == StateClosed || d.State() == StateDeviceOpen {
		return nil, fmt.Errorf("create test pattern: %w: %s", ErrInvalidState, d.State())
	}

	width, height := uint32(d.chain.Mode.Hdisplay), uint32(d.chain.Mode.Vdisplay)
	fb, err := d.createDumbFramebuffer(d.format, width, height, false, func(data []byte, pitch uint32) {
		fillPattern(data, pitch, width, height, d.format, color)
	})
	if err != nil {
		return nil, err
	}
	d.pattern = fb
	d.logger.Info("Created test pattern", "fb", fb.ID, "size", fmt.Sprintf("%dx%d", width, height),
		"pitch", fb.Pitch, "color", fmt.Sprintf("%06x", color))
	return fb, nil
}

// CreateScanoutBuffer returns a CPU-mapped framebuffer in the display
// format. Frames from mapped capture memory are copied into it.
func (d *Device) CreateScanoutBuffer(width, height uint32) (*Framebuffer, error) {
	if err := d.requireCard("create scanout buffer"); err != nil {
		return nil, err
	}
	return d.createDumbFramebuffer(d.format, width, height, true, nil)
}

// ImportDmaBuf wraps a GPU-rendered buffer in a framebuffer. Only XR24 is
// supported.
func (d *Device) ImportDmaBuf(buf DmaBuf) (*Framebuffer, error) {
	if err := d.requireCard("import dmabuf"); err != nil {
		return nil, err
	}
	if buf.Format != fourcc.XR24 {
		return nil, deverr.New(deverr.KindNegotiation, "import dmabuf",
			fmt.Sprintf("format %s not supported, want %s", buf.Format, fourcc.XR24), nil)
	}

	bo, err := d.alloc.Import(buf.FD)
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_PRIME_FD_TO_HANDLE", err, "import dmabuf fd %d", buf.FD)
	}
	defer func() {
		if err := bo.release(); err != nil {
			d.logger.Warn("Failed to release buffer object", "handle", bo.handle, "error", err)
		}
	}()

	cmd := drm.FramebufferCmd{Width: buf.Width, Height: buf.Height, PixelFormat: uint32(buf.Format)}
	cmd.Handles[0], cmd.Pitches[0] = bo.handle, buf.Stride
	id, err := d.card.AddFB2(&cmd)
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_ADDFB2", err, "add %s framebuffer", buf.Format)
	}

	fb := &Framebuffer{ID: id, Width: buf.Width, Height: buf.Height, Format: buf.Format, Pitch: buf.Stride}
	d.trackFB(fb)
	return fb, nil
}

// ImportCamera wraps an exported capture buffer in an NV12 framebuffer.
// The GEM handles are closed once the framebuffer holds its reference.
func (d *Device) ImportCamera(buf CameraBuffer) (*Framebuffer, error) {
	if err := d.requireCard("import camera"); err != nil {
		return nil, err
	}
	switch {
	case buf.Format == fourcc.NV12 && len(buf.FDs) == 1:
	case buf.Format == fourcc.NM12 && len(buf.FDs) == 2:
	default:
		return nil, deverr.New(deverr.KindNegotiation, "import camera",
			fmt.Sprintf("%s with %d planes not supported", buf.Format, len(buf.FDs)), nil)
	}

	handles := make([]uint32, 0, len(buf.FDs))
	defer func() {
		for i, h := range handles {
			if slices.Contains(handles[:i], h) {
				continue
			}
			if err := d.card.CloseHandle(h); err != nil {
				d.logger.Warn("Failed to close GEM handle", "handle", h, "error", err)
			}
		}
	}()
	for _, fd := range buf.FDs {
		h, err := d.card.PrimeFDToHandle(fd)
		if err != nil {
			return nil, deverr.Devicef("DRM_IOCTL_PRIME_FD_TO_HANDLE", err, "import camera fd %d", fd)
		}
		handles = append(handles, h)
	}

	cmd := drm.FramebufferCmd{Width: buf.Width, Height: buf.Height, PixelFormat: uint32(fourcc.NV12)}
	cmd.Handles[0], cmd.Pitches[0] = handles[0], buf.Stride
	if len(handles) == 1 {
		cmd.Handles[1], cmd.Pitches[1], cmd.Offsets[1] = handles[0], buf.Stride, buf.Stride*buf.Height
	} else {
		cmd.Handles[1], cmd.Pitches[1] = handles[1], buf.Stride
	}
	id, err := d.card.AddFB2(&cmd)
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_ADDFB2", err, "add NV12 framebuffer %dx%d", buf.Width, buf.Height)
	}

	fb := &Framebuffer{ID: id, Width: buf.Width, Height: buf.Height, Format: fourcc.NV12, Pitch: buf.Stride}
	d.trackFB(fb)
	return fb, nil
}

// RemoveFramebuffer releases one framebuffer before Close.
func (d *Device) RemoveFramebuffer(fb *Framebuffer) error {
	i := -1
	for j, f := range d.fbs {
		if f == fb {
			i = j
			break
		}
	}
	if i < 0 {
		return fmt.Errorf("framebuffer %d not owned by this display", fb.ID)
	}

	d.fbs = append(d.fbs[:i], d.fbs[i+1:]...)
	d.mu.Lock()
	d.nfbs = len(d.fbs)
	d.mu.Unlock()
	switch fb {
	case d.pattern:
		d.pattern = nil
	case d.splash:
		d.splash = nil
	}

	err := d.card.RmFB(fb.ID)
	if fb.dumb != nil {
		for j, b := range d.dumbs {
			if b == fb.dumb {
				d.dumbs = append(d.dumbs[:j], d.dumbs[j+1:]...)
				break
			}
		}
		err = errors.Join(err, fb.dumb.release(d.card))
	}
	fb.Data = nil
	return err
}

// fillPattern writes color into every visible pixel, row by row, using
// pitch as the row stride. Padding bytes are left untouched.
func fillPattern(data []byte, pitch, width, height uint32, format fourcc.Code, color uint32) {
	r, g, b := byte(color>>16), byte(color>>8), byte(color)

	switch {
	case format.Packed32():
		px := [4]byte{b, g, r, 0xff}
		if format == fourcc.XB24 || format == fourcc.AB24 {
			px = [4]byte{r, g, b, 0xff}
		}
		for y := uint32(0); y < height; y++ {
			row := data[y*pitch : y*pitch+width*4]
			for x := 0; x < len(row); x += 4 {
				copy(row[x:x+4], px[:])
			}
		}

	case format == fourcc.NV12:
		yv, u, v := rgbToYUV(r, g, b)
		for y := uint32(0); y < height; y++ {
			row := data[y*pitch : y*pitch+width]
			for x := range row {
				row[x] = yv
			}
		}
		uvBase := pitch * height
		for y := uint32(0); y < height/2; y++ {
			row := data[uvBase+y*pitch : uvBase+y*pitch+width]
			for x := 0; x+1 < len(row); x += 2 {
				row[x], row[x+1] = u, v
			}
		}
	}
}

// rgbToYUV converts to limited-range BT.601.
func rgbToYUV(r, g, b byte) (y, u, v byte) {
	ri, gi, bi := int(r), int(g), int(b)
	y = byte(((66*ri + 129*gi + 25*bi + 128) >> 8) + 16)
	u = byte(((-38*ri - 74*gi + 112*bi + 128) >> 8) + 128)
	v = byte(((112*ri - 94*gi - 18*bi + 128) >> 8) + 128)
	return y, u, v
}
