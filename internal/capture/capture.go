// Package capture drives a V4L2 multi-planar capture node through its
// lifecycle: open, format negotiation, buffer allocation, streaming and
// teardown. Buffer slots are tracked with an explicit owner so that a slot
// is only ever requeued by whoever holds it.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
	"github.com/smazurov/framepipe/pkg/linuxav/v4l2"
)

// ErrInvalidState is returned when an operation is called out of order.
var ErrInvalidState = errors.New("invalid capture state")

// Driver is the kernel interface of a capture node. *v4l2.Device
// implements it.
type Driver interface {
	QueryCapability() (v4l2.Capability, error)
	Formats(bufType uint32) ([]v4l2.FormatInfo, error)
	FrameSizes(pixelFormat uint32) ([]v4l2.FrameSize, error)
	SetFormatMPlane(pix v4l2.PixFormatMPlane) (v4l2.PixFormatMPlane, error)
	RequestBuffers(bufType, memory, count uint32) (uint32, error)
	QueryBufferMPlane(index, memory uint32, numPlanes int) (v4l2.Buffer, error)
	ExportPlane(index, plane uint32) (int, error)
	Map(offset, length uint32) ([]byte, error)
	Unmap(data []byte) error
	CloseFD(fd int) error
	QueueBufferMPlane(index, memory uint32, planes []v4l2.Plane) error
	DequeueBufferMPlane(memory uint32, numPlanes int) (v4l2.Buffer, error)
	StreamOn(bufType uint32) error
	StreamOff(bufType uint32) error
	Close() error
}

// Opener opens the capture node at path.
type Opener func(path string) (Driver, error)

func openV4L2(path string) (Driver, error) {
	return v4l2.Open(path)
}

// PlaneMemory is the application view of one buffer plane.
type PlaneMemory struct {
	Data   []byte // mapped memory, MemoryMMAP only
	FD     int    // exported DMA-BUF, MemoryDMABUF only
	Length uint32
}

// Slot is one buffer of the pool.
type Slot struct {
	Index  uint32
	Planes []PlaneMemory
	owner  Owner
}

// Owner returns the current holder of the slot.
func (s *Slot) Owner() Owner {
	return s.owner
}

// Frame is a dequeued buffer together with its capture metadata.
type Frame struct {
	Slot        *Slot
	Sequence    uint32
	Timestamp   time.Duration
	BytesUsed   []uint32
	Width       uint32
	Height      uint32
	Stride      uint32
	PixelFormat fourcc.Code
}

// Stats is a snapshot of capture counters.
type Stats struct {
	State        State
	Width        uint32
	Height       uint32
	PixelFormat  string
	PoolSize     int
	Dequeued     uint64
	LastSequence uint32
	SkippedSeq   uint64
}

// Option configures a Device.
type Option func(*Device)

// WithOpener replaces the function used to open the device node.
func WithOpener(open Opener) Option {
	return func(d *Device) {
		d.open = open
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.logger = logger
	}
}

// WithStateHook registers a callback invoked on every state transition.
func WithStateHook(hook func(from, to State)) Option {
	return func(d *Device) {
		d.hook = hook
	}
}

// Device is a capture session.
type Device struct {
	cfg    Config
	format fourcc.Code
	open   Opener
	logger *slog.Logger
	hook   func(from, to State)

	drv     Driver
	mplane  bool
	applied v4l2.PixFormatMPlane
	slots   []*Slot

	mu       sync.Mutex
	state    State
	poolSize int
	dequeued uint64
	lastSeq  uint32
	skipped  uint64
}

// New validates cfg and returns a closed device.
func New(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, _ := fourcc.Encode(cfg.Format)

	d := &Device{
		cfg:    cfg,
		format: format,
		open:   openV4L2,
		logger: logging.GetLogger("capture"),
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// State returns the current lifecycle state.
func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Device) setState(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()

	if from != to {
		d.logger.Debug("Capture state changed", "from", from, "to", to)
		if d.hook != nil {
			d.hook(from, to)
		}
	}
}

func (d *Device) expect(op string, states ...State) error {
	cur := d.State()
	if slices.Contains(states, cur) {
		return nil
	}
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidState, cur)
}

// Open opens the node and checks that it supports streaming I/O.
func (d *Device) Open() error {
	if err := d.expect("open", StateClosed); err != nil {
		return err
	}

	drv, err := d.open(d.cfg.Device)
	if err != nil {
		return deverr.Devicef("open", err, "open %s", d.cfg.Device)
	}

	capability, err := drv.QueryCapability()
	if err != nil {
		drv.Close()
		return deverr.Devicef("VIDIOC_QUERYCAP", err, "query capabilities of %s", d.cfg.Device)
	}
	if !capability.Streaming() {
		drv.Close()
		return deverr.Devicef("VIDIOC_QUERYCAP", nil, "%s does not support streaming I/O", d.cfg.Device)
	}

	d.drv = drv
	d.mplane = capability.CaptureMPlane()
	d.logger.Info("Opened capture device",
		"device", d.cfg.Device,
		"driver", capability.Driver,
		"card", capability.Card,
		"mplane", d.mplane)
	d.setState(StateOpened)
	return nil
}

// Negotiate checks the requested format and size against what the device
// enumerates, then applies it with S_FMT. Driver adjustments are adopted.
func (d *Device) Negotiate() error {
	if err := d.expect("negotiate", StateOpened); err != nil {
		return err
	}
	if !d.mplane {
		return deverr.New(deverr.KindNegotiation, "negotiate", d.cfg.Device+" is not a multi-planar capture device", nil)
	}

	formats, err := d.drv.Formats(v4l2.BufTypeVideoCaptureMPlane)
	if err != nil {
		return deverr.Devicef("VIDIOC_ENUM_FMT", err, "enumerate formats")
	}
	found := false
	for _, f := range formats {
		d.logger.Debug("Supported format", "fourcc", fourcc.Decode(f.PixelFormat), "name", f.FormatName)
		if f.PixelFormat == uint32(d.format) {
			found = true
		}
	}
	if !found {
		return deverr.New(deverr.KindNegotiation, "negotiate",
			fmt.Sprintf("format %s not supported by %s", d.format, d.cfg.Device), nil)
	}

	sizes, err := d.drv.FrameSizes(uint32(d.format))
	if err != nil {
		return deverr.Devicef("VIDIOC_ENUM_FRAMESIZES", err, "enumerate frame sizes for %s", d.format)
	}
	if !v4l2.SizeSupported(sizes, d.cfg.Width, d.cfg.Height) {
		return deverr.New(deverr.KindNegotiation, "negotiate",
			fmt.Sprintf("size %dx%d not supported for %s", d.cfg.Width, d.cfg.Height, d.format), nil)
	}

	applied, err := d.drv.SetFormatMPlane(v4l2.PixFormatMPlane{
		Width:       d.cfg.Width,
		Height:      d.cfg.Height,
		PixelFormat: uint32(d.format),
		Field:       v4l2.FieldNone,
	})
	if err != nil {
		return deverr.Devicef("VIDIOC_S_FMT", err, "set format %s %dx%d", d.format, d.cfg.Width, d.cfg.Height)
	}
	if len(applied.Planes) == 0 {
		applied.Planes = []v4l2.PlaneFormat{{}}
	}

	if applied.PixelFormat != uint32(d.format) {
		d.logger.Warn("Driver changed pixel format",
			"requested", d.format.String(),
			"applied", fourcc.Decode(applied.PixelFormat))
	}
	if applied.Width != d.cfg.Width || applied.Height != d.cfg.Height {
		d.logger.Warn("Driver changed frame size",
			"requested", fmt.Sprintf("%dx%d", d.cfg.Width, d.cfg.Height),
			"applied", fmt.Sprintf("%dx%d", applied.Width, applied.Height))
	}

	d.mu.Lock()
	d.applied = applied
	d.mu.Unlock()
	d.logger.Info("Negotiated capture format",
		"fourcc", fourcc.Decode(applied.PixelFormat),
		"width", applied.Width,
		"height", applied.Height,
		"planes", len(applied.Planes),
		"stride", applied.Planes[0].BytesPerLine)
	d.setState(StateNegotiated)
	return nil
}

// Format returns the format applied by the driver.
func (d *Device) Format() v4l2.PixFormatMPlane {
	return d.applied
}

// AllocateBuffers requests the configured number of buffers and maps or
// exports every plane. The pool size is whatever the driver confirmed. On
// any failure everything acquired so far is released.
func (d *Device) AllocateBuffers() error {
	if err := d.expect("allocate buffers", StateNegotiated); err != nil {
		return err
	}

	count, err := d.drv.RequestBuffers(v4l2.BufTypeVideoCaptureMPlane, v4l2.MemoryMMAP, d.cfg.Buffers)
	if err != nil {
		return deverr.Devicef("VIDIOC_REQBUFS", err, "request %d buffers", d.cfg.Buffers)
	}
	if count == 0 {
		return deverr.Devicef("VIDIOC_REQBUFS", nil, "driver allocated no buffers")
	}
	if count != d.cfg.Buffers {
		d.logger.Warn("Driver adjusted buffer count", "requested", d.cfg.Buffers, "allocated", count)
	}

	numPlanes := len(d.applied.Planes)
	slots := make([]*Slot, 0, count)
	for i := uint32(0); i < count; i++ {
		slot, err := d.setupSlot(i, numPlanes)
		if err != nil {
			d.releaseSlots(slots)
			if _, reqErr := d.drv.RequestBuffers(v4l2.BufTypeVideoCaptureMPlane, v4l2.MemoryMMAP, 0); reqErr != nil {
				d.logger.Warn("Failed to release kernel buffers", "error", reqErr)
			}
			return deverr.New(deverr.KindPartialAllocation, "allocate buffers",
				fmt.Sprintf("buffer %d of %d", i, count), err)
		}
		slots = append(slots, slot)
	}

	d.slots = slots
	d.mu.Lock()
	d.poolSize = len(slots)
	d.mu.Unlock()
	d.logger.Info("Allocated capture buffers", "count", count, "planes", numPlanes, "memory", d.cfg.Memory)
	d.setState(StateBuffersAllocated)
	return nil
}

// setupSlot maps or exports all planes of one buffer. A failure releases
// the planes of this buffer that were already set up.
func (d *Device) setupSlot(index uint32, numPlanes int) (*Slot, error) {
	buf, err := d.drv.QueryBufferMPlane(index, v4l2.MemoryMMAP, numPlanes)
	if err != nil {
		return nil, fmt.Errorf("VIDIOC_QUERYBUF: %w", err)
	}

	slot := &Slot{Index: index, owner: OwnerApplication}
	for p, plane := range buf.Planes {
		mem := PlaneMemory{FD: -1, Length: plane.Length}
		switch d.cfg.Memory {
		case MemoryDMABUF:
			fd, err := d.drv.ExportPlane(index, uint32(p))
			if err != nil {
				d.releaseSlot(slot)
				return nil, fmt.Errorf("VIDIOC_EXPBUF plane %d: %w", p, err)
			}
			mem.FD = fd
		default:
			data, err := d.drv.Map(plane.MemOffset, plane.Length)
			if err != nil {
				d.releaseSlot(slot)
				return nil, fmt.Errorf("mmap plane %d: %w", p, err)
			}
			mem.Data = data
		}
		slot.Planes = append(slot.Planes, mem)
	}
	return slot, nil
}

// releaseSlot unmaps and closes planes in reverse order.
func (d *Device) releaseSlot(s *Slot) {
	for p := len(s.Planes) - 1; p >= 0; p-- {
		mem := s.Planes[p]
		if mem.Data != nil {
			if err := d.drv.Unmap(mem.Data); err != nil {
				d.logger.Warn("Failed to unmap plane", "index", s.Index, "plane", p, "error", err)
			}
		}
		if mem.FD >= 0 {
			if err := d.drv.CloseFD(mem.FD); err != nil {
				d.logger.Warn("Failed to close exported plane", "index", s.Index, "plane", p, "error", err)
			}
		}
	}
	s.Planes = nil
}

func (d *Device) releaseSlots(slots []*Slot) {
	for i := len(slots) - 1; i >= 0; i-- {
		d.releaseSlot(slots[i])
	}
}

// Slots returns the buffer pool.
func (d *Device) Slots() []*Slot {
	return d.slots
}

func (d *Device) queue(s *Slot) error {
	planes := make([]v4l2.Plane, len(s.Planes))
	for i, mem := range s.Planes {
		planes[i] = v4l2.Plane{Length: mem.Length}
	}
	if err := d.drv.QueueBufferMPlane(s.Index, v4l2.MemoryMMAP, planes); err != nil {
		return deverr.Devicef("VIDIOC_QBUF", err, "queue buffer %d", s.Index)
	}
	s.owner = OwnerDriver
	return nil
}

// QueueAll hands every slot to the driver.
func (d *Device) QueueAll() error {
	if err := d.expect("queue all", StateBuffersAllocated, StateStopped); err != nil {
		return err
	}
	for _, s := range d.slots {
		if s.owner == OwnerDriver {
			continue
		}
		if err := d.queue(s); err != nil {
			return err
		}
	}
	return nil
}

// StreamOn starts capture.
func (d *Device) StreamOn() error {
	if err := d.expect("stream on", StateBuffersAllocated, StateStopped); err != nil {
		return err
	}
	if err := d.drv.StreamOn(v4l2.BufTypeVideoCaptureMPlane); err != nil {
		return deverr.Devicef("VIDIOC_STREAMON", err, "start streaming")
	}
	d.logger.Info("Capture streaming started", "device", d.cfg.Device)
	d.setState(StateStreaming)
	return nil
}

// Start runs Open, Negotiate, AllocateBuffers, QueueAll and StreamOn. On
// failure the device is closed again.
func (d *Device) Start() error {
	steps := []func() error{d.Open, d.Negotiate, d.AllocateBuffers, d.QueueAll, d.StreamOn}
	for _, step := range steps {
		if err := step(); err != nil {
			if closeErr := d.Close(); closeErr != nil {
				d.logger.Warn("Cleanup after failed start", "error", closeErr)
			}
			return err
		}
	}
	return nil
}

// Dequeue blocks until the driver fills a buffer and returns it. The slot
// is owned by the application until it is requeued or handed to display.
func (d *Device) Dequeue() (Frame, error) {
	if err := d.expect("dequeue", StateStreaming); err != nil {
		return Frame{}, err
	}

	buf, err := d.drv.DequeueBufferMPlane(v4l2.MemoryMMAP, len(d.applied.Planes))
	if err != nil {
		return Frame{}, deverr.Devicef("VIDIOC_DQBUF", err, "dequeue buffer")
	}
	if int(buf.Index) >= len(d.slots) {
		return Frame{}, deverr.Devicef("VIDIOC_DQBUF", nil, "driver returned unknown buffer %d", buf.Index)
	}

	slot := d.slots[buf.Index]
	slot.owner = OwnerApplication

	d.mu.Lock()
	if d.dequeued > 0 && buf.Sequence > d.lastSeq+1 {
		d.skipped += uint64(buf.Sequence - d.lastSeq - 1)
	}
	d.dequeued++
	d.lastSeq = buf.Sequence
	d.mu.Unlock()

	used := make([]uint32, len(buf.Planes))
	for i, p := range buf.Planes {
		used[i] = p.BytesUsed
	}

	return Frame{
		Slot:        slot,
		Sequence:    buf.Sequence,
		Timestamp:   buf.Timestamp,
		BytesUsed:   used,
		Width:       d.applied.Width,
		Height:      d.applied.Height,
		Stride:      d.applied.Planes[0].BytesPerLine,
		PixelFormat: fourcc.Code(d.applied.PixelFormat),
	}, nil
}

// MarkDisplayed records that the slot's memory is now being scanned out.
func (d *Device) MarkDisplayed(s *Slot) error {
	if s.owner != OwnerApplication {
		return fmt.Errorf("mark displayed buffer %d: held by %s", s.Index, s.owner)
	}
	s.owner = OwnerDisplay
	return nil
}

// Requeue returns a slot to the driver. Only the application or display
// may requeue; a slot already queued is rejected.
func (d *Device) Requeue(s *Slot) error {
	if err := d.expect("requeue", StateStreaming); err != nil {
		return err
	}
	if s.owner == OwnerDriver {
		return fmt.Errorf("requeue buffer %d: already queued", s.Index)
	}
	return d.queue(s)
}

// StreamOff stops capture. The kernel returns every buffer to the
// application.
func (d *Device) StreamOff() error {
	if err := d.expect("stream off", StateStreaming); err != nil {
		return err
	}
	if err := d.drv.StreamOff(v4l2.BufTypeVideoCaptureMPlane); err != nil {
		return deverr.Devicef("VIDIOC_STREAMOFF", err, "stop streaming")
	}
	for _, s := range d.slots {
		s.owner = OwnerApplication
	}
	d.logger.Info("Capture streaming stopped", "device", d.cfg.Device)
	d.setState(StateStopped)
	return nil
}

// Close releases every resource in reverse order of acquisition,
// whatever the current state. It is safe to call more than once.
func (d *Device) Close() error {
	if d.State() == StateClosed {
		return nil
	}

	var errs []error
	if d.State() == StateStreaming {
		if err := d.StreamOff(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(d.slots) > 0 {
		d.releaseSlots(d.slots)
		d.slots = nil
		d.mu.Lock()
		d.poolSize = 0
		d.mu.Unlock()
		if _, err := d.drv.RequestBuffers(v4l2.BufTypeVideoCaptureMPlane, v4l2.MemoryMMAP, 0); err != nil {
			errs = append(errs, deverr.Devicef("VIDIOC_REQBUFS", err, "release buffers"))
		}
	}

	if d.drv != nil {
		if err := d.drv.Close(); err != nil {
			errs = append(errs, deverr.Devicef("close", err, "close %s", d.cfg.Device))
		}
		d.drv = nil
	}

	d.setState(StateClosed)
	return errors.Join(errs...)
}

// Stats returns a snapshot of the capture counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		State:        d.state,
		Width:        d.applied.Width,
		Height:       d.applied.Height,
		PixelFormat:  fourcc.Decode(d.applied.PixelFormat),
		PoolSize:     d.poolSize,
		Dequeued:     d.dequeued,
		LastSequence: d.lastSeq,
		SkippedSeq:   d.skipped,
	}
}
