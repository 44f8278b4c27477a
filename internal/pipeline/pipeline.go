// Package pipeline runs the single-goroutine loop that moves captured
// frames onto the display. It waits on the display descriptor, drains
// flip completions, recycles the buffer that just left the screen and
// submits the next frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/framepipe/internal/capture"
	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/internal/display"
	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/internal/metrics"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// Source produces captured frames. *capture.Device implements it.
type Source interface {
	Start() error
	Dequeue() (capture.Frame, error)
	MarkDisplayed(s *capture.Slot) error
	Requeue(s *capture.Slot) error
	Close() error
	Stats() capture.Stats
}

// Sink shows framebuffers. *display.Device implements it.
type Sink interface {
	Initialize() error
	Fd() int
	HandleEvent() (int, error)
	Completions() <-chan display.Flip
	Pending() bool
	AtomicUpdate(fb *display.Framebuffer) error
	CreateTestPattern(color uint32) (*display.Framebuffer, error)
	CreateScanoutBuffer(width, height uint32) (*display.Framebuffer, error)
	ImportCamera(buf display.CameraBuffer) (*display.Framebuffer, error)
	Close() error
	Stats() display.Stats
}

// Publisher receives pipeline events. *events.Bus implements it.
type Publisher interface {
	Publish(ev events.Event)
}

// Config controls the loop.
type Config struct {
	// PollTimeout bounds each wait on the display descriptor, which is
	// how often cancellation is observed.
	PollTimeout time.Duration
	// ShutdownTimeout bounds the wait for an in-flight flip on shutdown.
	ShutdownTimeout time.Duration
	// Memory is the capture memory type. Exported buffers are imported
	// directly; mapped buffers are copied into scanout buffers.
	Memory capture.MemoryType
	// Color is the test pattern color for display-only mode.
	Color uint32
}

// DefaultConfig returns the loop defaults.
func DefaultConfig() Config {
	return Config{
		PollTimeout:     100 * time.Millisecond,
		ShutdownTimeout: 500 * time.Millisecond,
		Memory:          capture.MemoryMMAP,
		Color:           0x2060a0,
	}
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Running   bool
	Shown     uint64
	Dropped   uint64
	StartedAt time.Time
	Display   display.Stats
	Capture   *capture.Stats
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithPublisher publishes flip and drop events.
func WithPublisher(p Publisher) Option {
	return func(l *Loop) {
		l.bus = p
	}
}

// WithReadyHook is called once the first frame has been submitted.
func WithReadyHook(fn func()) Option {
	return func(l *Loop) {
		l.onReady = fn
	}
}

// Loop couples one Source and one Sink. A nil Source runs display-only.
type Loop struct {
	cfg     Config
	source  Source
	sink    Sink
	logger  *slog.Logger
	bus     Publisher
	onReady func()
	wait    waitFunc

	pattern   *display.Framebuffer
	fbs       map[uint32]*display.Framebuffer
	displayed *capture.Slot
	inflight  *capture.Slot

	mu        sync.Mutex
	running   bool
	shown     uint64
	dropped   uint64
	startedAt time.Time
}

// New creates a loop. source may be nil for display-only mode.
func New(cfg Config, source Source, sink Sink, opts ...Option) *Loop {
	l := &Loop{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logging.GetLogger("pipeline"),
		wait:   pollReadable,
		fbs:    make(map[uint32]*display.Framebuffer),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run initializes both devices, streams until ctx is done and tears
// everything down: pending flip, then display, then capture.
func (l *Loop) Run(ctx context.Context) (err error) {
	if err := l.sink.Initialize(); err != nil {
		l.sink.Close()
		return fmt.Errorf("initialize display: %w", err)
	}
	if l.source != nil {
		if err := l.source.Start(); err != nil {
			l.sink.Close()
			return fmt.Errorf("start capture: %w", err)
		}
	}

	l.mu.Lock()
	l.running = true
	l.startedAt = time.Now()
	l.mu.Unlock()

	defer func() {
		err = errors.Join(err, l.shutdown())
	}()

	if err := l.submitNext(); err != nil {
		return err
	}
	if l.onReady != nil {
		l.onReady()
	}
	l.logger.Info("Pipeline running", "display_only", l.source == nil, "memory", l.cfg.Memory)

	for {
		if ctx.Err() != nil {
			l.logger.Info("Pipeline stopping", "reason", context.Cause(ctx))
			return nil
		}

		ready, err := l.wait(l.sink.Fd(), l.cfg.PollTimeout)
		if err != nil {
			return deverr.Devicef("poll", err, "wait for display events")
		}
		if !ready {
			continue
		}
		if _, err := l.sink.HandleEvent(); err != nil {
			return err
		}
		if err := l.drain(true); err != nil {
			return err
		}
	}
}

// drain consumes delivered completions. With submit set each completion
// triggers the next submission.
func (l *Loop) drain(submit bool) error {
	for {
		select {
		case flip := <-l.sink.Completions():
			if err := l.onFlip(flip, submit); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (l *Loop) onFlip(flip display.Flip, submit bool) error {
	l.mu.Lock()
	l.shown++
	l.mu.Unlock()

	if l.bus != nil {
		var fbID uint32
		if flip.Framebuffer != nil {
			fbID = flip.Framebuffer.ID
		}
		l.bus.Publish(events.FlipCompletedEvent{
			Sequence:      flip.Sequence,
			Count:         flip.Count,
			RefreshHz:     flip.RefreshHz,
			FramebufferID: fbID,
		})
	}

	if l.source != nil {
		// The slot that was on screen is free; the one in flight is now
		// on screen.
		if l.displayed != nil {
			if err := l.source.Requeue(l.displayed); err != nil {
				return err
			}
		}
		l.displayed, l.inflight = l.inflight, nil
	}

	if !submit {
		return nil
	}
	return l.submitNext()
}

// submitNext puts the next frame in flight. In display-only mode the
// test pattern is flipped again.
func (l *Loop) submitNext() error {
	if l.source == nil {
		fb, err := l.testPattern()
		if err != nil {
			return err
		}
		if err := l.sink.AtomicUpdate(fb); err != nil && !errors.Is(err, display.ErrFlipPending) {
			return err
		}
		return nil
	}

	frame, err := l.source.Dequeue()
	if err != nil {
		return err
	}

	fb, err := l.framebufferFor(frame)
	if err != nil {
		if reqErr := l.source.Requeue(frame.Slot); reqErr != nil {
			l.logger.Warn("Failed to requeue frame", "index", frame.Slot.Index, "error", reqErr)
		}
		return err
	}

	err = l.sink.AtomicUpdate(fb)
	if errors.Is(err, display.ErrFlipPending) {
		l.drop(frame, "flip_pending")
		return l.source.Requeue(frame.Slot)
	}
	if err != nil {
		if reqErr := l.source.Requeue(frame.Slot); reqErr != nil {
			l.logger.Warn("Failed to requeue frame", "index", frame.Slot.Index, "error", reqErr)
		}
		return err
	}

	if err := l.source.MarkDisplayed(frame.Slot); err != nil {
		return err
	}
	l.inflight = frame.Slot
	return nil
}

func (l *Loop) testPattern() (*display.Framebuffer, error) {
	if l.pattern != nil {
		return l.pattern, nil
	}
	fb, err := l.sink.CreateTestPattern(l.cfg.Color)
	if err != nil {
		return nil, err
	}
	l.pattern = fb
	return fb, nil
}

func (l *Loop) drop(frame capture.Frame, reason string) {
	l.mu.Lock()
	l.dropped++
	l.mu.Unlock()

	l.logger.Debug("Dropped frame", "sequence", frame.Sequence, "reason", reason)
	if l.bus != nil {
		l.bus.Publish(events.FrameDroppedEvent{
			Sequence:  frame.Sequence,
			Reason:    reason,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}

// framebufferFor returns the framebuffer bound to the frame's slot,
// creating it on first use. Exported buffers are imported once; mapped
// buffers get a scanout buffer that the frame is copied into.
func (l *Loop) framebufferFor(frame capture.Frame) (*display.Framebuffer, error) {
	fb, ok := l.fbs[frame.Slot.Index]
	if !ok {
		if err := l.checkFrameSize(frame); err != nil {
			return nil, err
		}
	}

	if l.cfg.Memory == capture.MemoryDMABUF {
		if ok {
			return fb, nil
		}
		fds := make([]int, len(frame.Slot.Planes))
		for i, p := range frame.Slot.Planes {
			fds[i] = p.FD
		}
		fb, err := l.sink.ImportCamera(display.CameraBuffer{
			FDs:    fds,
			Width:  frame.Width,
			Height: frame.Height,
			Stride: frame.Stride,
			Format: frame.PixelFormat,
		})
		if err != nil {
			return nil, err
		}
		l.fbs[frame.Slot.Index] = fb
		return fb, nil
	}

	if !ok {
		var err error
		fb, err = l.sink.CreateScanoutBuffer(frame.Width, frame.Height)
		if err != nil {
			return nil, err
		}
		l.fbs[frame.Slot.Index] = fb
	}
	if err := copyFrame(fb, frame); err != nil {
		return nil, err
	}
	return fb, nil
}

// checkFrameSize rejects frames smaller than the display mode. The plane
// source rectangle is the mode size, so a smaller framebuffer fails the
// atomic check on every flip. Larger frames are cropped.
func (l *Loop) checkFrameSize(frame capture.Frame) error {
	ds := l.sink.Stats()
	if frame.Width >= ds.Width && frame.Height >= ds.Height {
		return nil
	}
	err := deverr.New(deverr.KindNegotiation, "frame size",
		fmt.Sprintf("capture frame %dx%d is smaller than display mode %s (%dx%d)",
			frame.Width, frame.Height, ds.Mode, ds.Width, ds.Height), nil)
	l.logger.Error("Capture size does not cover the display mode",
		"capture", fmt.Sprintf("%dx%d", frame.Width, frame.Height),
		"mode", ds.Mode, "error", err)
	return err
}

// copyFrame copies a mapped NV12 or NM12 frame into an NV12 scanout
// buffer row by row, honouring both strides.
func copyFrame(dst *display.Framebuffer, frame capture.Frame) error {
	if dst.Format != fourcc.NV12 || (frame.PixelFormat != fourcc.NV12 && frame.PixelFormat != fourcc.NM12) {
		return deverr.New(deverr.KindNegotiation, "copy frame",
			fmt.Sprintf("cannot show %s frames on a %s plane", frame.PixelFormat, dst.Format), nil)
	}
	if len(frame.Slot.Planes) == 0 || frame.Slot.Planes[0].Data == nil {
		return fmt.Errorf("copy frame: slot %d is not mapped", frame.Slot.Index)
	}

	w, h := int(min(frame.Width, dst.Width)), int(min(frame.Height, dst.Height))
	stride, pitch := int(frame.Stride), int(dst.Pitch)
	luma := frame.Slot.Planes[0].Data
	chroma, chromaBase := luma, stride*int(frame.Height)
	if frame.PixelFormat == fourcc.NM12 && len(frame.Slot.Planes) > 1 {
		chroma, chromaBase = frame.Slot.Planes[1].Data, 0
	}
	dstChroma := pitch * int(dst.Height)

	for y := 0; y < h; y++ {
		copyRow(dst.Data, y*pitch, luma, y*stride, w)
	}
	for y := 0; y < h/2; y++ {
		copyRow(dst.Data, dstChroma+y*pitch, chroma, chromaBase+y*stride, w)
	}
	return nil
}

func copyRow(dst []byte, dstOff int, src []byte, srcOff, n int) {
	if dstOff >= len(dst) || srcOff >= len(src) {
		return
	}
	n = min(n, len(dst)-dstOff, len(src)-srcOff)
	copy(dst[dstOff:dstOff+n], src[srcOff:srcOff+n])
}

// shutdown waits a bounded time for the in-flight flip, then closes the
// display before the capture device.
func (l *Loop) shutdown() error {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()

	deadline := time.Now().Add(l.cfg.ShutdownTimeout)
	for l.sink.Pending() && time.Now().Before(deadline) {
		ready, err := l.wait(l.sink.Fd(), min(l.cfg.PollTimeout, time.Until(deadline)))
		if err != nil {
			break
		}
		if ready {
			if _, err := l.sink.HandleEvent(); err != nil {
				break
			}
			if err := l.drain(false); err != nil {
				l.logger.Warn("Failed to recycle frame during shutdown", "error", err)
			}
		}
	}
	if l.sink.Pending() {
		l.logger.Warn("Flip still pending at shutdown", "timeout", l.cfg.ShutdownTimeout)
	}

	var errs []error
	if err := l.sink.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close display: %w", err))
	}
	if l.source != nil {
		if err := l.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture: %w", err))
		}
	}
	clear(l.fbs)
	l.pattern, l.displayed, l.inflight = nil, nil, nil

	l.logger.Info("Pipeline stopped", "shown", l.Stats().Shown, "dropped", l.Stats().Dropped)
	return errors.Join(errs...)
}

// Stats returns a snapshot of the loop and device counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	s := Stats{
		Running:   l.running,
		Shown:     l.shown,
		Dropped:   l.dropped,
		StartedAt: l.startedAt,
	}
	l.mu.Unlock()

	s.Display = l.sink.Stats()
	if l.source != nil {
		cs := l.source.Stats()
		s.Capture = &cs
	}
	return s
}

// Metrics converts Stats into the metrics snapshot.
func (l *Loop) Metrics() metrics.PipelineMetrics {
	s := l.Stats()
	m := metrics.PipelineMetrics{
		DisplayState: string(s.Display.State),
		Flips:        float64(s.Display.Flips),
		Rejected:     float64(s.Display.Rejected),
		RefreshHz:    s.Display.RefreshHz,
		Dropped:      float64(s.Dropped),
	}
	if s.Capture != nil {
		m.CaptureState = string(s.Capture.State)
		m.Dequeued = float64(s.Capture.Dequeued)
		m.Skipped = float64(s.Capture.SkippedSeq)
		m.PoolSize = float64(s.Capture.PoolSize)
	}
	return m
}
