// Package display drives a DRM/KMS card through atomic modesetting: it
// probes a node, selects a connector → encoder → CRTC → primary plane chain,
// performs the initial modeset and then flips framebuffers one at a time.
package display

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/internal/logging"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// State is the lifecycle state of a display.
type State string

// Display states. Updating and FlipPending are the two phases of scanning.
const (
	StateClosed              State = "closed"
	StateDeviceOpen          State = "device_open"
	StateResourcesDiscovered State = "resources_discovered"
	StateModeSet             State = "mode_set"
	StateUpdating            State = "updating"
	StateFlipPending         State = "flip_pending"
)

// Scanning reports whether the CRTC is active.
func (s State) Scanning() bool {
	return s == StateModeSet || s == StateUpdating || s == StateFlipPending
}

var (
	// ErrInvalidState is returned when an operation is called out of order.
	ErrInvalidState = errors.New("invalid display state")
	// ErrFlipPending is returned by AtomicUpdate while the previous flip
	// has not completed.
	ErrFlipPending = errors.New("page flip pending")
)

// Stats is a snapshot of display counters.
type Stats struct {
	State        State
	Device       string
	ConnectorID  uint32
	CrtcID       uint32
	PlaneID      uint32
	Mode         string
	Width        uint32
	Height       uint32
	Flips        uint64
	Rejected     uint64
	RefreshHz    float64
	Pending      bool
	Framebuffers int
}

// Option configures a Device.
type Option func(*Device)

// WithOpener replaces the function used to open DRM nodes.
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

// Device is one display output. Its methods must be called from a single
// goroutine; State and Stats may be called from anywhere.
type Device struct {
	cfg    Config
	format fourcc.Code
	open   Opener
	logger *slog.Logger
	hook   func(from, to State)

	initMu sync.Mutex

	card    Card
	alloc   allocator
	props   *propertyCache
	graph   *Graph
	chain   Chain
	blobs   []uint32
	fbs     []*Framebuffer
	dumbs   []*dumbBuffer
	pattern *Framebuffer
	splash  *Framebuffer
	seq     uint64

	completions chan Flip

	mu        sync.Mutex
	state     State
	path      string
	selected  Chain
	nfbs      int
	pending   bool
	pendingFB *Framebuffer
	scanout   *Framebuffer
	flips     uint64
	rejected  uint64
	lastFlip  time.Duration
	refreshHz float64
}

// New validates cfg and returns a closed display.
func New(cfg Config, opts ...Option) (*Device, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, _ := fourcc.Encode(cfg.Format)

	d := &Device{
		cfg:         cfg,
		format:      format,
		open:        openDRM,
		logger:      logging.GetLogger("display"),
		state:       StateClosed,
		completions: make(chan Flip, 1),
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
		d.logger.Debug("Display state changed", "from", from, "to", to)
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

// Fd returns the card descriptor, or -1 when closed.
func (d *Device) Fd() int {
	if d.card == nil {
		return -1
	}
	return d.card.Fd()
}

// Graph returns the object graph read by Discover.
func (d *Device) Graph() *Graph {
	return d.graph
}

// Chain returns the selected output chain.
func (d *Device) Chain() Chain {
	return d.chain
}

// Open probes the candidate nodes and keeps the first one that supports
// atomic modesetting, has a connector and a CRTC, and can allocate the
// configured format.
func (d *Device) Open() error {
	if err := d.expect("open", StateClosed); err != nil {
		return err
	}

	usage := UsageScanout
	if d.cfg.GPU {
		usage |= UsageRendering
	}

	var errs []error
	for _, path := range d.cfg.Devices {
		card, err := d.open(path)
		if err != nil {
			d.logger.Debug("Display candidate unavailable", "device", path, "error", err)
			errs = append(errs, err)
			continue
		}
		alloc, err := d.probe(card, usage)
		if err != nil {
			d.logger.Debug("Display candidate rejected", "device", path, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			card.Close()
			continue
		}

		d.card = card
		d.alloc = alloc
		d.props = newPropertyCache(card)
		d.mu.Lock()
		d.path = path
		d.mu.Unlock()
		d.logger.Info("Opened display device", "device", path, "format", d.format.String())
		d.setState(StateDeviceOpen)
		return nil
	}
	return deverr.Devicef("open", errors.Join(errs...), "no usable display device in %v", d.cfg.Devices)
}

func (d *Device) probe(card Card, usage Usage) (allocator, error) {
	if err := card.SetClientCap(drm.ClientCapUniversalPlanes, 1); err != nil {
		return nil, fmt.Errorf("enable universal planes: %w", err)
	}
	if err := card.SetClientCap(drm.ClientCapAtomic, 1); err != nil {
		return nil, fmt.Errorf("enable atomic: %w", err)
	}
	res, err := card.Resources()
	if err != nil {
		return nil, fmt.Errorf("get resources: %w", err)
	}
	if len(res.Connectors) == 0 || len(res.Crtcs) == 0 {
		return nil, fmt.Errorf("%d connectors, %d CRTCs", len(res.Connectors), len(res.Crtcs))
	}
	alloc := newDumbAllocator(card)
	if err := alloc.Check(d.format, usage); err != nil {
		return nil, err
	}
	return alloc, nil
}

// Discover enumerates the card and selects the output chain.
func (d *Device) Discover() error {
	if err := d.expect("discover", StateDeviceOpen); err != nil {
		return err
	}

	graph, err := Enumerate(d.card)
	if err != nil {
		return err
	}
	chain, err := SelectChain(graph, d.format)
	if err != nil {
		return err
	}

	d.graph = graph
	d.chain = chain
	d.mu.Lock()
	d.selected = chain
	d.mu.Unlock()
	d.logger.Info("Selected display chain",
		"connector", chain.Connector.ID,
		"mode", chain.Mode.Name(),
		"refresh", chain.Mode.Vrefresh,
		"encoder", chain.Encoder.ID,
		"crtc", chain.Crtc.ID,
		"plane", chain.Plane.ID)
	d.setState(StateResourcesDiscovered)
	return nil
}

// Initialize opens, discovers and modesets with the initial framebuffer.
// Calling it again once the mode is set does nothing.
func (d *Device) Initialize() error {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	if d.State().Scanning() {
		return nil
	}
	if d.State() == StateClosed {
		if err := d.Open(); err != nil {
			return err
		}
	}
	if d.State() == StateDeviceOpen {
		if err := d.Discover(); err != nil {
			return err
		}
	}

	fb, err := d.initialFramebuffer()
	if err != nil {
		return err
	}
	return d.AtomicModeSet(fb)
}

// initialFramebuffer is the splash when one is configured and loads,
// else the test pattern.
func (d *Device) initialFramebuffer() (*Framebuffer, error) {
	if !d.cfg.TestPattern && d.cfg.Splash != "" {
		fb, err := d.CreateSplash(d.cfg.Splash)
		if err == nil {
			return fb, nil
		}
		d.logger.Warn("Splash unavailable, showing test pattern", "image", d.cfg.Splash, "error", err)
	}
	return d.CreateTestPattern(d.cfg.Color)
}

// Close releases framebuffers, then property blobs, then dumb buffers and
// finally the card. It is safe to call more than once.
func (d *Device) Close() error {
	if d.State() == StateClosed {
		return nil
	}

	var errs []error
	for i := len(d.fbs) - 1; i >= 0; i-- {
		if err := d.card.RmFB(d.fbs[i].ID); err != nil {
			errs = append(errs, fmt.Errorf("remove framebuffer %d: %w", d.fbs[i].ID, err))
		}
	}
	for i := len(d.blobs) - 1; i >= 0; i-- {
		if err := d.card.DestroyPropertyBlob(d.blobs[i]); err != nil {
			errs = append(errs, fmt.Errorf("destroy blob %d: %w", d.blobs[i], err))
		}
	}
	for i := len(d.dumbs) - 1; i >= 0; i-- {
		if err := d.dumbs[i].release(d.card); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.card.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close %s: %w", d.card.Path(), err))
	}

	d.fbs, d.blobs, d.dumbs = nil, nil, nil
	d.pattern, d.splash = nil, nil
	d.card, d.alloc, d.props, d.graph = nil, nil, nil, nil

	d.mu.Lock()
	d.pending = false
	d.pendingFB = nil
	d.scanout = nil
	d.nfbs = 0
	d.path = ""
	d.mu.Unlock()

	d.logger.Info("Display closed")
	d.setState(StateClosed)
	if len(errs) > 0 {
		return deverr.Devicef("close", errors.Join(errs...), "release display resources")
	}
	return nil
}

// Stats returns a snapshot of the display counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		State:        d.state,
		Flips:        d.flips,
		Rejected:     d.rejected,
		RefreshHz:    d.refreshHz,
		Pending:      d.pending,
		Framebuffers: d.nfbs,
		Device:       d.path,
	}
	if d.state != StateClosed && d.state != StateDeviceOpen {
		s.ConnectorID = d.selected.Connector.ID
		s.CrtcID = d.selected.Crtc.ID
		s.PlaneID = d.selected.Plane.ID
		s.Mode = d.selected.Mode.Name()
		s.Width = uint32(d.selected.Mode.Hdisplay)
		s.Height = uint32(d.selected.Mode.Vdisplay)
	}
	return s
}
