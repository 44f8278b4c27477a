package display

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"syscall"

	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

type commit struct {
	props    []drm.AtomicProperty
	flags    uint32
	userData uint64
}

// fakeCard is an in-memory DRM card with one HDMI output.
type fakeCard struct {
	path string

	res        drm.Resources
	connectors map[uint32]*drm.Connector
	encoders   map[uint32]*drm.Encoder
	crtcs      map[uint32]*drm.Crtc
	planeIDs   []uint32
	planes     map[uint32]*drm.Plane
	planeTypes map[uint32]uint64
	objProps   map[uint32]map[string]uint32
	propNames  map[uint32]string
	caps       map[uint64]uint64

	failAtomicCap bool
	failCommit    error

	nextID  uint32
	blobs   map[uint32]bool
	fbs     map[uint32]drm.FramebufferCmd
	dumbs   map[uint32]bool
	handles map[uint32]int // open GEM handle → reference count
	commits []commit
	events  []drm.Event
	ops     []string
	closed  bool
}

func newFakeCard(path string) *fakeCard {
	c := &fakeCard{
		path: path,
		res: drm.Resources{
			Crtcs:      []uint32{50, 51},
			Connectors: []uint32{30, 31},
			Encoders:   []uint32{40},
		},
		connectors: map[uint32]*drm.Connector{
			30: {ID: 30, Connection: drm.Disconnected},
			31: {
				ID:         31,
				EncoderID:  40,
				Connection: drm.Connected,
				Modes:      []drm.ModeInfo{testMode(1280, 720, 0), testMode(1920, 1080, drm.ModeTypePreferred)},
				Encoders:   []uint32{40},
			},
		},
		encoders: map[uint32]*drm.Encoder{
			40: {ID: 40, CrtcID: 51, PossibleCrtcs: 0b11},
		},
		crtcs: map[uint32]*drm.Crtc{
			50: {ID: 50},
			51: {ID: 51},
		},
		planeIDs: []uint32{60, 61, 62},
		planes: map[uint32]*drm.Plane{
			60: {ID: 60, PossibleCrtcs: 0b01, Formats: []uint32{uint32(fourcc.XR24), uint32(fourcc.NV12)}},
			61: {ID: 61, PossibleCrtcs: 0b10, Formats: []uint32{uint32(fourcc.NV12)}},
			62: {ID: 62, PossibleCrtcs: 0b10, Formats: []uint32{uint32(fourcc.XR24), uint32(fourcc.NV12)}},
		},
		planeTypes: map[uint32]uint64{60: drm.PlaneTypePrimary, 61: drm.PlaneTypeOverlay, 62: drm.PlaneTypePrimary},
		objProps:   map[uint32]map[string]uint32{},
		propNames:  map[uint32]string{},
		caps: map[uint64]uint64{
			drm.CapDumbBuffer: 1,
			drm.CapPrime:      drm.PrimeCapImport | drm.PrimeCapExport,
		},
		nextID:  1000,
		blobs:   map[uint32]bool{},
		fbs:     map[uint32]drm.FramebufferCmd{},
		dumbs:   map[uint32]bool{},
		handles: map[uint32]int{},
	}

	propID := uint32(100)
	define := func(obj uint32, names ...string) {
		c.objProps[obj] = map[string]uint32{}
		for _, n := range names {
			c.objProps[obj][n] = propID
			c.propNames[propID] = n
			propID++
		}
	}
	define(31, "CRTC_ID", "DPMS")
	define(50, "MODE_ID", "ACTIVE")
	define(51, "MODE_ID", "ACTIVE")
	for _, p := range c.planeIDs {
		define(p, "type", "FB_ID", "CRTC_ID", "SRC_X", "SRC_Y", "SRC_W", "SRC_H",
			"CRTC_X", "CRTC_Y", "CRTC_W", "CRTC_H")
	}
	return c
}

func testMode(w, h uint16, typ uint32) drm.ModeInfo {
	m := drm.ModeInfo{Hdisplay: w, Vdisplay: h, Vrefresh: 60, Type: typ}
	copy(m.RawName[:], fmt.Sprintf("%dx%d", w, h))
	return m
}

func (c *fakeCard) id() uint32 {
	c.nextID++
	return c.nextID
}

func (c *fakeCard) Fd() int      { return 7 }
func (c *fakeCard) Path() string { return c.path }

func (c *fakeCard) Close() error {
	c.ops = append(c.ops, "close")
	c.closed = true
	return nil
}

func (c *fakeCard) SetClientCap(capability, _ uint64) error {
	if capability == drm.ClientCapAtomic && c.failAtomicCap {
		return syscall.EOPNOTSUPP
	}
	return nil
}

func (c *fakeCard) GetCap(capability uint64) (uint64, error) {
	v, ok := c.caps[capability]
	if !ok {
		return 0, syscall.EINVAL
	}
	return v, nil
}

func (c *fakeCard) Resources() (*drm.Resources, error) {
	res := c.res
	return &res, nil
}

func (c *fakeCard) Connector(id uint32) (*drm.Connector, error) {
	if conn, ok := c.connectors[id]; ok {
		return conn, nil
	}
	return nil, syscall.ENOENT
}

func (c *fakeCard) Encoder(id uint32) (*drm.Encoder, error) {
	if enc, ok := c.encoders[id]; ok {
		return enc, nil
	}
	return nil, syscall.ENOENT
}

func (c *fakeCard) Crtc(id uint32) (*drm.Crtc, error) {
	if crtc, ok := c.crtcs[id]; ok {
		return crtc, nil
	}
	return nil, syscall.ENOENT
}

func (c *fakeCard) PlaneResources() ([]uint32, error) {
	return c.planeIDs, nil
}

func (c *fakeCard) Plane(id uint32) (*drm.Plane, error) {
	if p, ok := c.planes[id]; ok {
		return p, nil
	}
	return nil, syscall.ENOENT
}

func (c *fakeCard) ObjectProperties(objectID, objectType uint32) (*drm.ObjectProperties, error) {
	props, ok := c.objProps[objectID]
	if !ok {
		return nil, syscall.ENOENT
	}
	out := &drm.ObjectProperties{ObjectID: objectID, ObjectType: objectType}
	for _, id := range props {
		out.Props = append(out.Props, id)
	}
	slices.Sort(out.Props)
	for _, id := range out.Props {
		var v uint64
		if c.propNames[id] == "type" {
			v = c.planeTypes[objectID]
		}
		out.Values = append(out.Values, v)
	}
	return out, nil
}

func (c *fakeCard) Property(id uint32) (*drm.Property, error) {
	name, ok := c.propNames[id]
	if !ok {
		return nil, syscall.ENOENT
	}
	return &drm.Property{ID: id, Name: name}, nil
}

func (c *fakeCard) CreatePropertyBlob([]byte) (uint32, error) {
	id := c.id()
	c.blobs[id] = true
	return id, nil
}

func (c *fakeCard) DestroyPropertyBlob(id uint32) error {
	c.ops = append(c.ops, "destroy-blob")
	delete(c.blobs, id)
	return nil
}

func (c *fakeCard) AtomicCommit(req *drm.AtomicRequest, flags uint32, userData uint64) error {
	if c.failCommit != nil {
		return c.failCommit
	}
	c.commits = append(c.commits, commit{props: req.Properties(), flags: flags, userData: userData})
	return nil
}

func (c *fakeCard) CreateDumb(width, height, bpp uint32) (*drm.DumbBuffer, error) {
	// Pad rows so the pitch never equals width*bytes-per-pixel.
	pitch := (width*bpp/8+255)&^255 + 64
	h := c.id()
	c.dumbs[h] = true
	return &drm.DumbBuffer{Handle: h, Width: width, Height: height, Bpp: bpp, Pitch: pitch, Size: uint64(pitch) * uint64(height)}, nil
}

func (c *fakeCard) MapDumb(handle uint32) (uint64, error) {
	return uint64(handle) << 12, nil
}

func (c *fakeCard) DestroyDumb(handle uint32) error {
	c.ops = append(c.ops, "destroy-dumb")
	delete(c.dumbs, handle)
	return nil
}

func (c *fakeCard) Mmap(_ uint64, length int) ([]byte, error) {
	return make([]byte, length), nil
}

func (c *fakeCard) Munmap([]byte) error {
	return nil
}

func (c *fakeCard) AddFB2(cmd *drm.FramebufferCmd) (uint32, error) {
	id := c.id()
	c.fbs[id] = *cmd
	return id, nil
}

func (c *fakeCard) RmFB(id uint32) error {
	c.ops = append(c.ops, "rmfb")
	delete(c.fbs, id)
	return nil
}

func (c *fakeCard) PrimeFDToHandle(fd int) (uint32, error) {
	if fd < 0 {
		return 0, syscall.EBADF
	}
	h := uint32(fd) + 500
	c.handles[h]++
	return h, nil
}

func (c *fakeCard) CloseHandle(handle uint32) error {
	delete(c.handles, handle)
	return nil
}

func (c *fakeCard) ReadEvents() ([]drm.Event, error) {
	events := c.events
	c.events = nil
	return events, nil
}

// lastCommit returns the values of the last commit keyed by property name.
func (c *fakeCard) lastCommit() map[string]uint64 {
	out := map[string]uint64{}
	if len(c.commits) == 0 {
		return out
	}
	for _, p := range c.commits[len(c.commits)-1].props {
		out[fmt.Sprintf("%d.%s", p.ObjectID, c.propNames[p.PropertyID])] = p.Value
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDisplay(cfg Config, cards map[string]*fakeCard) (*Device, error) {
	return New(cfg,
		WithLogger(discardLogger()),
		WithOpener(func(path string) (Card, error) {
			if c, ok := cards[path]; ok {
				return c, nil
			}
			return nil, syscall.ENOENT
		}),
	)
}
