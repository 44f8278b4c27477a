package display

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

func defaultTestConfig() Config {
	cfg := DefaultConfig()
	cfg.Devices = []string{"/dev/dri/card0"}
	return cfg
}

func initializedDisplay(t *testing.T) (*Device, *fakeCard) {
	t.Helper()
	card := newFakeCard("/dev/dri/card0")
	d, err := newTestDisplay(defaultTestConfig(), map[string]*fakeCard{"/dev/dri/card0": card})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return d, card
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"xrgb", func(c *Config) { c.Format = "XR24" }, false},
		{"no devices", func(c *Config) { c.Devices = nil }, true},
		{"short fourcc", func(c *Config) { c.Format = "XR2" }, true},
		{"unsupported format", func(c *Config) { c.Format = "YUYV" }, true},
		{"color out of range", func(c *Config) { c.Color = 0x1000000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, deverr.Configuration) {
				t.Errorf("error kind = %v, want configuration", deverr.KindOf(err))
			}
		})
	}
}

func TestOpenProbesCandidatesInOrder(t *testing.T) {
	noAtomic := newFakeCard("/dev/dri/card0")
	noAtomic.failAtomicCap = true
	good := newFakeCard("/dev/dri/card1")

	cfg := DefaultConfig()
	d, err := newTestDisplay(cfg, map[string]*fakeCard{
		"/dev/dri/card0": noAtomic,
		"/dev/dri/card1": good,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Open(); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if got := d.Stats().Device; got != "/dev/dri/card1" {
		t.Errorf("opened %q, want /dev/dri/card1", got)
	}
	if !noAtomic.closed {
		t.Error("rejected candidate was not closed")
	}
	if d.State() != StateDeviceOpen {
		t.Errorf("state = %s, want %s", d.State(), StateDeviceOpen)
	}
}

func TestOpenRejectsCardWithoutOutputs(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	card.res.Connectors = nil

	d, _ := newTestDisplay(defaultTestConfig(), map[string]*fakeCard{"/dev/dri/card0": card})
	err := d.Open()
	if !errors.Is(err, deverr.Device) {
		t.Fatalf("Open() error = %v, want device error", err)
	}
	if d.State() != StateClosed {
		t.Errorf("state = %s, want %s", d.State(), StateClosed)
	}
}

func TestOpenChecksAllocator(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	card.caps[drm.CapPrime] = 0

	cfg := defaultTestConfig()
	cfg.GPU = true
	d, _ := newTestDisplay(cfg, map[string]*fakeCard{"/dev/dri/card0": card})
	if err := d.Open(); err == nil {
		t.Fatal("Open() should fail when PRIME import is required but missing")
	}

	cfg.GPU = false
	card.closed = false
	d, _ = newTestDisplay(cfg, map[string]*fakeCard{"/dev/dri/card0": card})
	if err := d.Open(); err != nil {
		t.Fatalf("Open() without GPU usage error: %v", err)
	}
}

func TestInitializeSetsMode(t *testing.T) {
	d, card := initializedDisplay(t)

	if d.State() != StateModeSet {
		t.Fatalf("state = %s, want %s", d.State(), StateModeSet)
	}
	if len(card.commits) != 1 {
		t.Fatalf("commits = %d, want 1", len(card.commits))
	}
	if card.commits[0].flags != drm.AtomicAllowModeset {
		t.Errorf("modeset flags = %#x, want ALLOW_MODESET only", card.commits[0].flags)
	}

	got := card.lastCommit()
	want := map[string]uint64{
		"31.CRTC_ID": 51,
		"51.ACTIVE":  1,
		"62.CRTC_ID": 51,
		"62.SRC_X":   0,
		"62.SRC_W":   1920 << 16,
		"62.SRC_H":   1080 << 16,
		"62.CRTC_W":  1920,
		"62.CRTC_H":  1080,
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %d, want %d", k, got[k], v)
		}
	}
	if _, ok := card.blobs[uint32(got["51.MODE_ID"])]; !ok {
		t.Error("MODE_ID does not reference a live blob")
	}
	if _, ok := card.fbs[uint32(got["62.FB_ID"])]; !ok {
		t.Error("FB_ID does not reference a live framebuffer")
	}

	if err := d.Initialize(); err != nil {
		t.Fatalf("second Initialize() error: %v", err)
	}
	if len(card.commits) != 1 {
		t.Errorf("second Initialize() committed again")
	}
}

func TestModeSetMissingPropertyKeepsState(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	delete(card.objProps[31], "CRTC_ID")

	d, _ := newTestDisplay(defaultTestConfig(), map[string]*fakeCard{"/dev/dri/card0": card})
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	if err := d.Discover(); err != nil {
		t.Fatal(err)
	}
	fb, err := d.CreateTestPattern(0xff0000)
	if err != nil {
		t.Fatal(err)
	}

	err = d.AtomicModeSet(fb)
	if !errors.Is(err, deverr.Device) || !errors.Is(err, ErrPropertyNotFound) {
		t.Fatalf("AtomicModeSet() error = %v", err)
	}
	if len(card.blobs) != 0 {
		t.Errorf("mode blob leaked: %v", card.blobs)
	}
	if len(card.commits) != 0 {
		t.Errorf("nothing should be committed, got %d commits", len(card.commits))
	}
	if d.State() != StateResourcesDiscovered {
		t.Errorf("state = %s, want %s", d.State(), StateResourcesDiscovered)
	}
}

func TestModeSetCommitFailure(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	card.failCommit = errors.New("invalid argument")

	d, _ := newTestDisplay(defaultTestConfig(), map[string]*fakeCard{"/dev/dri/card0": card})
	if err := d.Initialize(); !errors.Is(err, deverr.Device) {
		t.Fatalf("Initialize() error = %v, want device error", err)
	}
	if len(card.blobs) != 0 {
		t.Errorf("mode blob leaked after failed commit")
	}
	if d.State() != StateResourcesDiscovered {
		t.Errorf("state = %s, want %s", d.State(), StateResourcesDiscovered)
	}
}

func TestAtomicUpdateSingleFlight(t *testing.T) {
	d, card := initializedDisplay(t)
	fb := d.pattern

	if err := d.AtomicUpdate(fb); err != nil {
		t.Fatalf("AtomicUpdate() error: %v", err)
	}
	c := card.commits[len(card.commits)-1]
	if c.flags != drm.AtomicNonBlock|drm.PageFlipEvent {
		t.Errorf("flip flags = %#x", c.flags)
	}
	if len(c.props) != 1 || card.propNames[c.props[0].PropertyID] != "FB_ID" {
		t.Errorf("flip should set FB_ID only, got %+v", c.props)
	}
	if d.State() != StateFlipPending {
		t.Errorf("state = %s, want %s", d.State(), StateFlipPending)
	}

	if err := d.AtomicUpdate(fb); !errors.Is(err, ErrFlipPending) {
		t.Fatalf("second AtomicUpdate() error = %v, want ErrFlipPending", err)
	}
	if got := d.Stats().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}

	card.events = []drm.Event{
		{Type: drm.EventVblank, Sequence: 9},
		{Type: drm.EventFlipComplete, Sequence: 10, Timestamp: time.Second},
		{Type: drm.EventFlipComplete, Sequence: 11, Timestamp: 2 * time.Second},
	}
	n, err := d.HandleEvent()
	if err != nil {
		t.Fatalf("HandleEvent() error: %v", err)
	}
	if n != 1 {
		t.Errorf("completed flips = %d, want exactly 1", n)
	}
	if d.Pending() {
		t.Error("pending flag not cleared")
	}

	select {
	case flip := <-d.Completions():
		if flip.Framebuffer != fb || flip.Sequence != 10 || flip.Count != 1 {
			t.Errorf("flip = %+v", flip)
		}
	default:
		t.Fatal("no completion delivered")
	}

	if err := d.AtomicUpdate(fb); err != nil {
		t.Errorf("AtomicUpdate() after completion error: %v", err)
	}
}

func TestAtomicUpdateBeforeModeSet(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	d, _ := newTestDisplay(defaultTestConfig(), map[string]*fakeCard{"/dev/dri/card0": card})
	if err := d.Open(); err != nil {
		t.Fatal(err)
	}
	if err := d.AtomicUpdate(&Framebuffer{ID: 1}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("AtomicUpdate() error = %v, want ErrInvalidState", err)
	}
}

func TestRefreshRate(t *testing.T) {
	d, card := initializedDisplay(t)
	frame := time.Second / 60

	for i := 1; i <= 3; i++ {
		if err := d.AtomicUpdate(d.pattern); err != nil {
			t.Fatal(err)
		}
		card.events = []drm.Event{{Type: drm.EventFlipComplete, Timestamp: time.Duration(i) * frame}}
		if _, err := d.HandleEvent(); err != nil {
			t.Fatal(err)
		}
		<-d.Completions()
	}

	stats := d.Stats()
	if stats.Flips != 3 {
		t.Errorf("Flips = %d, want 3", stats.Flips)
	}
	if math.Abs(stats.RefreshHz-60) > 0.01 {
		t.Errorf("RefreshHz = %f, want 60", stats.RefreshHz)
	}
}

func TestFillPatternRespectsPitch(t *testing.T) {
	t.Run("XR24", func(t *testing.T) {
		const width, height, pitch = 3, 2, 16
		data := make([]byte, pitch*height)
		fillPattern(data, pitch, width, height, fourcc.XR24, 0x112233)

		for y := 0; y < height; y++ {
			row := data[y*pitch : (y+1)*pitch]
			for x := 0; x < width; x++ {
				px := row[x*4 : x*4+4]
				if px[0] != 0x33 || px[1] != 0x22 || px[2] != 0x11 || px[3] != 0xff {
					t.Errorf("pixel (%d,%d) = % x", x, y, px)
				}
			}
			for i := width * 4; i < pitch; i++ {
				if row[i] != 0 {
					t.Errorf("padding byte %d of row %d written", i, y)
				}
			}
		}
	})

	t.Run("NV12", func(t *testing.T) {
		const width, height, pitch = 4, 2, 8
		data := make([]byte, pitch*height*3/2)
		fillPattern(data, pitch, width, height, fourcc.NV12, 0xffffff)

		for y := 0; y < height; y++ {
			for x := 0; x < pitch; x++ {
				got := data[y*pitch+x]
				if x < width && got != 235 {
					t.Errorf("Y(%d,%d) = %d, want 235", x, y, got)
				}
				if x >= width && got != 0 {
					t.Errorf("luma padding (%d,%d) written", x, y)
				}
			}
		}
		uv := data[pitch*height:]
		for x := 0; x < width; x++ {
			if uv[x] != 128 {
				t.Errorf("chroma byte %d = %d, want 128", x, uv[x])
			}
		}
		if uv[width] != 0 {
			t.Error("chroma padding written")
		}
	})
}

func TestTestPatternIsReused(t *testing.T) {
	d, card := initializedDisplay(t)

	again, err := d.CreateTestPattern(0)
	if err != nil {
		t.Fatal(err)
	}
	if again != d.pattern {
		t.Error("CreateTestPattern() created a second framebuffer")
	}
	if len(card.fbs) != 1 {
		t.Errorf("framebuffers = %d, want 1", len(card.fbs))
	}
	cmd := card.fbs[again.ID]
	if cmd.Handles[1] != cmd.Handles[0] || cmd.Offsets[1] != cmd.Pitches[0]*1080 {
		t.Errorf("NV12 test pattern planes = %+v", cmd)
	}
}

func TestImportCamera(t *testing.T) {
	tests := []struct {
		name        string
		buf         CameraBuffer
		wantHandles [2]uint32
		wantOffset1 uint32
	}{
		{
			name:        "contiguous NV12",
			buf:         CameraBuffer{FDs: []int{20}, Width: 1920, Height: 1080, Stride: 1920, Format: fourcc.NV12},
			wantHandles: [2]uint32{520, 520},
			wantOffset1: 1920 * 1080,
		},
		{
			name:        "two-plane NM12",
			buf:         CameraBuffer{FDs: []int{20, 21}, Width: 1920, Height: 1080, Stride: 1920, Format: fourcc.NM12},
			wantHandles: [2]uint32{520, 521},
			wantOffset1: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, card := initializedDisplay(t)

			fb, err := d.ImportCamera(tt.buf)
			if err != nil {
				t.Fatalf("ImportCamera() error: %v", err)
			}
			cmd := card.fbs[fb.ID]
			if cmd.PixelFormat != uint32(fourcc.NV12) {
				t.Errorf("framebuffer format = %s", fourcc.Decode(cmd.PixelFormat))
			}
			if cmd.Handles[0] != tt.wantHandles[0] || cmd.Handles[1] != tt.wantHandles[1] {
				t.Errorf("handles = %v, want %v", cmd.Handles[:2], tt.wantHandles)
			}
			if cmd.Pitches[0] != 1920 || cmd.Pitches[1] != 1920 || cmd.Offsets[1] != tt.wantOffset1 {
				t.Errorf("pitches %v offsets %v", cmd.Pitches[:2], cmd.Offsets[:2])
			}
			if len(card.handles) != 0 {
				t.Errorf("GEM handles left open: %v", card.handles)
			}
		})
	}
}

func TestImportRejectsUnsupportedFormats(t *testing.T) {
	d, card := initializedDisplay(t)

	_, err := d.ImportCamera(CameraBuffer{FDs: []int{3}, Width: 64, Height: 64, Stride: 128, Format: fourcc.YUYV})
	if !errors.Is(err, deverr.Negotiation) {
		t.Errorf("ImportCamera(YUYV) error = %v", err)
	}
	_, err = d.ImportDmaBuf(DmaBuf{FD: 3, Width: 64, Height: 64, Stride: 256, Format: fourcc.AR24})
	if !errors.Is(err, deverr.Negotiation) {
		t.Errorf("ImportDmaBuf(AR24) error = %v", err)
	}

	fb, err := d.ImportDmaBuf(DmaBuf{FD: 3, Width: 64, Height: 64, Stride: 256, Format: fourcc.XR24})
	if err != nil {
		t.Fatalf("ImportDmaBuf(XR24) error: %v", err)
	}
	if card.fbs[fb.ID].Pitches[0] != 256 {
		t.Errorf("pitch = %d, want 256", card.fbs[fb.ID].Pitches[0])
	}
	if len(card.handles) != 0 {
		t.Errorf("buffer object not released: %v", card.handles)
	}
}

func TestRemoveFramebuffer(t *testing.T) {
	d, card := initializedDisplay(t)

	fb, err := d.CreateScanoutBuffer(1920, 1080)
	if err != nil {
		t.Fatal(err)
	}
	if fb.Data == nil || fb.Pitch == 0 {
		t.Fatal("scanout buffer is not mapped")
	}
	if err := d.RemoveFramebuffer(fb); err != nil {
		t.Fatalf("RemoveFramebuffer() error: %v", err)
	}
	if _, ok := card.fbs[fb.ID]; ok {
		t.Error("framebuffer still registered")
	}
	if len(card.dumbs) != 1 {
		t.Errorf("dumb buffers = %d, want only the test pattern", len(card.dumbs))
	}
	if err := d.RemoveFramebuffer(fb); err == nil {
		t.Error("removing twice should fail")
	}
}

func TestCloseReleaseOrder(t *testing.T) {
	d, card := initializedDisplay(t)
	if _, err := d.ImportCamera(CameraBuffer{FDs: []int{20}, Width: 1920, Height: 1080, Stride: 1920, Format: fourcc.NV12}); err != nil {
		t.Fatal(err)
	}
	card.ops = nil

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	want := []string{"rmfb", "rmfb", "destroy-blob", "destroy-dumb", "close"}
	if len(card.ops) != len(want) {
		t.Fatalf("ops = %v, want %v", card.ops, want)
	}
	for i := range want {
		if card.ops[i] != want[i] {
			t.Fatalf("ops = %v, want %v", card.ops, want)
		}
	}
	if len(card.fbs) != 0 || len(card.blobs) != 0 || len(card.dumbs) != 0 {
		t.Errorf("leaked: fbs %v blobs %v dumbs %v", card.fbs, card.blobs, card.dumbs)
	}
	if d.State() != StateClosed {
		t.Errorf("state = %s, want %s", d.State(), StateClosed)
	}
	if err := d.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}
