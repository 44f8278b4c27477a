package display

import (
	"errors"
	"testing"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

func enumerateFake(t *testing.T, card *fakeCard) *Graph {
	t.Helper()
	g, err := Enumerate(card)
	if err != nil {
		t.Fatalf("Enumerate() error: %v", err)
	}
	return g
}

func TestSelectChainIsDeterministic(t *testing.T) {
	g := enumerateFake(t, newFakeCard("/dev/dri/card0"))

	first, err := SelectChain(g, fourcc.NV12)
	if err != nil {
		t.Fatalf("SelectChain() error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := SelectChain(g, fourcc.NV12)
		if err != nil {
			t.Fatal(err)
		}
		if again.String() != first.String() {
			t.Fatalf("run %d selected %s, first run %s", i, again, first)
		}
	}

	if first.Connector.ID != 31 || first.Encoder.ID != 40 || first.Crtc.ID != 51 || first.Plane.ID != 62 {
		t.Errorf("chain = %s", first)
	}
	if first.CrtcIndex != 1 {
		t.Errorf("CrtcIndex = %d, want 1", first.CrtcIndex)
	}
	if first.Mode.Name() != "1920x1080" {
		t.Errorf("mode = %s, want the preferred 1920x1080", first.Mode.Name())
	}
}

func TestSelectChainFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*fakeCard)
		format    fourcc.Code
		wantCrtc  uint32
		wantPlane uint32
		wantMode  string
		wantErr   bool
	}{
		{
			name:      "first mode without preferred flag",
			mutate:    func(c *fakeCard) { c.connectors[31].Modes[1].Type = 0 },
			format:    fourcc.NV12,
			wantCrtc:  51,
			wantPlane: 62,
			wantMode:  "1280x720",
		},
		{
			name: "unbound encoder falls back to its list",
			mutate: func(c *fakeCard) {
				c.connectors[31].EncoderID = 0
			},
			format:    fourcc.NV12,
			wantCrtc:  51,
			wantPlane: 62,
			wantMode:  "1920x1080",
		},
		{
			name:      "unbound CRTC uses first in mask",
			mutate:    func(c *fakeCard) { c.encoders[40].CrtcID = 0 },
			format:    fourcc.XR24,
			wantCrtc:  50,
			wantPlane: 60,
			wantMode:  "1920x1080",
		},
		{
			name: "plane without the format is skipped",
			mutate: func(c *fakeCard) {
				c.planes[62].Formats = []uint32{uint32(fourcc.XR24)}
			},
			format:  fourcc.NV12,
			wantErr: true,
		},
		{
			name:    "no connected connector",
			mutate:  func(c *fakeCard) { c.connectors[31].Connection = drm.Disconnected },
			format:  fourcc.NV12,
			wantErr: true,
		},
		{
			name:    "connected without modes",
			mutate:  func(c *fakeCard) { c.connectors[31].Modes = nil },
			format:  fourcc.NV12,
			wantErr: true,
		},
		{
			name: "no resolvable encoder",
			mutate: func(c *fakeCard) {
				c.connectors[31].EncoderID = 99
				c.connectors[31].Encoders = []uint32{99}
			},
			format:  fourcc.NV12,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := newFakeCard("/dev/dri/card0")
			tt.mutate(card)
			g := enumerateFake(t, card)

			chain, err := SelectChain(g, tt.format)
			if tt.wantErr {
				if !errors.Is(err, deverr.Device) {
					t.Errorf("SelectChain() error = %v, want device error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectChain() error: %v", err)
			}
			if chain.Crtc.ID != tt.wantCrtc || chain.Plane.ID != tt.wantPlane || chain.Mode.Name() != tt.wantMode {
				t.Errorf("chain = %s, want crtc %d plane %d mode %s", chain, tt.wantCrtc, tt.wantPlane, tt.wantMode)
			}
		})
	}
}

func TestEnumerateKeepsCrtcIndexes(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	delete(card.crtcs, 50)

	g := enumerateFake(t, card)
	if len(g.Crtcs) != 2 || g.Crtcs[1].ID != 51 {
		t.Errorf("crtcs = %+v, want two entries with 51 at index 1", g.Crtcs)
	}
	for _, p := range g.Planes {
		want := card.planeTypes[p.ID]
		if p.Type != want {
			t.Errorf("plane %d type = %d, want %d", p.ID, p.Type, want)
		}
	}
}

func TestPropertyCache(t *testing.T) {
	card := newFakeCard("/dev/dri/card0")
	cache := newPropertyCache(card)

	id, err := cache.id(51, drm.ObjectCRTC, "ACTIVE")
	if err != nil {
		t.Fatalf("id() error: %v", err)
	}
	if card.propNames[id] != "ACTIVE" {
		t.Errorf("id %d is %q", id, card.propNames[id])
	}

	// Later lookups must not touch the card.
	delete(card.objProps, 51)
	if again, err := cache.id(51, drm.ObjectCRTC, "MODE_ID"); err != nil || card.propNames[again] != "MODE_ID" {
		t.Errorf("cached id() = %d, %v", again, err)
	}
	if _, err := cache.id(51, drm.ObjectCRTC, "GAMMA_LUT"); !errors.Is(err, ErrPropertyNotFound) {
		t.Errorf("missing property error = %v", err)
	}
}
