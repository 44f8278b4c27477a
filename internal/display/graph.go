package display

import (
	"fmt"
	"slices"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
	"github.com/smazurov/framepipe/pkg/linuxav/fourcc"
)

// PlaneInfo is a plane together with its resolved "type" property.
type PlaneInfo struct {
	drm.Plane
	Type uint64
}

// Graph is the enumerated mode object graph of a card. Crtcs keep the
// resource order because possible_crtcs masks index into it.
type Graph struct {
	Connectors []drm.Connector
	Encoders   []drm.Encoder
	Crtcs      []drm.Crtc
	Planes     []PlaneInfo
}

// Chain is the selected connector → encoder → CRTC → plane path.
type Chain struct {
	Connector drm.Connector
	Mode      drm.ModeInfo
	Encoder   drm.Encoder
	Crtc      drm.Crtc
	CrtcIndex int
	Plane     PlaneInfo
}

func (c Chain) String() string {
	return fmt.Sprintf("connector %d mode %s encoder %d crtc %d (index %d) plane %d",
		c.Connector.ID, c.Mode.Name(), c.Encoder.ID, c.Crtc.ID, c.CrtcIndex, c.Plane.ID)
}

// Enumerate reads the object graph of a card. Objects that cannot be read
// are skipped; a card with no connectors or CRTCs is an error.
func Enumerate(card Card) (*Graph, error) {
	res, err := card.Resources()
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_GETRESOURCES", err, "enumerate resources")
	}

	g := &Graph{}
	for _, id := range res.Connectors {
		if conn, err := card.Connector(id); err == nil {
			g.Connectors = append(g.Connectors, *conn)
		}
	}
	for _, id := range res.Encoders {
		if enc, err := card.Encoder(id); err == nil {
			g.Encoders = append(g.Encoders, *enc)
		}
	}
	for _, id := range res.Crtcs {
		crtc, err := card.Crtc(id)
		if err != nil {
			// Keep the slot so indexes still match possible_crtcs.
			crtc = &drm.Crtc{ID: id}
		}
		g.Crtcs = append(g.Crtcs, *crtc)
	}

	planeIDs, err := card.PlaneResources()
	if err != nil {
		return nil, deverr.Devicef("DRM_IOCTL_MODE_GETPLANERESOURCES", err, "enumerate planes")
	}
	for _, id := range planeIDs {
		plane, err := card.Plane(id)
		if err != nil {
			continue
		}
		typ, err := planeType(card, id)
		if err != nil {
			continue
		}
		g.Planes = append(g.Planes, PlaneInfo{Plane: *plane, Type: typ})
	}

	if len(g.Connectors) == 0 || len(g.Crtcs) == 0 {
		return nil, deverr.Devicef("enumerate", nil, "card has %d connectors and %d CRTCs",
			len(g.Connectors), len(g.Crtcs))
	}
	return g, nil
}

func planeType(card Card, planeID uint32) (uint64, error) {
	props, err := card.ObjectProperties(planeID, drm.ObjectPlane)
	if err != nil {
		return 0, err
	}
	for i, propID := range props.Props {
		prop, err := card.Property(propID)
		if err != nil {
			continue
		}
		if prop.Name == "type" {
			return props.Values[i], nil
		}
	}
	return 0, fmt.Errorf("plane %d has no type property", planeID)
}

// SelectChain picks the first usable path through the graph. Every step
// takes the first match in enumeration order, so the same graph always
// yields the same chain.
func SelectChain(g *Graph, format fourcc.Code) (Chain, error) {
	var chain Chain

	conn, ok := selectConnector(g)
	if !ok {
		return chain, deverr.Devicef("select connector", nil, "no connected connector with modes")
	}
	chain.Connector = conn
	chain.Mode = selectMode(conn)

	enc, ok := selectEncoder(g, conn)
	if !ok {
		return chain, deverr.Devicef("select encoder", nil, "no encoder for connector %d", conn.ID)
	}
	chain.Encoder = enc

	idx, ok := selectCrtc(g, enc)
	if !ok {
		return chain, deverr.Devicef("select crtc", nil, "no CRTC for encoder %d", enc.ID)
	}
	chain.Crtc = g.Crtcs[idx]
	chain.CrtcIndex = idx

	plane, ok := selectPlane(g, idx, format)
	if !ok {
		return chain, deverr.Devicef("select plane", nil, "no primary plane with format %s on CRTC %d",
			format, chain.Crtc.ID)
	}
	chain.Plane = plane
	return chain, nil
}

func selectConnector(g *Graph) (drm.Connector, bool) {
	for _, c := range g.Connectors {
		if c.IsConnected() && len(c.Modes) > 0 {
			return c, true
		}
	}
	return drm.Connector{}, false
}

func selectMode(c drm.Connector) drm.ModeInfo {
	for _, m := range c.Modes {
		if m.Preferred() {
			return m
		}
	}
	return c.Modes[0]
}

func (g *Graph) encoder(id uint32) (drm.Encoder, bool) {
	if id == 0 {
		return drm.Encoder{}, false
	}
	for _, e := range g.Encoders {
		if e.ID == id {
			return e, true
		}
	}
	return drm.Encoder{}, false
}

func (g *Graph) crtcIndex(id uint32) (int, bool) {
	if id == 0 {
		return 0, false
	}
	for i, c := range g.Crtcs {
		if c.ID == id {
			return i, true
		}
	}
	return 0, false
}

func selectEncoder(g *Graph, c drm.Connector) (drm.Encoder, bool) {
	if e, ok := g.encoder(c.EncoderID); ok {
		return e, true
	}
	for _, id := range c.Encoders {
		if e, ok := g.encoder(id); ok {
			return e, true
		}
	}
	return drm.Encoder{}, false
}

func selectCrtc(g *Graph, e drm.Encoder) (int, bool) {
	if i, ok := g.crtcIndex(e.CrtcID); ok {
		return i, true
	}
	for i := range g.Crtcs {
		if i < 32 && e.PossibleCrtcs&(1<<i) != 0 {
			return i, true
		}
	}
	return 0, false
}

func selectPlane(g *Graph, crtcIndex int, format fourcc.Code) (PlaneInfo, bool) {
	bit := uint32(1) << crtcIndex
	for _, p := range g.Planes {
		if p.PossibleCrtcs&bit == 0 || p.Type != drm.PlaneTypePrimary {
			continue
		}
		if slices.Contains(p.Formats, uint32(format)) {
			return p, true
		}
	}
	return PlaneInfo{}, false
}
