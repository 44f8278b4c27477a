package display

import (
	"time"

	"github.com/smazurov/framepipe/internal/deverr"
	"github.com/smazurov/framepipe/pkg/linuxav/drm"
)

// Flip reports one completed page flip.
type Flip struct {
	Framebuffer *Framebuffer
	Sequence    uint32
	Timestamp   time.Duration
	Count       uint64
	RefreshHz   float64
}

// Completions delivers completed flips. It has a single consumer, the
// goroutine that calls HandleEvent.
func (d *Device) Completions() <-chan Flip {
	return d.completions
}

// AtomicModeSet lights up the selected chain with fb on the primary plane.
// Every property id is resolved before the request is built; if one is
// missing the mode blob is destroyed and the state is unchanged.
func (d *Device) AtomicModeSet(fb *Framebuffer) error {
	if err := d.expect("atomic modeset", StateResourcesDiscovered); err != nil {
		return err
	}

	mode := d.chain.Mode
	blob, err := d.card.CreatePropertyBlob(mode.Bytes())
	if err != nil {
		return deverr.Devicef("DRM_IOCTL_MODE_CREATEPROPBLOB", err, "create mode blob for %s", mode.Name())
	}

	conn, crtc, plane := d.chain.Connector.ID, d.chain.Crtc.ID, d.chain.Plane.ID
	w, h := uint64(mode.Hdisplay), uint64(mode.Vdisplay)
	refs := []propRef{
		{conn, drm.ObjectConnector, "CRTC_ID", uint64(crtc)},
		{crtc, drm.ObjectCRTC, "MODE_ID", uint64(blob)},
		{crtc, drm.ObjectCRTC, "ACTIVE", 1},
		{plane, drm.ObjectPlane, "FB_ID", uint64(fb.ID)},
		{plane, drm.ObjectPlane, "CRTC_ID", uint64(crtc)},
		{plane, drm.ObjectPlane, "SRC_X", 0},
		{plane, drm.ObjectPlane, "SRC_Y", 0},
		{plane, drm.ObjectPlane, "SRC_W", w << 16},
		{plane, drm.ObjectPlane, "SRC_H", h << 16},
		{plane, drm.ObjectPlane, "CRTC_X", 0},
		{plane, drm.ObjectPlane, "CRTC_Y", 0},
		{plane, drm.ObjectPlane, "CRTC_W", w},
		{plane, drm.ObjectPlane, "CRTC_H", h},
	}

	ids, err := d.props.resolve(refs)
	if err != nil {
		d.destroyBlob(blob)
		return deverr.Devicef("atomic modeset", err, "resolve properties")
	}

	req := drm.NewAtomicRequest()
	for i, r := range refs {
		req.Add(r.object, ids[i], r.value)
	}
	if err := d.card.AtomicCommit(req, drm.AtomicAllowModeset, 0); err != nil {
		d.destroyBlob(blob)
		return deverr.Devicef("DRM_IOCTL_MODE_ATOMIC", err, "modeset %s on CRTC %d", mode.Name(), crtc)
	}

	d.blobs = append(d.blobs, blob)
	d.mu.Lock()
	d.scanout = fb
	d.mu.Unlock()
	d.logger.Info("Mode set", "mode", mode.Name(), "refresh", mode.Vrefresh, "fb", fb.ID)
	d.setState(StateModeSet)
	return nil
}

func (d *Device) destroyBlob(id uint32) {
	if err := d.card.DestroyPropertyBlob(id); err != nil {
		d.logger.Warn("Failed to destroy mode blob", "blob", id, "error", err)
	}
}

// AtomicUpdate queues fb for the next vblank and returns without waiting.
// Only one flip may be in flight; a second call before its completion has
// been handled returns ErrFlipPending.
func (d *Device) AtomicUpdate(fb *Framebuffer) error {
	if err := d.expect("atomic update", StateModeSet, StateUpdating, StateFlipPending); err != nil {
		return err
	}

	d.mu.Lock()
	if d.pending {
		d.rejected++
		d.mu.Unlock()
		return ErrFlipPending
	}
	d.mu.Unlock()

	plane := d.chain.Plane.ID
	id, err := d.props.id(plane, drm.ObjectPlane, "FB_ID")
	if err != nil {
		return deverr.Devicef("atomic update", err, "resolve FB_ID")
	}

	req := drm.NewAtomicRequest()
	req.Add(plane, id, uint64(fb.ID))
	d.seq++
	if err := d.card.AtomicCommit(req, drm.AtomicNonBlock|drm.PageFlipEvent, d.seq); err != nil {
		return deverr.Devicef("DRM_IOCTL_MODE_ATOMIC", err, "flip to fb %d", fb.ID)
	}

	d.mu.Lock()
	d.pending = true
	d.pendingFB = fb
	d.mu.Unlock()
	d.setState(StateFlipPending)
	return nil
}

// Pending reports whether a flip is in flight.
func (d *Device) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// HandleEvent reads the events waiting on the card. Call it when the card
// descriptor is readable. It returns the number of flips completed.
func (d *Device) HandleEvent() (int, error) {
	if err := d.requireCard("handle event"); err != nil {
		return 0, err
	}

	events, err := d.card.ReadEvents()
	if err != nil {
		return 0, deverr.Devicef("read", err, "read drm events")
	}

	n := 0
	for _, ev := range events {
		if ev.Type != drm.EventFlipComplete {
			continue
		}
		if d.completeFlip(ev) {
			n++
		}
	}
	return n, nil
}

func (d *Device) completeFlip(ev drm.Event) bool {
	d.mu.Lock()
	if !d.pending {
		d.mu.Unlock()
		d.logger.Debug("Flip event without pending flip", "sequence", ev.Sequence)
		return false
	}
	d.pending = false
	d.flips++
	if d.lastFlip > 0 && ev.Timestamp > d.lastFlip {
		d.refreshHz = float64(time.Second) / float64(ev.Timestamp-d.lastFlip)
	}
	d.lastFlip = ev.Timestamp
	d.scanout = d.pendingFB
	d.pendingFB = nil
	flip := Flip{
		Framebuffer: d.scanout,
		Sequence:    ev.Sequence,
		Timestamp:   ev.Timestamp,
		Count:       d.flips,
		RefreshHz:   d.refreshHz,
	}
	d.mu.Unlock()

	d.setState(StateUpdating)
	select {
	case d.completions <- flip:
	default:
		d.logger.Warn("Flip completion not consumed", "sequence", ev.Sequence)
	}
	return true
}
