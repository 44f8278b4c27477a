//go:build linux

package drm

import (
	"bytes"
	"runtime"
	"unsafe"
)

// SetClientCap enables a client capability.
func (c *Card) SetClientCap(capability, value uint64) error {
	req := sysSetClientCap{capability: capability, value: value}
	return xioctl(c.fd, ioctlSetClientCap, unsafe.Pointer(&req))
}

// GetCap queries a driver capability.
func (c *Card) GetCap(capability uint64) (uint64, error) {
	req := sysGetCap{capability: capability}
	if err := xioctl(c.fd, ioctlGetCap, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.value, nil
}

// Resources enumerates framebuffers, CRTCs, connectors and encoders. The
// first call sizes the arrays, the second fills them.
func (c *Card) Resources() (*Resources, error) {
	var res sysResources
	if err := xioctl(c.fd, ioctlModeGetResources, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	out := &Resources{
		Fbs:        make([]uint32, res.countFbs),
		Crtcs:      make([]uint32, res.countCrtcs),
		Connectors: make([]uint32, res.countConnectors),
		Encoders:   make([]uint32, res.countEncoders),
	}
	res.fbIDPtr = ptr(out.Fbs)
	res.crtcIDPtr = ptr(out.Crtcs)
	res.connectorIDPtr = ptr(out.Connectors)
	res.encoderIDPtr = ptr(out.Encoders)

	err := xioctl(c.fd, ioctlModeGetResources, unsafe.Pointer(&res))
	runtime.KeepAlive(out)
	if err != nil {
		return nil, err
	}

	// A hotplug between the two calls can shrink the counts.
	out.Fbs = out.Fbs[:min(len(out.Fbs), int(res.countFbs))]
	out.Crtcs = out.Crtcs[:min(len(out.Crtcs), int(res.countCrtcs))]
	out.Connectors = out.Connectors[:min(len(out.Connectors), int(res.countConnectors))]
	out.Encoders = out.Encoders[:min(len(out.Encoders), int(res.countEncoders))]
	out.MinWidth, out.MaxWidth = res.minWidth, res.maxWidth
	out.MinHeight, out.MaxHeight = res.minHeight, res.maxHeight
	return out, nil
}

// Connector returns a connector with its modes and encoder list.
func (c *Card) Connector(id uint32) (*Connector, error) {
	conn := sysGetConnector{connectorID: id}
	if err := xioctl(c.fd, ioctlModeGetConnector, unsafe.Pointer(&conn)); err != nil {
		return nil, err
	}

	modes := make([]ModeInfo, conn.countModes)
	encoders := make([]uint32, conn.countEncoders)
	props := make([]uint32, conn.countProps)
	propValues := make([]uint64, conn.countProps)
	conn.modesPtr = ptr(modes)
	conn.encodersPtr = ptr(encoders)
	conn.propsPtr = ptr(props)
	conn.propValuesPtr = ptr(propValues)

	err := xioctl(c.fd, ioctlModeGetConnector, unsafe.Pointer(&conn))
	runtime.KeepAlive(modes)
	runtime.KeepAlive(encoders)
	runtime.KeepAlive(props)
	runtime.KeepAlive(propValues)
	if err != nil {
		return nil, err
	}

	return &Connector{
		ID:         conn.connectorID,
		EncoderID:  conn.encoderID,
		Type:       conn.connectorType,
		TypeID:     conn.connectorTypeID,
		Connection: conn.connection,
		MMWidth:    conn.mmWidth,
		MMHeight:   conn.mmHeight,
		Modes:      modes[:min(len(modes), int(conn.countModes))],
		Encoders:   encoders[:min(len(encoders), int(conn.countEncoders))],
	}, nil
}

// Encoder returns an encoder.
func (c *Card) Encoder(id uint32) (*Encoder, error) {
	enc := sysGetEncoder{encoderID: id}
	if err := xioctl(c.fd, ioctlModeGetEncoder, unsafe.Pointer(&enc)); err != nil {
		return nil, err
	}
	return &Encoder{
		ID:             enc.encoderID,
		Type:           enc.encoderType,
		CrtcID:         enc.crtcID,
		PossibleCrtcs:  enc.possibleCrtcs,
		PossibleClones: enc.possibleClones,
	}, nil
}

// Crtc returns a CRTC and its current mode.
func (c *Card) Crtc(id uint32) (*Crtc, error) {
	crtc := sysCrtc{crtcID: id}
	if err := xioctl(c.fd, ioctlModeGetCrtc, unsafe.Pointer(&crtc)); err != nil {
		return nil, err
	}
	return &Crtc{
		ID:        crtc.crtcID,
		FbID:      crtc.fbID,
		X:         crtc.x,
		Y:         crtc.y,
		GammaSize: crtc.gammaSize,
		ModeValid: crtc.modeValid != 0,
		Mode:      crtc.mode,
	}, nil
}

// PlaneResources lists plane ids. Universal planes must be enabled to see
// primary and cursor planes.
func (c *Card) PlaneResources() ([]uint32, error) {
	var res sysGetPlaneResources
	if err := xioctl(c.fd, ioctlModeGetPlaneRes, unsafe.Pointer(&res)); err != nil {
		return nil, err
	}

	ids := make([]uint32, res.countPlanes)
	res.planeIDPtr = ptr(ids)
	err := xioctl(c.fd, ioctlModeGetPlaneRes, unsafe.Pointer(&res))
	runtime.KeepAlive(ids)
	if err != nil {
		return nil, err
	}
	return ids[:min(len(ids), int(res.countPlanes))], nil
}

// Plane returns a plane with its supported formats.
func (c *Card) Plane(id uint32) (*Plane, error) {
	p := sysGetPlane{planeID: id}
	if err := xioctl(c.fd, ioctlModeGetPlane, unsafe.Pointer(&p)); err != nil {
		return nil, err
	}

	formats := make([]uint32, p.countFormatTypes)
	p.formatTypePtr = ptr(formats)
	err := xioctl(c.fd, ioctlModeGetPlane, unsafe.Pointer(&p))
	runtime.KeepAlive(formats)
	if err != nil {
		return nil, err
	}

	return &Plane{
		ID:            p.planeID,
		CrtcID:        p.crtcID,
		FbID:          p.fbID,
		PossibleCrtcs: p.possibleCrtcs,
		GammaSize:     p.gammaSize,
		Formats:       formats[:min(len(formats), int(p.countFormatTypes))],
	}, nil
}

// ObjectProperties returns the property ids and values of an object.
func (c *Card) ObjectProperties(objectID, objectType uint32) (*ObjectProperties, error) {
	req := sysObjGetProperties{objID: objectID, objType: objectType}
	if err := xioctl(c.fd, ioctlModeObjGetProps, unsafe.Pointer(&req)); err != nil {
		return nil, err
	}

	props := make([]uint32, req.countProps)
	values := make([]uint64, req.countProps)
	req.propsPtr = ptr(props)
	req.propValuesPtr = ptr(values)
	err := xioctl(c.fd, ioctlModeObjGetProps, unsafe.Pointer(&req))
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	if err != nil {
		return nil, err
	}

	n := min(len(props), int(req.countProps))
	return &ObjectProperties{
		ObjectID:   objectID,
		ObjectType: objectType,
		Props:      props[:n],
		Values:     values[:n],
	}, nil
}

// Property returns a property's name, flags and enum values.
func (c *Card) Property(id uint32) (*Property, error) {
	req := sysGetProperty{propID: id}
	if err := xioctl(c.fd, ioctlModeGetProperty, unsafe.Pointer(&req)); err != nil {
		return nil, err
	}

	values := make([]uint64, req.countValues)
	enums := make([]sysPropertyEnum, req.countEnumBlobs)
	req.valuesPtr = ptr(values)
	req.enumBlobPtr = ptr(enums)
	err := xioctl(c.fd, ioctlModeGetProperty, unsafe.Pointer(&req))
	runtime.KeepAlive(values)
	runtime.KeepAlive(enums)
	if err != nil {
		return nil, err
	}

	name, _, _ := bytes.Cut(req.name[:], []byte{0})
	out := &Property{
		ID:     req.propID,
		Name:   string(name),
		Flags:  req.flags,
		Values: values[:min(len(values), int(req.countValues))],
	}
	for _, e := range enums[:min(len(enums), int(req.countEnumBlobs))] {
		en, _, _ := bytes.Cut(e.name[:], []byte{0})
		out.Enums = append(out.Enums, PropertyEnum{Value: e.value, Name: string(en)})
	}
	return out, nil
}

// CreatePropertyBlob uploads data as a blob and returns its id.
func (c *Card) CreatePropertyBlob(data []byte) (uint32, error) {
	req := sysCreateBlob{data: ptr(data), length: uint32(len(data))}
	err := xioctl(c.fd, ioctlModeCreatePropBlob, unsafe.Pointer(&req))
	runtime.KeepAlive(data)
	if err != nil {
		return 0, err
	}
	return req.blobID, nil
}

// DestroyPropertyBlob releases a blob.
func (c *Card) DestroyPropertyBlob(id uint32) error {
	blob := id
	return xioctl(c.fd, ioctlModeDestroyPropBlob, unsafe.Pointer(&blob))
}
