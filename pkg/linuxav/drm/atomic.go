//go:build linux

package drm

import (
	"runtime"
	"slices"
	"unsafe"
)

// AtomicProperty is one (object, property, value) triple of a commit.
type AtomicProperty struct {
	ObjectID   uint32
	PropertyID uint32
	Value      uint64
}

// AtomicRequest accumulates property assignments for one commit.
type AtomicRequest struct {
	props []AtomicProperty
}

// NewAtomicRequest returns an empty request.
func NewAtomicRequest() *AtomicRequest {
	return &AtomicRequest{}
}

// Add queues a property assignment.
func (r *AtomicRequest) Add(objectID, propertyID uint32, value uint64) {
	r.props = append(r.props, AtomicProperty{ObjectID: objectID, PropertyID: propertyID, Value: value})
}

// Len returns the number of queued assignments.
func (r *AtomicRequest) Len() int {
	return len(r.props)
}

// Properties returns a copy of the queued assignments in insertion order.
func (r *AtomicRequest) Properties() []AtomicProperty {
	return slices.Clone(r.props)
}

// arrays groups the request by object id into the four parallel
// arrays drm_mode_atomic expects.
func (r *AtomicRequest) arrays() (objs, counts, props []uint32, values []uint64) {
	sorted := slices.Clone(r.props)
	slices.SortStableFunc(sorted, func(a, b AtomicProperty) int {
		switch {
		case a.ObjectID < b.ObjectID:
			return -1
		case a.ObjectID > b.ObjectID:
			return 1
		}
		return 0
	})

	for i, p := range sorted {
		if i == 0 || p.ObjectID != sorted[i-1].ObjectID {
			objs = append(objs, p.ObjectID)
			counts = append(counts, 0)
		}
		counts[len(counts)-1]++
		props = append(props, p.PropertyID)
		values = append(values, p.Value)
	}
	return objs, counts, props, values
}

// AtomicCommit submits the request. userData is echoed back in the
// page-flip event when PageFlipEvent is set.
func (c *Card) AtomicCommit(req *AtomicRequest, flags uint32, userData uint64) error {
	if req.Len() == 0 {
		return nil
	}

	objs, counts, props, values := req.arrays()
	atomic := sysAtomic{
		flags:         flags,
		countObjs:     uint32(len(objs)),
		objsPtr:       ptr(objs),
		countPropsPtr: ptr(counts),
		propsPtr:      ptr(props),
		propValuesPtr: ptr(values),
		userData:      userData,
	}

	err := xioctl(c.fd, ioctlModeAtomic, unsafe.Pointer(&atomic))
	runtime.KeepAlive(objs)
	runtime.KeepAlive(counts)
	runtime.KeepAlive(props)
	runtime.KeepAlive(values)
	return err
}
