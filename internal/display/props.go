package display

import (
	"errors"
	"fmt"
)

// ErrPropertyNotFound is returned when an object lacks a named property.
var ErrPropertyNotFound = errors.New("property not found")

type propKey struct {
	object uint32
	name   string
}

// propertyCache memoizes property ids per (object, name). A miss loads
// every property of the object at once.
type propertyCache struct {
	card   Card
	ids    map[propKey]uint32
	loaded map[uint32]bool
}

func newPropertyCache(card Card) *propertyCache {
	return &propertyCache{
		card:   card,
		ids:    make(map[propKey]uint32),
		loaded: make(map[uint32]bool),
	}
}

func (c *propertyCache) id(object, objectType uint32, name string) (uint32, error) {
	key := propKey{object: object, name: name}
	if id, ok := c.ids[key]; ok {
		return id, nil
	}
	if c.loaded[object] {
		return 0, fmt.Errorf("%w: %s on object %d", ErrPropertyNotFound, name, object)
	}

	props, err := c.card.ObjectProperties(object, objectType)
	if err != nil {
		return 0, fmt.Errorf("properties of object %d: %w", object, err)
	}
	for _, propID := range props.Props {
		prop, err := c.card.Property(propID)
		if err != nil {
			continue
		}
		c.ids[propKey{object: object, name: prop.Name}] = propID
	}
	c.loaded[object] = true

	if id, ok := c.ids[key]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("%w: %s on object %d", ErrPropertyNotFound, name, object)
}

// propRef names one property to resolve.
type propRef struct {
	object     uint32
	objectType uint32
	name       string
	value      uint64
}

// resolve looks up every id before anything is queued, so a missing
// property leaves nothing half-built.
func (c *propertyCache) resolve(refs []propRef) ([]uint32, error) {
	ids := make([]uint32, len(refs))
	for i, r := range refs {
		id, err := c.id(r.object, r.objectType, r.name)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}
