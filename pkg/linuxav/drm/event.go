//go:build linux

package drm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Event types.
const (
	EventVblank       = 0x01
	EventFlipComplete = 0x02
	EventCrtcSequence = 0x03
)

// eventHeaderSize is sizeof(struct drm_event).
const eventHeaderSize = 8

// ErrShortEvent is returned when the buffer ends inside an event.
var ErrShortEvent = errors.New("truncated drm event")

// Event is a decoded vblank or page-flip event.
type Event struct {
	Type      uint32
	UserData  uint64
	Timestamp time.Duration
	Sequence  uint32
	CrtcID    uint32
}

// ParseEvents decodes the concatenated events of one read. Events of
// unknown type are skipped using their length.
func ParseEvents(buf []byte) ([]Event, error) {
	var events []Event
	ne := binary.NativeEndian

	for len(buf) > 0 {
		if len(buf) < eventHeaderSize {
			return events, ErrShortEvent
		}
		typ := ne.Uint32(buf[0:4])
		length := ne.Uint32(buf[4:8])
		if length < eventHeaderSize || int(length) > len(buf) {
			return events, fmt.Errorf("%w: length %d of %d", ErrShortEvent, length, len(buf))
		}

		if (typ == EventVblank || typ == EventFlipComplete) && length >= uint32(unsafe.Sizeof(sysEventVblank{})) {
			sec := ne.Uint32(buf[16:20])
			usec := ne.Uint32(buf[20:24])
			events = append(events, Event{
				Type:      typ,
				UserData:  ne.Uint64(buf[8:16]),
				Timestamp: time.Duration(sec)*time.Second + time.Duration(usec)*time.Microsecond,
				Sequence:  ne.Uint32(buf[24:28]),
				CrtcID:    ne.Uint32(buf[28:32]),
			})
		}

		buf = buf[length:]
	}
	return events, nil
}

// ReadEvents reads pending events from the card. It returns no events and
// no error when nothing is pending on a non-blocking descriptor.
func (c *Card) ReadEvents() ([]Event, error) {
	buf := make([]byte, 1024)
	for {
		n, err := unix.Read(c.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return ParseEvents(buf[:n])
	}
}
