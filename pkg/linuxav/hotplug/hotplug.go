//go:build linux

// Package hotplug reads kernel uevents from a netlink socket, without
// udev or cgo.
package hotplug

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Actions carried by uevents.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionChange = "change"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// Subsystems of interest to a capture-to-display pipeline.
const (
	SubsystemVideo4Linux = "video4linux"
	SubsystemDRM         = "drm"
	SubsystemUSB         = "usb"
)

// Event is one kernel uevent.
type Event struct {
	Action    string
	KObj      string // sysfs path of the kernel object
	Subsystem string
	DevType   string
	DevName   string // node name relative to /dev, e.g. "video11" or "dri/card0"
	Env       map[string]string
}

// Node returns the /dev path of the event's device node, or "".
func (e Event) Node() string {
	if e.DevName == "" {
		return ""
	}
	if strings.HasPrefix(e.DevName, "/") {
		return e.DevName
	}
	return "/dev/" + e.DevName
}

const (
	netlinkKobjectUEvent = 15
	kernelGroup          = 1
	pollInterval         = 250 // ms
)

// Monitor receives uevents from the kernel broadcast group.
type Monitor struct {
	fd int

	mu      sync.RWMutex
	filters map[string]struct{}
}

// NewMonitor opens the netlink socket. With subsystems given only their
// events are delivered.
func NewMonitor(subsystems ...string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		unix.Close(fd)
		return nil, err
	}

	m := &Monitor{fd: fd, filters: make(map[string]struct{})}
	for _, s := range subsystems {
		m.AddSubsystemFilter(s)
	}
	return m, nil
}

// AddSubsystemFilter adds subsystem to the delivered set.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.mu.Lock()
	m.filters[subsystem] = struct{}{}
	m.mu.Unlock()
}

func (m *Monitor) wants(subsystem string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.filters) == 0 {
		return true
	}
	_, ok := m.filters[subsystem]
	return ok
}

// Close closes the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run delivers events to out until ctx is done, then closes out.
func (m *Monitor) Run(ctx context.Context, out chan<- Event) error {
	defer close(out)

	buf := make([]byte, 16<<10)
	fds := []unix.PollFd{{Fd: int32(m.fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := unix.Poll(fds, pollInterval)
		if errors.Is(err, unix.EINTR) || n == 0 {
			continue
		}
		if err != nil {
			return err
		}

		n, _, err = unix.Recvfrom(m.fd, buf, 0)
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ENOBUFS):
			// The kernel dropped events; keep reading.
			continue
		case err != nil:
			return err
		}

		ev := ParseUEvent(buf[:n])
		if ev == nil || !m.wants(ev.Subsystem) {
			continue
		}
		select {
		case out <- *ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ParseUEvent decodes "ACTION@KOBJ\0KEY=VALUE\0...". Messages relayed by
// udevd carry a binary header first, which is skipped. It returns nil
// for anything that is not a uevent.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, []byte("libudev\x00")) {
		data = skipUdevHeader(data)
	}

	fields := bytes.Split(data, []byte{0})
	action, kobj, ok := strings.Cut(string(fields[0]), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, f := range fields[1:] {
		key, value, ok := strings.Cut(string(f), "=")
		if !ok || key == "" {
			continue
		}
		ev.Env[key] = value
		switch key {
		case "SUBSYSTEM":
			ev.Subsystem = value
		case "DEVTYPE":
			ev.DevType = value
		case "DEVNAME":
			ev.DevName = value
		}
	}
	return ev
}

// skipUdevHeader returns the uevent that follows a udevd header: the
// first NUL-terminated field containing '@' near its start.
func skipUdevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		if at := bytes.IndexByte(rest, '@'); at > 0 && at < 16 && bytes.IndexByte(rest[:at], 0) < 0 {
			return rest
		}
	}
	return nil
}
