//go:build linux

package hotplug

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParseUEvent(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  *Event
	}{
		{name: "nil", input: nil},
		{name: "no separator", input: []byte("invalid")},
		{name: "missing action", input: []byte("@/devices/foo")},
		{name: "only nulls", input: []byte{0, 0, 0}},
		{
			name:  "v4l2 add",
			input: []byte("add@/devices/platform/fdee0000.rkisp/video4linux/video11\x00ACTION=add\x00SUBSYSTEM=video4linux\x00DEVNAME=video11\x00MAJOR=81\x00"),
			want: &Event{
				Action:    "add",
				KObj:      "/devices/platform/fdee0000.rkisp/video4linux/video11",
				Subsystem: "video4linux",
				DevName:   "video11",
				Env:       map[string]string{"ACTION": "add", "SUBSYSTEM": "video4linux", "DEVNAME": "video11", "MAJOR": "81"},
			},
		},
		{
			name:  "drm remove",
			input: []byte("remove@/devices/platform/display-subsystem/drm/card0\x00SUBSYSTEM=drm\x00DEVTYPE=drm_minor\x00DEVNAME=dri/card0\x00"),
			want: &Event{
				Action:    "remove",
				KObj:      "/devices/platform/display-subsystem/drm/card0",
				Subsystem: "drm",
				DevType:   "drm_minor",
				DevName:   "dri/card0",
				Env:       map[string]string{"SUBSYSTEM": "drm", "DEVTYPE": "drm_minor", "DEVNAME": "dri/card0"},
			},
		},
		{
			name:  "value containing equals and empty fields",
			input: []byte("change@/devices/x\x00\x00KEY=a=b\x00=skipped\x00"),
			want:  &Event{Action: "change", KObj: "/devices/x", Env: map[string]string{"KEY": "a=b"}},
		},
		{
			name:  "udev header",
			input: append([]byte("libudev\x00\xfe\xed\xca\xfe\x00\x00\x00\x28\x00"), []byte("add@/devices/usb1\x00SUBSYSTEM=usb\x00")...),
			want:  &Event{Action: "add", KObj: "/devices/usb1", Subsystem: "usb", Env: map[string]string{"SUBSYSTEM": "usb"}},
		},
		{
			name:  "long kobj",
			input: []byte("add@/devices/" + strings.Repeat("a", 500) + "\x00"),
			want:  &Event{Action: "add", KObj: "/devices/" + strings.Repeat("a", 500), Env: map[string]string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseUEvent(tt.input)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseUEvent() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEventNode(t *testing.T) {
	tests := []struct {
		devName string
		want    string
	}{
		{"video11", "/dev/video11"},
		{"dri/card0", "/dev/dri/card0"},
		{"/dev/media0", "/dev/media0"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (Event{DevName: tt.devName}).Node(); got != tt.want {
			t.Errorf("Node(%q) = %q, want %q", tt.devName, got, tt.want)
		}
	}
}

func TestRemovalsMatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "video11")
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "by-id-camera")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	real, err := filepath.EvalSymlinks(target)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRemovals(link, "/dev/dri/card0", "")

	tests := []struct {
		name     string
		ev       Event
		wantPath string
		wantOK   bool
	}{
		{"symlinked capture", Event{Action: ActionRemove, DevName: real}, link, true},
		{"display", Event{Action: ActionRemove, DevName: "dri/card0"}, "/dev/dri/card0", true},
		{"add is ignored", Event{Action: ActionAdd, DevName: "dri/card0"}, "", false},
		{"other node", Event{Action: ActionRemove, DevName: "video0"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := r.Match(tt.ev)
			if path != tt.wantPath || ok != tt.wantOK {
				t.Errorf("Match() = %q, %v, want %q, %v", path, ok, tt.wantPath, tt.wantOK)
			}
		})
	}
}

func TestMonitorFilters(t *testing.T) {
	m := &Monitor{filters: make(map[string]struct{})}
	if !m.wants(SubsystemUSB) {
		t.Error("monitor without filters dropped an event")
	}
	m.AddSubsystemFilter(SubsystemDRM)
	if m.wants(SubsystemUSB) || !m.wants(SubsystemDRM) {
		t.Error("filter not applied")
	}
}

func TestMonitorRunCancelled(t *testing.T) {
	m, err := NewMonitor(SubsystemVideo4Linux)
	if err != nil {
		t.Skipf("netlink unavailable: %v", err)
	}
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan Event, 1)
	if err := m.Run(ctx, out); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if _, open := <-out; open {
		t.Error("Run() did not close the channel")
	}
}
