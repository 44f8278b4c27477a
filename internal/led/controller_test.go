package led

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeLEDs(t *testing.T, nodes ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, n := range nodes {
		dir := filepath.Join(root, n)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for _, f := range []string{"trigger", "brightness"} {
			if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	return root
}

func readNode(t *testing.T, root, node, file string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, node, file))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestNoopController(t *testing.T) {
	ctrl := noop{logger: discardLogger()}

	if err := ctrl.Set("system", PatternSolid); err != nil {
		t.Errorf("Set() error = %v", err)
	}
	if got := ctrl.Available(); got == nil || len(got) != 0 {
		t.Errorf("Available() = %v, want empty", got)
	}
	if got := ctrl.Patterns(); got == nil || len(got) != 0 {
		t.Errorf("Patterns() = %v, want empty", got)
	}
}

func TestSysfsSet(t *testing.T) {
	tests := []struct {
		pattern        string
		wantTrigger    string
		wantBrightness string
	}{
		{PatternSolid, "none", "1"},
		{PatternBlink, "heartbeat", "1"},
		{PatternOff, "none", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			root := fakeLEDs(t, "sys_led")
			ctrl := newSysfs(root, map[string]string{"system": "sys_led"})

			if err := ctrl.Set("system", tt.pattern); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			if got := readNode(t, root, "sys_led", "trigger"); got != tt.wantTrigger {
				t.Errorf("trigger = %q, want %q", got, tt.wantTrigger)
			}
			if got := readNode(t, root, "sys_led", "brightness"); got != tt.wantBrightness {
				t.Errorf("brightness = %q, want %q", got, tt.wantBrightness)
			}
		})
	}
}

func TestSysfsSetErrors(t *testing.T) {
	root := fakeLEDs(t, "sys_led")
	ctrl := newSysfs(root, map[string]string{"system": "sys_led", "user": "usr_led"})

	if err := ctrl.Set("power", PatternSolid); err == nil {
		t.Error("Set(unknown led) error = nil")
	}
	if err := ctrl.Set("user", PatternSolid); err == nil {
		t.Error("Set(missing node) error = nil")
	}
	if err := ctrl.Set("system", "disco"); err == nil {
		t.Error("Set(unknown pattern) error = nil")
	}
}

func TestSysfsAvailable(t *testing.T) {
	ctrl := newSysfs("/nonexistent", map[string]string{"user": "usr_led", "system": "sys_led"})
	if got, want := ctrl.Available(), []string{"system", "user"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}
	if got := ctrl.Patterns(); len(got) != 3 {
		t.Errorf("Patterns() = %v", got)
	}
}
