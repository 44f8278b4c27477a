package led

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const sysfsRoot = "/sys/class/leds"

// sysfs drives LEDs through /sys/class/leds/<name>/{trigger,brightness}.
type sysfs struct {
	root string
	leds map[string]string
}

func newSysfs(root string, leds map[string]string) *sysfs {
	return &sysfs{root: root, leds: leds}
}

func (s *sysfs) Set(name, pattern string) error {
	node, ok := s.leds[name]
	if !ok {
		return fmt.Errorf("no LED %q on this board", name)
	}
	dir := filepath.Join(s.root, node)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("LED %q: %w", name, err)
	}

	trigger, brightness := "none", "0"
	switch pattern {
	case PatternSolid:
		brightness = "1"
	case PatternBlink:
		trigger, brightness = "heartbeat", "1"
	case PatternOff:
	default:
		return fmt.Errorf("unknown LED pattern %q", pattern)
	}

	if err := os.WriteFile(filepath.Join(dir, "trigger"), []byte(trigger), 0o644); err != nil {
		return fmt.Errorf("set %s trigger: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("set %s brightness: %w", name, err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	names := make([]string, 0, len(s.leds))
	for n := range s.leds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternOff}
}
