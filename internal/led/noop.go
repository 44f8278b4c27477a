package led

import "github.com/smazurov/framepipe/internal/logging"

// noop stands in on boards without known LEDs.
type noop struct {
	logger logging.Logger
}

func (n noop) Set(name, pattern string) error {
	n.logger.Debug("No LED to set", "led", name, "pattern", pattern)
	return nil
}

func (noop) Available() []string { return []string{} }

func (noop) Patterns() []string { return []string{} }
