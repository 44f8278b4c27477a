package led

import (
	"sync"

	"github.com/smazurov/framepipe/internal/events"
	"github.com/smazurov/framepipe/internal/logging"
)

// Manager sets one LED from display state: solid while scanning out,
// blinking otherwise, and off once a device is unplugged.
type Manager struct {
	controller Controller
	bus        *events.Bus
	name       string
	logger     logging.Logger

	mu      sync.Mutex
	pattern string
	unsubs  []func()
}

// NewManager creates a manager for the LED called name.
func NewManager(controller Controller, bus *events.Bus, name string, logger logging.Logger) *Manager {
	return &Manager{controller: controller, bus: bus, name: name, logger: logger}
}

// Start blinks the LED until the display starts scanning.
func (m *Manager) Start() {
	m.set(PatternBlink)
	m.unsubs = append(m.unsubs,
		m.bus.Subscribe(func(e events.DisplayStateEvent) {
			if e.Scanning {
				m.set(PatternSolid)
			} else {
				m.set(PatternBlink)
			}
		}),
		m.bus.Subscribe(func(e events.DeviceRemovedEvent) {
			m.logger.Warn("Device removed, LED off", "device", e.DevicePath)
			m.set(PatternOff)
		}),
	)
	m.logger.Info("LED manager started", "led", m.name)
}

// Stop unsubscribes and turns the LED off.
func (m *Manager) Stop() {
	for _, unsub := range m.unsubs {
		unsub()
	}
	m.unsubs = nil
	m.set(PatternOff)
}

// Pattern returns the last pattern applied.
func (m *Manager) Pattern() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

func (m *Manager) set(pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pattern == m.pattern {
		return
	}
	if err := m.controller.Set(m.name, pattern); err != nil {
		m.logger.Warn("Failed to set LED", "led", m.name, "pattern", pattern, "error", err)
		return
	}
	m.pattern = pattern
}
