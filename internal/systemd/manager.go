// Package systemd integrates with the service manager: readiness and
// watchdog notifications, and unit control over D-Bus.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// DefaultUnit is the unit name framepipe is installed as.
const DefaultUnit = "framepipe.service"

// Manager controls one unit over D-Bus.
type Manager struct {
	conn *dbus.Conn
	unit string
}

// NewManager connects to the user bus, or the system bus when system is
// set.
func NewManager(ctx context.Context, unit string, system bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if system {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	} else {
		conn, err = dbus.NewUserConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to systemd: %w", err)
	}
	return &Manager{conn: conn, unit: unit}, nil
}

// Unit returns the controlled unit name.
func (m *Manager) Unit() string {
	return m.unit
}

// Status returns the unit's ActiveState, e.g. "active" or "failed".
func (m *Manager) Status(ctx context.Context) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, m.unit, "ActiveState")
	if err != nil {
		return "", err
	}
	state, ok := prop.Value.Value().(string)
	if !ok {
		return "", fmt.Errorf("ActiveState of %s is %s", m.unit, prop.Value.Signature())
	}
	return state, nil
}

// Restart queues a restart of the unit and waits for the job result.
func (m *Manager) Restart(ctx context.Context) error {
	done := make(chan string, 1)
	if _, err := m.conn.RestartUnitContext(ctx, m.unit, "replace", done); err != nil {
		return err
	}
	select {
	case result := <-done:
		if result != "done" {
			return fmt.Errorf("restart %s: %s", m.unit, result)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
