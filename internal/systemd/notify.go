package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// notifyFunc matches daemon.SdNotify.
type notifyFunc func(unsetEnvironment bool, state string) (bool, error)

// Notifier sends sd_notify messages. Outside a Type=notify unit every
// call is a no-op.
type Notifier struct {
	notify   notifyFunc
	interval func() (time.Duration, error)
	logger   *slog.Logger
}

// NewNotifier returns a notifier bound to $NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{
		notify:   daemon.SdNotify,
		interval: func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) },
		logger:   logger,
	}
}

// Ready reports that the first frame is on screen.
func (n *Notifier) Ready() {
	n.send(daemon.SdNotifyReady)
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status sets the one-line status shown by systemctl status.
func (n *Notifier) Status(format string, args ...any) {
	n.send("STATUS=" + fmt.Sprintf(format, args...))
}

// Watchdog pings the watchdog at half its timeout while healthy returns
// true, until ctx is done. It returns at once if no watchdog is set.
func (n *Notifier) Watchdog(ctx context.Context, healthy func() bool) {
	timeout, err := n.interval()
	if err != nil || timeout <= 0 {
		return
	}
	n.logger.Info("Watchdog enabled", "timeout", timeout)

	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if healthy() {
				n.send(daemon.SdNotifyWatchdog)
			} else {
				n.logger.Warn("Pipeline unhealthy, withholding watchdog ping")
			}
		}
	}
}

func (n *Notifier) send(state string) {
	if _, err := n.notify(false, state); err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
	}
}
