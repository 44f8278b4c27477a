// Package logging provides module-scoped slog loggers whose levels can be
// changed while the process runs.
//
// Each record goes to stdout when something is attached to it, to the
// systemd journal when journald is running, and to an in-memory history
// that the HTTP API serves and streams:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"display": "debug"},
//	})
//	logger := logging.GetLogger("display")
//	logger.Info("Mode set", "mode", "1920x1080@60")
//
// Journal entries carry SYSLOG_IDENTIFIER=framepipe and one upper-case
// field per attribute:
//
//	journalctl -t framepipe MODULE=capture -f
package logging
