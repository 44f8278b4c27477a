package logging

import (
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

const defaultHistory = 1000

// Logger is satisfied by *slog.Logger. Packages that only emit logs take
// this instead of the concrete type.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config is the logging section of the configuration file.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

var (
	mutex       sync.RWMutex
	current     Config
	initialized bool
	loggers     = make(map[string]*slog.Logger)
	levels      = make(map[string]*slog.LevelVar)
	rootLevel   = &slog.LevelVar{}
	history     *History
	onEntry     func(Entry)
)

// Initialize configures output format and levels. Loggers obtained
// earlier are rebuilt so they pick up the history and journal outputs.
func Initialize(cfg Config) {
	mutex.Lock()
	defer mutex.Unlock()

	current = cfg
	initialized = true
	history = NewHistory(defaultHistory)
	rootLevel.Set(levelOr(cfg.Level, slog.LevelInfo))

	for module, lv := range levels {
		lv.Set(moduleLevel(module))
		loggers[module] = slog.New(newHandler(cfg.Format, lv)).With("module", module)
	}
	slog.SetDefault(slog.New(newHandler(cfg.Format, rootLevel)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	l, ok := loggers[module]
	mutex.RUnlock()
	if ok {
		return l
	}

	mutex.Lock()
	defer mutex.Unlock()
	if l, ok := loggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	format := "text"
	if initialized {
		lv.Set(moduleLevel(module))
		format = current.Format
	}
	l = slog.New(newHandler(format, lv)).With("module", module)
	loggers[module] = l
	levels[module] = lv
	return l
}

// SetLevel changes the level of one module at runtime. An empty module
// changes the default level and every module without an override.
func SetLevel(module, level string) bool {
	parsed, ok := ParseLevel(level)
	if !ok {
		return false
	}

	mutex.Lock()
	defer mutex.Unlock()

	if module == "" {
		current.Level = level
		rootLevel.Set(parsed)
		for m, lv := range levels {
			if _, override := current.Modules[m]; !override {
				lv.Set(parsed)
			}
		}
		return true
	}

	if current.Modules == nil {
		current.Modules = make(map[string]string)
	}
	current.Modules[module] = level
	if lv, ok := levels[module]; ok {
		lv.Set(parsed)
	}
	return true
}

// Levels reports the effective level of every known module.
func Levels() map[string]string {
	mutex.RLock()
	defer mutex.RUnlock()

	out := make(map[string]string, len(levels))
	names := make([]string, 0, len(levels))
	for m := range levels {
		names = append(names, m)
	}
	sort.Strings(names)
	for _, m := range names {
		out[m] = levelName(levels[m].Level())
	}
	return out
}

// GetHistory returns the in-memory log history, or nil before Initialize.
func GetHistory() *History {
	mutex.RLock()
	defer mutex.RUnlock()
	return history
}

// SetEntryCallback registers fn to receive every entry written to the
// history. Run uses it to republish logs on the event bus.
func SetEntryCallback(fn func(Entry)) {
	mutex.Lock()
	defer mutex.Unlock()
	onEntry = fn
}

func sinks() (*History, func(Entry)) {
	mutex.RLock()
	defer mutex.RUnlock()
	return history, onEntry
}

// moduleLevel must be called with mutex held.
func moduleLevel(module string) slog.Level {
	level := levelOr(current.Level, slog.LevelInfo)
	if s, ok := current.Modules[module]; ok {
		level = levelOr(s, level)
	}
	return level
}

// newHandler writes to stdout when something is attached to it, to the
// journal when journald is running, and always to the history.
func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if stdoutAttached() {
		if format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(os.Stdout, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stdout, opts))
		}
	}
	if JournalAvailable() {
		handlers = append(handlers, newJournalHandler(level))
	}
	handlers = append(handlers, newHistoryHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanout(handlers)
}

func stdoutAttached() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

// ParseLevel parses debug, info, warn (or warning) and error.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l, ok := ParseLevel(s); ok {
		return l
	}
	return fallback
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}
