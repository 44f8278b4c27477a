//go:build linux

package hotplug

import (
	"context"
	"errors"
	"path/filepath"
)

// Removals watches a fixed set of device nodes for removal.
type Removals struct {
	nodes map[string]string // resolved node -> configured path
}

// NewRemovals resolves symlinks such as /dev/v4l/by-id/... so removal
// events, which name the real node, match.
func NewRemovals(paths ...string) *Removals {
	r := &Removals{nodes: make(map[string]string)}
	for _, p := range paths {
		if p == "" {
			continue
		}
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			resolved = filepath.Clean(p)
		}
		r.nodes[resolved] = p
	}
	return r
}

// Match returns the configured path when ev removes a watched node.
func (r *Removals) Match(ev Event) (string, bool) {
	if ev.Action != ActionRemove {
		return "", false
	}
	p, ok := r.nodes[ev.Node()]
	return p, ok
}

// Watch calls onRemove for each removal of a watched capture or display
// node until ctx is done.
func (r *Removals) Watch(ctx context.Context, onRemove func(path string, ev Event)) error {
	m, err := NewMonitor(SubsystemVideo4Linux, SubsystemDRM)
	if err != nil {
		return err
	}
	defer m.Close()

	events := make(chan Event, 16)
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx, events) }()

	for ev := range events {
		if path, ok := r.Match(ev); ok {
			onRemove(path, ev)
		}
	}
	if err := <-errc; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
