package midi

import (
	"context"
	"slices"
	"sync"
	"time"

	"go-symusic/debug"
)

// PortEvent is emitted when an output port appears or disappears.
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

func (t PortEventType) String() string {
	if t == PortConnected {
		return "connected"
	}
	return "disconnected"
}

// PortWatcher polls output ports for hot-plug changes.
type PortWatcher struct {
	ports    map[string]bool
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration
	list     func() ([]string, error)
}

// NewPortWatcher creates a watcher over the registered driver's outputs.
func NewPortWatcher(pollRate time.Duration) *PortWatcher {
	return &PortWatcher{
		ports:    make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: pollRate,
		list:     outPortNames,
	}
}

func outPortNames() ([]string, error) {
	outs, err := OutPorts()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(outs))
	for i, p := range outs {
		names[i] = p.String()
	}
	return names, nil
}

// Events returns the connect/disconnect channel. It is closed when Run
// returns.
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Ports returns the currently known port names, sorted.
func (w *PortWatcher) Ports() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.ports))
	for name := range w.ports {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run starts the polling loop (blocking - run in goroutine)
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	// Initial scan
	if !w.scan(ctx) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !w.scan(ctx) {
				return
			}
		}
	}
}

// scan diffs the port list against the last one. A timed-out scan is
// skipped. It reports false once ctx is done.
func (w *PortWatcher) scan(ctx context.Context) bool {
	names, err := w.list()
	if err != nil {
		debug.Log("midi", "port scan: %v", err)
		return ctx.Err() == nil
	}

	seen := make(map[string]bool, len(names))
	var events []PortEvent
	w.mu.Lock()
	for _, name := range names {
		seen[name] = true
		if !w.ports[name] {
			w.ports[name] = true
			events = append(events, PortEvent{Type: PortConnected, Name: name})
		}
	}
	var gone []string
	for name := range w.ports {
		if !seen[name] {
			gone = append(gone, name)
		}
	}
	slices.Sort(gone)
	for _, name := range gone {
		delete(w.ports, name)
		events = append(events, PortEvent{Type: PortDisconnected, Name: name})
	}
	w.mu.Unlock()

	for _, ev := range events {
		debug.Log("midi", "port %s: %s", ev.Type, ev.Name)
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}
