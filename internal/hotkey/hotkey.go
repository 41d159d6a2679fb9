// Package hotkey provides a global hotkey listener using gohook and a
// driver that turns its presses into capture sessions.
package hotkey

import (
	"sync"

	hook "github.com/robotn/gohook"
)

// EventType is a raw key combo transition.
type EventType int

const (
	// EventPress fires when the full combo goes down.
	EventPress EventType = iota
	// EventRelease fires when the combo is released.
	EventRelease
)

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener watches a global key combo and emits press/release events.
// What a press means (hold or toggle) is up to the Driver.
type Listener struct {
	keys []string
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// NewListener creates a Listener for the given key combo.
// keys should be lowercase key names (e.g., ["ctrl", "shift", "space"]).
func NewListener(keys []string) *Listener {
	return &Listener{
		keys: keys,
		ch:   make(chan Event, 16),
		done: make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when Stop is called.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Start begins listening for the global hotkey.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	hook.Register(hook.KeyDown, l.keys, func(hook.Event) { l.emit(EventPress) })
	hook.Register(hook.KeyUp, l.keys, func(hook.Event) { l.emit(EventRelease) })

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

func (l *Listener) emit(t EventType) {
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block the hook thread
	}
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
