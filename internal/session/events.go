package session

import "sync"

// EventKind classifies a session event.
type EventKind int

const (
	EventStatus EventKind = iota + 1
	EventInterim
	EventFinal
	// EventAdvisory carries the one-time permission notice.
	EventAdvisory
	EventCompleted
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventAdvisory:
		return "advisory"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the event ends a session's stream.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventFailed
}

// Event is one update on a session's event stream.
type Event struct {
	Kind      EventKind
	SessionID string
	Status    Status
	Text      string
	Failure   *Failure
}

const defaultEventBuffer = 32

// hub fans events out to subscribers. Every subscriber gets exactly one
// terminal event, after which its channel is closed.
type hub struct {
	mu   sync.Mutex
	size int
	subs map[chan Event]struct{}
}

func newHub(size int) *hub {
	if size < 2 {
		size = defaultEventBuffer
	}
	return &hub{size: size, subs: make(map[chan Event]struct{})}
}

func (h *hub) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, h.size)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// publish never blocks. Non-terminal events are dropped for a subscriber
// whose buffer is down to its last slot, which stays reserved for the
// terminal event.
func (h *hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		if ev.Kind.Terminal() {
			ch <- ev
			close(ch)
			delete(h.subs, ch)
			continue
		}
		if len(ch) < cap(ch)-1 {
			ch <- ev
		}
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
