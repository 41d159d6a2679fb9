// Package silence turns a host's "silence detected" signal into per-session
// subscriptions, and provides the host-side detector that raises it.
package silence

import "sync"

// Source emits a value each time the host detects a silence period.
type Source interface {
	Signals() <-chan struct{}
}

// Monitor fans a Source out to live subscriptions. A signal that arrives
// while nobody is subscribed is dropped.
type Monitor struct {
	mu   sync.Mutex
	subs map[*Subscription]struct{}
	done chan struct{}
	once sync.Once
}

// Subscription receives at most one pending signal on C until Cancel.
type Subscription struct {
	C <-chan struct{}

	c    chan struct{}
	m    *Monitor
	once sync.Once
}

// NewMonitor starts forwarding signals from src. Call Close when done.
func NewMonitor(src Source) *Monitor {
	m := &Monitor{
		subs: make(map[*Subscription]struct{}),
		done: make(chan struct{}),
	}
	go m.run(src.Signals())
	return m
}

func (m *Monitor) run(signals <-chan struct{}) {
	for {
		select {
		case <-m.done:
			return
		case _, ok := <-signals:
			if !ok {
				return
			}
			m.broadcast()
		}
	}
}

func (m *Monitor) broadcast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.subs {
		select {
		case s.c <- struct{}{}:
		default: // one pending signal is enough
		}
	}
}

// Subscribe registers a new subscription.
func (m *Monitor) Subscribe() *Subscription {
	c := make(chan struct{}, 1)
	s := &Subscription{C: c, c: c, m: m}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()
	return s
}

// Active returns the number of live subscriptions.
func (m *Monitor) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close stops forwarding. Existing subscriptions receive nothing further.
func (m *Monitor) Close() {
	m.once.Do(func() {
		close(m.done)
		m.mu.Lock()
		m.subs = make(map[*Subscription]struct{})
		m.mu.Unlock()
	})
}

// Cancel unsubscribes. No signal is delivered after Cancel returns.
// It is safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.m.mu.Lock()
		delete(s.m.subs, s)
		s.m.mu.Unlock()
		// drain a signal that raced the cancel
		select {
		case <-s.c:
		default:
		}
	})
}
