// Package connectivity exposes the network reachability signal the
// sync engine consumes: a current online/offline state plus an
// edge-triggered became-online notification. The state is best-effort
// reachability, not a guarantee of a route to the remote system.
package connectivity

import "sync"

// Monitor holds the current online state and notifies subscribers on
// each offline-to-online transition.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	callbacks []func()
}

// NewMonitor creates a monitor with the given initial state.
func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

// IsOnline reports the current reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnBecameOnline registers a callback invoked once per transition from
// offline to online. Registered callbacks are each invoked
// independently; a callback is never invoked for the current state,
// only for transitions observed after registration.
func (m *Monitor) OnBecameOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// SetOnline pushes a new reachability state. Callbacks fire only on an
// actual offline-to-online edge; repeated online reports are silent.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	var fire []func()
	if online && !wasOnline {
		fire = append(fire, m.callbacks...)
	}
	m.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}
