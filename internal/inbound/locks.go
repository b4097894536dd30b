package inbound

import "sync"

// venueLocks serializes transition application per venue key so two
// messages for the same venue never race, while messages for distinct
// venues proceed concurrently.
type venueLocks struct {
	mu    sync.Mutex
	perID map[string]*sync.Mutex
}

func newVenueLocks() *venueLocks {
	return &venueLocks{perID: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, creating it on first use, and returns
// the release function.
func (v *venueLocks) Lock(key string) func() {
	v.mu.Lock()
	m, ok := v.perID[key]
	if !ok {
		m = &sync.Mutex{}
		v.perID[key] = m
	}
	v.mu.Unlock()

	m.Lock()
	return m.Unlock
}
