package maintainer

import "sync"

// keyedMutex grants one exclusive lock per id, so two concurrent writes to
// the same property serialize while writes to different properties never
// block each other. Grounded on statemanager.Manager's per-id map-of-state
// shape, generalized from tracking metadata to holding a lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lockFor(id string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	return m
}

// Lock blocks until id's lock is held and returns an unlock function.
func (k *keyedMutex) Lock(id string) func() {
	m := k.lockFor(id)
	m.Lock()
	return m.Unlock
}
