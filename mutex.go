package beacon

import "sync"

// tickLock serialises dispatch ticks so a manual Flush never overlaps the loop.
type tickLock struct {
	mu sync.Mutex
}

// run waits for the lock and runs tick.
func (l *tickLock) run(tick func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tick()
}

// tryRun runs tick only when no other tick is in progress.
func (l *tickLock) tryRun(tick func()) bool {
	if !l.mu.TryLock() {
		return false
	}
	defer l.mu.Unlock()
	tick()
	return true
}
