package partyhub

import (
	"log"
	"time"
)

// StartGC launches the periodic sweep and returns a function that stops
// it. The sweep runs alongside the per-session abandonment timers and,
// like them, tolerates sessions vanishing underneath it.
func (mgr *Manager) StartGC() (stop func()) {
	ticker := time.NewTicker(mgr.gcInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				mgr.sweep(time.Now())
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// sweep removes sessions with no progress for the stale window, and
// finished sessions past the short grace that lets clients fetch final
// results. Never fails; a bad entry is skipped and retried next tick.
func (mgr *Manager) sweep(now time.Time) {
	var expired []string
	mgr.sessions.Range(func(key, value any) bool {
		ls := value.(*liveSession)
		ls.mtx.Lock()
		age := now.Sub(ls.sess.lastProgress())
		stale := age > mgr.staleTimeout ||
			(ls.sess.Status == StatusFinished && age > mgr.finishedGrace)
		ls.mtx.Unlock()
		if stale {
			expired = append(expired, key.(string))
		}
		return true
	})
	for _, code := range expired {
		log.Printf("[session expired: %s]", code)
		mgr.Remove(code)
	}
}
