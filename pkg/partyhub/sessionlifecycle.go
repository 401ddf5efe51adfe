package partyhub

import (
	"time"
)

// sessionLifecycle holds the deferred-removal timer for one session.
// The timer is armed when the roster goes all-disconnected and stopped
// the moment anyone is back, so transient network blips never kill a
// session but abandoned ones don't leak.
type sessionLifecycle struct {
	timer *time.Timer
	grace time.Duration
}

func newSessionLifecycle(mgr *Manager, code string, grace time.Duration) *sessionLifecycle {
	slc := &sessionLifecycle{grace: grace}
	slc.timer = time.AfterFunc(grace, func() {
		mgr.expireIfAbandoned(code)
	})
	slc.timer.Stop()
	return slc
}

func (slc *sessionLifecycle) startTimer() {
	slc.timer.Reset(slc.grace)
}

func (slc *sessionLifecycle) stopTimer() {
	slc.timer.Stop()
}
