package ports

import "time"

// Timer is a pending deferred call.
type Timer interface {
	// Stop prevents the call from running. It returns false if the call has
	// already started or was already stopped.
	Stop() bool
}

// Scheduler arms deferred calls. The wall-clock implementation wraps
// time.AfterFunc; tests substitute a manual one.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}
