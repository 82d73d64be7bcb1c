package history

import (
	"time"

	"github.com/aretw0/tapestry/pkg/ports"
)

// WallClock is the ports.Scheduler backed by time.AfterFunc.
type WallClock struct{}

// AfterFunc calls f in its own goroutine after d.
func (WallClock) AfterFunc(d time.Duration, f func()) ports.Timer {
	return time.AfterFunc(d, f)
}
