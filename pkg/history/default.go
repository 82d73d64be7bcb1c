package history

import (
	"sync"

	"github.com/aretw0/tapestry/pkg/adapters/memory"
)

var (
	defaultOnce  sync.Once
	defaultStore *memory.Store
)

// Default returns the process-wide history store, creating it on first use.
// It lives for the rest of the process.
//
// Default is meant for embedders that drive a Recorder directly. Sessions
// opened through a session.Manager each get their own store instead.
func Default() *memory.Store {
	defaultOnce.Do(func() {
		defaultStore = memory.NewStore()
	})
	return defaultStore
}
