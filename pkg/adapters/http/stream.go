package http

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/aretw0/tapestry/pkg/domain"
)

// Publisher is the part of an editor the stream manager listens to.
type Publisher interface {
	Subscribe(fn func(domain.Snapshot)) func()
}

// StreamManager fans appended history entries out to SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // SessionID -> Set of Channels

	// attachMu is never held together with mu: editors call Broadcast while
	// holding their own subscriber lock.
	attachMu sync.Mutex
	attached map[string]func() // SessionID -> unsubscribe from the editor

	logger *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		attached:    make(map[string]func()),
		logger:      logger,
	}
}

// Attach starts broadcasting the entries appended by pub under sessionID.
// Attaching an already attached session is a no-op.
func (sm *StreamManager) Attach(sessionID string, pub Publisher) {
	sm.attachMu.Lock()
	defer sm.attachMu.Unlock()
	if _, ok := sm.attached[sessionID]; ok {
		return
	}
	sm.attached[sessionID] = pub.Subscribe(func(s domain.Snapshot) {
		payload, err := json.Marshal(entryFromSnapshot(s))
		if err != nil {
			sm.logger.Error("SSE: Failed to encode entry", "session_id", sessionID, "err", err)
			return
		}
		sm.Broadcast(sessionID, string(payload))
	})
}

// Detach stops broadcasting for sessionID and closes its subscribers.
func (sm *StreamManager) Detach(sessionID string) {
	sm.attachMu.Lock()
	if unsubscribe, ok := sm.attached[sessionID]; ok {
		unsubscribe()
		delete(sm.attached, sessionID)
	}
	sm.attachMu.Unlock()

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for ch := range sm.subscribers[sessionID] {
		close(ch)
	}
	delete(sm.subscribers, sessionID)
}

func (sm *StreamManager) Subscribe(sessionID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			if _, live := subs[ch]; !live {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(sessionID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	subs, ok := sm.subscribers[sessionID]
	if !ok {
		return
	}
	sm.logger.Debug("SSE: Broadcasting", "session_id", sessionID, "subscribers", len(subs), "payload_size", len(msg))
	for ch := range subs {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}
