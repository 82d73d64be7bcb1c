package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/adapters/memory"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/editor"
	"github.com/aretw0/tapestry/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed session lock is held.
const DefaultLockTTL = 30 * time.Second

// StoreFactory builds the history store of a new session.
type StoreFactory func(sessionID string) ports.HistoryStore

// MemoryStores is the default StoreFactory: one in-process log per session.
func MemoryStores(string) ports.HistoryStore {
	return memory.NewStore()
}

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager is the registry of live editing sessions. Access to a session is
// serialized through WithLock; lock entries are reference counted and
// removed once unused.
type Manager struct {
	stores StoreFactory

	mu      sync.Mutex            // guards locks and editors
	locks   map[string]*lockEntry // active locks
	editors map[string]*editor.Editor

	locker     ports.DistributedLocker // optional
	lockTTL    time.Duration
	logger     *slog.Logger
	editorOpts []editor.Option
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the TTL of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.lockTTL = ttl
		}
	}
}

// WithLogger configures a logger for the Manager and its editors.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithEditorOptions applies opts to every editor the Manager creates.
func WithEditorOptions(opts ...editor.Option) Option {
	return func(m *Manager) {
		m.editorOpts = append(m.editorOpts, opts...)
	}
}

// NewManager creates a session registry. A nil factory means MemoryStores.
func NewManager(stores StoreFactory, opts ...Option) *Manager {
	if stores == nil {
		stores = MemoryStores
	}
	m := &Manager{
		stores:  stores,
		locks:   make(map[string]*lockEntry),
		editors: make(map[string]*editor.Editor),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(sessionID) after unlocking.
func (m *Manager) acquire(sessionID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		entry = &lockEntry{}
		m.locks[sessionID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[sessionID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, sessionID)
	}
}

// Create registers a new session whose canvas starts as g.
// An empty ID gets a generated one.
func (m *Manager) Create(ctx context.Context, sessionID string, g domain.Graph) (*editor.Editor, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var ed *editor.Editor
	err := m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		_, exists := m.editors[sessionID]
		m.mu.Unlock()
		if exists {
			return fmt.Errorf("%w: %s", domain.ErrSessionExists, sessionID)
		}

		opts := append([]editor.Option{editor.WithLogger(m.logger), editor.WithGraph(g)}, m.editorOpts...)
		ed = editor.New(sessionID, m.stores(sessionID), opts...)

		m.mu.Lock()
		m.editors[sessionID] = ed
		m.mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("Session created", "session_id", sessionID)
	return ed, nil
}

// Get returns the editor of a live session.
func (m *Manager) Get(sessionID string) (*editor.Editor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ed, ok := m.editors[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return ed, nil
}

// List returns the IDs of the live sessions, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.editors))
	for id := range m.editors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close ends a session: its editor is torn down, discarding any pending
// capture, and a session-scoped store releases its resources.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	return m.WithLock(ctx, sessionID, func(ctx context.Context) error {
		m.mu.Lock()
		ed, ok := m.editors[sessionID]
		delete(m.editors, sessionID)
		m.mu.Unlock()
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
		}

		ed.Close()
		if d, ok := ed.Store().(ports.Dropper); ok {
			if err := d.Drop(ctx); err != nil {
				return fmt.Errorf("failed to drop history of %s: %w", sessionID, err)
			}
		}
		m.logger.Info("Session closed", "session_id", sessionID)
		return nil
	})
}

// CloseAll ends every live session and returns the joined errors.
func (m *Manager) CloseAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.List() {
		if err := m.Close(ctx, id); err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WithLock executes a function while holding the lock for the session.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	entry := m.acquire(sessionID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(sessionID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, sessionID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"session_id", sessionID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
