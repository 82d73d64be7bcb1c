package tapestry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/tapestry/internal/logging"
	"github.com/aretw0/tapestry/pkg/adapters/redis"
	"github.com/aretw0/tapestry/pkg/domain"
	"github.com/aretw0/tapestry/pkg/editor"
	"github.com/aretw0/tapestry/pkg/history"
	"github.com/aretw0/tapestry/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

// App wires a session registry with its history stores, recorder settings
// and metrics. It is the entry point used by the CLI and by embedders.
type App struct {
	Sessions *session.Manager
	Registry *prometheus.Registry
	Metrics  *history.Metrics

	debounce time.Duration
	logger   *slog.Logger
	redis    *goredis.Client
	redisOpt []redis.Option
	extra    []history.Option
}

// Option configures an App.
type Option func(*App)

// WithDebounce sets the coalescing window of every session's recorder.
func WithDebounce(d time.Duration) Option {
	return func(a *App) {
		a.debounce = d
	}
}

// WithLogger configures a logger for the App and everything it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) {
		a.logger = logger
	}
}

// WithRedis stores history in Redis and coordinates session locks through it.
// The App closes the client on Close.
func WithRedis(client *goredis.Client, opts ...redis.Option) Option {
	return func(a *App) {
		a.redis = client
		a.redisOpt = opts
	}
}

// WithRecorderOptions passes extra options to every session's recorder.
func WithRecorderOptions(opts ...history.Option) Option {
	return func(a *App) {
		a.extra = append(a.extra, opts...)
	}
}

// New builds an App. Without WithRedis history lives in process memory.
func New(opts ...Option) (*App, error) {
	a := &App{
		debounce: history.DefaultDelay,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive, got %s", a.debounce)
	}

	a.Registry = prometheus.NewRegistry()
	a.Metrics = history.NewMetrics(a.Registry)

	recorderOpts := append([]history.Option{
		history.WithDelay(a.debounce),
		history.WithMetrics(a.Metrics),
	}, a.extra...)
	sessionOpts := []session.Option{
		session.WithLogger(a.logger),
		session.WithEditorOptions(editor.WithRecorderOptions(recorderOpts...)),
	}

	var stores session.StoreFactory
	if a.redis != nil {
		stores = redis.NewFactory(a.redis, a.redisOpt...)
		sessionOpts = append(sessionOpts, session.WithLocker(redis.NewLocker(a.redis, "tapestry:")))
		a.logger.Info("History stored in Redis", "addr", a.redis.Options().Addr)
	}

	a.Sessions = session.NewManager(stores, sessionOpts...)
	return a, nil
}

// Debounce returns the coalescing window applied to new sessions.
func (a *App) Debounce() time.Duration {
	return a.debounce
}

// Open creates a session seeded with g.
func (a *App) Open(ctx context.Context, sessionID string, g domain.Graph) (*editor.Editor, error) {
	return a.Sessions.Create(ctx, sessionID, g)
}

// Ping checks the history backend.
func (a *App) Ping(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

// Close ends every session and releases the history backend.
func (a *App) Close(ctx context.Context) error {
	err := a.Sessions.CloseAll(ctx)
	if a.redis != nil {
		err = errors.Join(err, a.redis.Close())
	}
	return err
}
