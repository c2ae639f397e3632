package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// hook pairs a start step with the stop step that undoes it. Either may be
// nil.
type hook struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error
}

// Lifecycle manages the startup and shutdown of platform components.
type Lifecycle struct {
	mu      sync.Mutex
	hooks   []hook
	started int // hooks whose start ran; -1 when not started
	logger  *slog.Logger
}

// NewLifecycle creates a new lifecycle manager.
func NewLifecycle(logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{started: -1, logger: logger}
}

// Append registers a named start/stop pair. Hooks start in registration
// order and stop in reverse.
func (l *Lifecycle) Append(name string, start, stop func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hooks = append(l.hooks, hook{name: name, start: start, stop: stop})
}

// OnStop registers a stop-only hook.
func (l *Lifecycle) OnStop(name string, stop func(context.Context) error) {
	l.Append(name, nil, stop)
}

// Closer is something that can be closed.
type Closer interface {
	Close() error
}

// RegisterCloser registers a closer to be closed on shutdown.
func (l *Lifecycle) RegisterCloser(name string, c Closer) {
	l.OnStop(name, func(context.Context) error { return c.Close() })
}

// Start runs every start hook. If one fails, the hooks already started are
// stopped in reverse order and the error is returned.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started >= 0 {
		return errors.New("lifecycle already started")
	}

	for i, h := range l.hooks {
		if h.start == nil {
			continue
		}
		if err := h.start(ctx); err != nil {
			l.stopFrom(ctx, i-1)
			return fmt.Errorf("starting %s: %w", h.name, err)
		}
	}

	l.started = len(l.hooks)
	return nil
}

// Stop runs stop hooks in reverse order. All hooks run even if some fail.
func (l *Lifecycle) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started < 0 {
		return nil
	}
	err := l.stopFrom(ctx, l.started-1)
	l.started = -1
	return err
}

// IsStarted returns whether the lifecycle has been started.
func (l *Lifecycle) IsStarted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started >= 0
}

func (l *Lifecycle) stopFrom(ctx context.Context, last int) error {
	var errs []error
	for i := last; i >= 0; i-- {
		h := l.hooks[i]
		if h.stop == nil {
			continue
		}
		if err := h.stop(ctx); err != nil {
			l.logger.Warn("stop hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("stopping %s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
