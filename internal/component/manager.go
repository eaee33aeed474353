// Package component sequences startup and shutdown of the bot's moving
// parts. Components initialize in registration order and shut down in
// reverse, so later components may depend on earlier ones.
package component

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	logx "calbot/pkg/logx"
)

// Component is anything with a managed lifecycle.
type Component interface {
	Name() string
	Init(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// State tracks where a component is in its lifecycle.
type State int

const (
	StateRegistered State = iota
	StateInitialized
	StateShuttingDown
	StateShutDown
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInitialized:
		return "initialized"
	case StateShuttingDown:
		return "shutting-down"
	case StateShutDown:
		return "shut-down"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Funcs adapts plain functions into a Component. Either func may be nil.
type Funcs struct {
	ComponentName string
	InitFunc      func(ctx context.Context) error
	ShutdownFunc  func(ctx context.Context) error
}

func (f Funcs) Name() string { return f.ComponentName }

func (f Funcs) Init(ctx context.Context) error {
	if f.InitFunc == nil {
		return nil
	}
	return f.InitFunc(ctx)
}

func (f Funcs) Shutdown(ctx context.Context) error {
	if f.ShutdownFunc == nil {
		return nil
	}
	return f.ShutdownFunc(ctx)
}

type entry struct {
	c     Component
	state State

	// shutdownTried guarantees at most one Shutdown call per component,
	// even when a rollback already covered it.
	shutdownTried bool
}

// Manager owns the registered components and their lifecycle order.
type Manager struct {
	mu      sync.Mutex
	log     logx.Logger
	entries []*entry
}

func NewManager(log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{log: log}
}

// Register appends a component. Registration order is init order; shutdown
// runs in reverse. Names must be unique and non-empty.
func (m *Manager) Register(c Component) error {
	if c == nil {
		return errors.New("nil component")
	}
	name := strings.TrimSpace(c.Name())
	if name == "" {
		return errors.New("component name required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.c.Name() == name {
			return fmt.Errorf("component %q already registered", name)
		}
	}
	m.entries = append(m.entries, &entry{c: c})
	return nil
}

// InitAll initializes every component in registration order. On the first
// failure it rolls back the already-initialized components in reverse order
// and returns the init error; rollback errors are attached to it.
func (m *Manager) InitAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, e := range m.entries {
		if err := ctx.Err(); err != nil {
			return m.rollbackLocked(ctx, i, err)
		}
		m.log.Debug("component init", logx.String("component", e.c.Name()))
		if err := e.c.Init(ctx); err != nil {
			e.state = StateFailed
			m.log.Error("component init failed",
				logx.String("component", e.c.Name()), logx.Err(err))
			return m.rollbackLocked(ctx, i, fmt.Errorf("init %s: %w", e.c.Name(), err))
		}
		e.state = StateInitialized
		m.log.Info("component initialized", logx.String("component", e.c.Name()))
	}
	return nil
}

// rollbackLocked shuts down components [0, upto) in reverse after a failed
// init. The init error stays primary; rollback failures are joined onto it.
func (m *Manager) rollbackLocked(ctx context.Context, upto int, cause error) error {
	errs := []error{cause}
	for i := upto - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.state != StateInitialized {
			continue
		}
		if err := m.shutdownOneLocked(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", e.c.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// ShutdownAll shuts down every initialized or failed component in reverse
// registration order. Every eligible component gets exactly one attempt even
// when earlier ones error; all errors come back joined.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		switch e.state {
		case StateInitialized, StateFailed:
			if e.shutdownTried {
				continue
			}
			// Failed components may hold partial resources; they still get
			// their one shutdown attempt.
			if err := m.shutdownOneLocked(ctx, e); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", e.c.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) shutdownOneLocked(ctx context.Context, e *entry) error {
	e.shutdownTried = true
	e.state = StateShuttingDown
	m.log.Debug("component shutdown", logx.String("component", e.c.Name()))
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return e.c.Shutdown(ctx)
	}()
	if err != nil {
		e.state = StateFailed
		m.log.Error("component shutdown failed",
			logx.String("component", e.c.Name()), logx.Err(err))
		return err
	}
	e.state = StateShutDown
	m.log.Info("component shut down", logx.String("component", e.c.Name()))
	return nil
}

// States returns a snapshot of component states keyed by name.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.entries))
	for _, e := range m.entries {
		out[e.c.Name()] = e.state
	}
	return out
}
