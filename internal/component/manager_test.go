package component

import (
	"context"
	"errors"
	"testing"

	logx "calbot/pkg/logx"
)

type fake struct {
	name    string
	initErr error
	shutErr error

	inits *[]string
	shuts *[]string
}

func (f *fake) Name() string { return f.name }

func (f *fake) Init(ctx context.Context) error {
	*f.inits = append(*f.inits, f.name)
	return f.initErr
}

func (f *fake) Shutdown(ctx context.Context) error {
	*f.shuts = append(*f.shuts, f.name)
	return f.shutErr
}

type harness struct {
	m     *Manager
	inits []string
	shuts []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{m: NewManager(logx.Nop())}
}

func (h *harness) add(t *testing.T, name string, initErr, shutErr error) {
	t.Helper()
	f := &fake{name: name, initErr: initErr, shutErr: shutErr, inits: &h.inits, shuts: &h.shuts}
	if err := h.m.Register(f); err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestInitAllOrderAndShutdownReverse(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.add(t, "storage", nil, nil)
	h.add(t, "calendar", nil, nil)
	h.add(t, "notifier", nil, nil)

	if err := h.m.InitAll(ctx); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if want := []string{"storage", "calendar", "notifier"}; !equal(h.inits, want) {
		t.Fatalf("init order = %v, want %v", h.inits, want)
	}

	if err := h.m.ShutdownAll(ctx); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	if want := []string{"notifier", "calendar", "storage"}; !equal(h.shuts, want) {
		t.Fatalf("shutdown order = %v, want %v", h.shuts, want)
	}

	states := h.m.States()
	for name, st := range states {
		if st != StateShutDown {
			t.Errorf("component %s state = %v, want shut-down", name, st)
		}
	}
}

func TestInitAllRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("port in use")
	h := newHarness(t)
	h.add(t, "storage", nil, nil)
	h.add(t, "calendar", nil, nil)
	h.add(t, "notifier", boom, nil)

	err := h.m.InitAll(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("InitAll error = %v, want wrapped %v", err, boom)
	}
	// Only the components that came up get rolled back, newest first.
	if want := []string{"calendar", "storage"}; !equal(h.shuts, want) {
		t.Fatalf("rollback order = %v, want %v", h.shuts, want)
	}

	states := h.m.States()
	if states["notifier"] != StateFailed {
		t.Errorf("notifier state = %v, want failed", states["notifier"])
	}
	if states["storage"] != StateShutDown || states["calendar"] != StateShutDown {
		t.Errorf("rolled-back states = %v, want shut-down", states)
	}
}

func TestShutdownAllCollectsEveryError(t *testing.T) {
	ctx := context.Background()
	errA := errors.New("flush failed")
	errB := errors.New("socket stuck")
	h := newHarness(t)
	h.add(t, "a", nil, errA)
	h.add(t, "b", nil, nil)
	h.add(t, "c", nil, errB)

	if err := h.m.InitAll(ctx); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	err := h.m.ShutdownAll(ctx)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("ShutdownAll error = %v, want both %v and %v", err, errA, errB)
	}
	// An early error never stops the remaining components from shutting down.
	if want := []string{"c", "b", "a"}; !equal(h.shuts, want) {
		t.Fatalf("shutdown order = %v, want %v", h.shuts, want)
	}
}

func TestFailedComponentGetsOneShutdownAttempt(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("bad credentials")
	h := newHarness(t)
	h.add(t, "storage", nil, nil)
	h.add(t, "notifier", boom, nil)

	if err := h.m.InitAll(ctx); err == nil {
		t.Fatal("InitAll succeeded despite failing component")
	}
	h.shuts = nil

	// The failed component still gets its shutdown attempt; the rolled-back
	// one already had its turn.
	if err := h.m.ShutdownAll(ctx); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	if want := []string{"notifier"}; !equal(h.shuts, want) {
		t.Fatalf("shutdown calls = %v, want %v", h.shuts, want)
	}

	h.shuts = nil
	if err := h.m.ShutdownAll(ctx); err != nil {
		t.Fatalf("ShutdownAll repeat: %v", err)
	}
	if len(h.shuts) != 0 {
		t.Fatalf("second ShutdownAll called Shutdown again: %v", h.shuts)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	h.add(t, "x", nil, nil)

	dup := &fake{name: "x", inits: &h.inits, shuts: &h.shuts}
	if err := h.m.Register(dup); err == nil {
		t.Fatal("duplicate name accepted")
	}
	unnamed := &fake{name: "  ", inits: &h.inits, shuts: &h.shuts}
	if err := h.m.Register(unnamed); err == nil {
		t.Fatal("blank name accepted")
	}
	if err := h.m.Register(nil); err == nil {
		t.Fatal("nil component accepted")
	}
}

func TestFuncsAdapter(t *testing.T) {
	ctx := context.Background()
	m := NewManager(logx.Nop())

	var started, stopped bool
	err := m.Register(Funcs{
		ComponentName: "ticker",
		InitFunc:      func(ctx context.Context) error { started = true; return nil },
		ShutdownFunc:  func(ctx context.Context) error { stopped = true; return nil },
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(Funcs{ComponentName: "noop"}); err != nil {
		t.Fatalf("Register noop: %v", err)
	}

	if err := m.InitAll(ctx); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if err := m.ShutdownAll(ctx); err != nil {
		t.Fatalf("ShutdownAll: %v", err)
	}
	if !started || !stopped {
		t.Fatalf("funcs not invoked: started=%v stopped=%v", started, stopped)
	}
}
