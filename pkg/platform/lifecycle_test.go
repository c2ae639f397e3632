package platform

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLifecycle_StartAndStop(t *testing.T) {
	lc := NewLifecycle(nil)

	var started, stopped bool
	lc.Append("component", func(context.Context) error {
		started = true
		return nil
	}, func(context.Context) error {
		stopped = true
		return nil
	})

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !started {
		t.Error("start hook not called")
	}
	if !lc.IsStarted() {
		t.Error("IsStarted() = false after Start()")
	}

	if err := lc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if !stopped {
		t.Error("stop hook not called")
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after Stop()")
	}
}

func TestLifecycle_StartAlreadyStarted(t *testing.T) {
	lc := NewLifecycle(nil)
	_ = lc.Start(context.Background())

	if err := lc.Start(context.Background()); err == nil {
		t.Error("Start() expected error for already started")
	}
}

func TestLifecycle_StopNotStarted(t *testing.T) {
	lc := NewLifecycle(nil)
	called := false
	lc.OnStop("x", func(context.Context) error {
		called = true
		return nil
	})

	if err := lc.Stop(context.Background()); err != nil {
		t.Errorf("Stop() error = %v, expected nil for not started", err)
	}
	if called {
		t.Error("stop hook ran without Start")
	}
}

func TestLifecycle_StartRollbackOnError(t *testing.T) {
	lc := NewLifecycle(nil)

	var calls []string
	record := func(s string) func(context.Context) error {
		return func(context.Context) error {
			calls = append(calls, s)
			return nil
		}
	}
	lc.Append("a", record("start-a"), record("stop-a"))
	lc.RegisterCloser("closer", closerFunc(func() error {
		calls = append(calls, "close")
		return nil
	}))
	lc.Append("b", func(context.Context) error {
		calls = append(calls, "start-b")
		return errors.New("boom")
	}, record("stop-b"))
	lc.Append("c", record("start-c"), record("stop-c"))

	err := lc.Start(context.Background())
	if err == nil {
		t.Fatal("Start() expected error")
	}
	if got, want := err.Error(), "starting b: boom"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}

	want := []string{"start-a", "start-b", "close", "stop-a"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", calls, want)
		}
	}
	if lc.IsStarted() {
		t.Error("IsStarted() = true after failed Start()")
	}
}

func TestLifecycle_StopReverseOrderCollectsErrors(t *testing.T) {
	lc := NewLifecycle(nil)

	var order []string
	lc.OnStop("first", func(context.Context) error {
		order = append(order, "first")
		return errors.New("first failed")
	})
	lc.OnStop("second", func(context.Context) error {
		order = append(order, "second")
		return nil
	})
	lc.OnStop("third", func(context.Context) error {
		order = append(order, "third")
		return errors.New("third failed")
	})

	if err := lc.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	err := lc.Stop(context.Background())
	if err == nil {
		t.Fatal("Stop() expected error")
	}
	if len(order) != 3 || order[0] != "third" || order[2] != "first" {
		t.Errorf("stop order = %v, want [third second first]", order)
	}
	for _, msg := range []string{"stopping first: first failed", "stopping third: third failed"} {
		if !strings.Contains(err.Error(), msg) {
			t.Errorf("error %q missing %q", err, msg)
		}
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
