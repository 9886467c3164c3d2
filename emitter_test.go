package tev_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/tevkit/tev"
)

// metaLog records emitter watcher notifications in order.
type metaLog struct {
	mtx     sync.Mutex
	entries []string
}

func (m *metaLog) add(s string) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.entries = append(m.entries, s)
}

func (m *metaLog) take() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	out := m.entries
	m.entries = nil
	return out
}

func (m *metaLog) NewListener(l *tev.Listener)            { m.add("newListener") }
func (m *metaLog) RemoveListener(l *tev.Listener)         { m.add("removeListener") }
func (m *metaLog) NewListenerCategory(category string)    { m.add("newListenerCategory:" + category) }
func (m *metaLog) RemoveListenerCategory(category string) { m.add("removeListenerCategory:" + category) }

func TestEmitterDispatch(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var (
		mtx   sync.Mutex
		calls = map[string]int{}
	)
	count := func(name string) *tev.Listener {
		return tev.NewListener(func(categories []string, args ...any) {
			mtx.Lock()
			defer mtx.Unlock()
			calls[name]++
		})
	}

	l1 := count("l1")
	l2 := count("l2")

	AssertNoError(t, e.On([]string{"one"}, l1))
	AssertNoError(t, e.On([]string{"one", "two"}, l2))

	AssertEqual(t, true, e.Emit([]string{"two"}, "x"))
	ExpectEqual(t, 0, calls["l1"])
	ExpectEqual(t, 1, calls["l2"])

	AssertEqual(t, true, e.Emit([]string{"one"}, "y"))
	ExpectEqual(t, 1, calls["l1"])
	ExpectEqual(t, 2, calls["l2"])
}

func TestEmitterInvokesOncePerEmit(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var invocations int
	l := tev.NewListener(func(categories []string, args ...any) {
		invocations++
	})

	AssertNoError(t, e.On([]string{"a", "b", "c"}, l))

	// Every category of the emit matches the listener, which must still be
	// invoked exactly once.
	AssertEqual(t, true, e.Emit([]string{"a", "b", "c"}))
	AssertEqual(t, 1, invocations)
}

func TestEmitterEmptySets(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()
	l := tev.NewListener(func(categories []string, args ...any) {})

	AssertNoError(t, e.On(nil, l))
	AssertNoError(t, e.On([]string{}, l))
	AssertEqual(t, 0, e.ListenerCount(nil))

	AssertNoError(t, e.On([]string{"a"}, l))
	AssertEqual(t, 1, e.ListenerCount(nil))          // nil selects all
	AssertEqual(t, 0, e.ListenerCount([]string{}))   // empty selects none
	AssertEqual(t, 1, e.ListenerCount([]string{"a"}))

	AssertEqual(t, false, e.Emit(nil))
	AssertEqual(t, false, e.Emit([]string{}))
	AssertEqual(t, false, e.Emit([]string{"nobody"}))
}

func TestEmitterRegistrationRoundTrip(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var meta metaLog
	e.Watch(&meta)

	l := tev.NewListener(func(categories []string, args ...any) {})

	AssertNoError(t, e.On([]string{"one", "two"}, l))
	want := []string{
		"newListenerCategory:one",
		"newListenerCategory:two",
		"newListener",
	}
	if diff := cmp.Diff(want, meta.take()); diff != "" {
		t.Errorf("registration notifications (-want +have):\n%s", diff)
	}

	AssertNoError(t, e.RemoveListener([]string{"one", "two"}, l))
	want = []string{
		"removeListenerCategory:one",
		"removeListenerCategory:two",
		"removeListener",
	}
	if diff := cmp.Diff(want, meta.take()); diff != "" {
		t.Errorf("removal notifications (-want +have):\n%s", diff)
	}

	AssertEqual(t, 0, e.ListenerCount(nil))

	// Removing again is a no-op and produces no notifications.
	AssertNoError(t, e.RemoveListener([]string{"one", "two"}, l))
	AssertEqual(t, 0, len(meta.take()))
}

func TestEmitterSharedCategoryAccounting(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var meta metaLog
	e.Watch(&meta)

	l1 := tev.NewListener(func(categories []string, args ...any) {})
	l2 := tev.NewListener(func(categories []string, args ...any) {})

	AssertNoError(t, e.On([]string{"shared"}, l1))
	AssertNoError(t, e.On([]string{"shared"}, l2))
	want := []string{
		"newListenerCategory:shared",
		"newListener",
		"newListener", // second listener on an in-use category
	}
	if diff := cmp.Diff(want, meta.take()); diff != "" {
		t.Errorf("notifications (-want +have):\n%s", diff)
	}

	// The category stays in use until its last listener goes.
	AssertNoError(t, e.RemoveListener([]string{"shared"}, l1))
	want = []string{"removeListener"}
	if diff := cmp.Diff(want, meta.take()); diff != "" {
		t.Errorf("notifications (-want +have):\n%s", diff)
	}

	AssertNoError(t, e.RemoveListener([]string{"shared"}, l2))
	want = []string{
		"removeListenerCategory:shared",
		"removeListener",
	}
	if diff := cmp.Diff(want, meta.take()); diff != "" {
		t.Errorf("notifications (-want +have):\n%s", diff)
	}
}

func TestEmitterReservedNames(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var meta metaLog
	e.Watch(&meta)

	l := tev.NewListener(func(categories []string, args ...any) {})

	AssertNoError(t, e.On([]string{tev.MetaNewListener, "real"}, l))
	want := []string{
		"newListenerCategory:real", // no notification for the reserved name
		"newListener",
	}
	if diff := cmp.Diff(want, meta.take()); diff != "" {
		t.Errorf("notifications (-want +have):\n%s", diff)
	}
}

func TestEmitterExtendRegistration(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()
	l := tev.NewListener(func(categories []string, args ...any) {})

	AssertNoError(t, e.On([]string{"a"}, l))
	AssertNoError(t, e.On([]string{"b"}, l))

	AssertEqual(t, 1, e.ListenerCount(nil))
	AssertEqual(t, 1, e.ListenerCount([]string{"a"}))
	AssertEqual(t, 1, e.ListenerCount([]string{"b"}))

	if diff := cmp.Diff([]string{"a", "b"}, e.ListenerCategories()); diff != "" {
		t.Errorf("categories (-want +have):\n%s", diff)
	}
}

func TestEmitterRemoveAllListeners(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name       string
		categories []string
		wantCount  int
	}{
		{"all", nil, 0},
		{"matching", []string{"a"}, 1},
		{"none", []string{}, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := tev.NewEmitter()
			l1 := tev.NewListener(func(categories []string, args ...any) {})
			l2 := tev.NewListener(func(categories []string, args ...any) {})
			AssertNoError(t, e.On([]string{"a"}, l1))
			AssertNoError(t, e.On([]string{"b"}, l2))

			AssertNoError(t, e.RemoveAllListeners(tc.categories))
			AssertEqual(t, tc.wantCount, e.ListenerCount(nil))
		})
	}
}

func TestEmitterReentrantRemove(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var fired int
	var l *tev.Listener
	l = tev.NewListener(func(categories []string, args ...any) {
		fired++
		e.RemoveListener(categories, l) // removing self mid-dispatch is safe
	})

	AssertNoError(t, e.On([]string{"x"}, l))
	AssertEqual(t, true, e.Emit([]string{"x"}))
	AssertEqual(t, 1, fired)
	AssertEqual(t, 0, e.ListenerCount(nil))
	AssertEqual(t, false, e.Emit([]string{"x"}))
}

func TestEmitterBadCategory(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()
	l := tev.NewListener(func(categories []string, args ...any) {})

	if err := e.On([]string{"ok", ""}, l); err == nil {
		t.Fatal("expected error for empty category name")
	}
	AssertEqual(t, 0, e.ListenerCount(nil))
}

func TestEmitterPayload(t *testing.T) {
	t.Parallel()

	e := tev.NewEmitter()

	var got string
	l := tev.NewListener(func(categories []string, args ...any) {
		got = fmt.Sprintf("%v %v", categories, args)
	})

	AssertNoError(t, e.On([]string{"p"}, l))
	e.Emit([]string{"p"}, 1, "two")
	AssertEqual(t, "[p] [1 two]", got)
}
