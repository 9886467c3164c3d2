package tev

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tevkit/tev/internal/tevdebug"
)

// Controller is the facade's view of the background capture session owner.
// [Agent] implements it.
type Controller interface {
	// SetCategories replaces the active category allow-list.
	SetCategories(categories []string)

	// Start begins a capture session against the current category list.
	Start()

	// Stop ends the active session, flushing buffered events. Flush errors
	// are also delivered to the controller's own error hook, so the facade
	// may discard the return value.
	Stop() error

	// IsStarted reports whether a capture session is active.
	IsStarted() bool
}

// TracingConfig collects the parameters for [NewTracing]. All fields are
// optional.
type TracingConfig struct {
	// Recorder receives every enabled event. If nil, events are delivered to
	// in-process listeners only. An [Agent] is the usual recorder; use
	// [MultiRecorder] to capture to several destinations.
	Recorder Recorder

	// Controller is kept in sync with the set of enabled categories, started
	// when that set becomes non-empty, and stopped when it empties. Usually
	// the same [Agent] as the Recorder.
	Controller Controller
}

// Tracing is the process-wide trace event facade. It composes an [Emitter]
// for in-process listeners with a category enablement table and an external
// [Recorder], and keeps all three consistent.
//
// A category is enabled while it is being recorded, or while at least one
// listener is subscribed to it, or both. [Tracing.Emit] rejects events for
// disabled categories before doing any other work; call sites that need to
// avoid even event construction should probe [Tracing.IsEnabled] first.
type Tracing struct {
	mtx sync.Mutex

	emitter  *Emitter
	table    *categoryTable
	recorder Recorder
	control  Controller

	groupKeys map[string]string // raw joined set -> canonical group key
	pushedKey string            // category list last pushed to the controller
	hooks     []func(map[string]CategoryFlags)
}

// NewTracing returns a facade with the given configuration.
func NewTracing(cfg TracingConfig) *Tracing {
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	t := &Tracing{
		emitter:   NewEmitter(),
		table:     newCategoryTable(),
		recorder:  cfg.Recorder,
		control:   cfg.Controller,
		groupKeys: map[string]string{},
	}
	t.emitter.Watch(listenerWatcher{t})
	return t
}

// listenerWatcher folds emitter registration changes into the enablement
// table and the controller category list.
type listenerWatcher struct {
	t *Tracing
}

func (w listenerWatcher) NewListener(l *Listener)    {}
func (w listenerWatcher) RemoveListener(l *Listener) {}

func (w listenerWatcher) NewListenerCategory(category string) {
	w.t.mtx.Lock()
	defer w.t.mtx.Unlock()
	if w.t.table.set(category, FlagListening) {
		w.t.syncLocked()
	}
}

func (w listenerWatcher) RemoveListenerCategory(category string) {
	w.t.mtx.Lock()
	defer w.t.mtx.Unlock()
	if w.t.table.clear(category, FlagListening) {
		w.t.syncLocked()
	}
}

// syncLocked runs after any change to the enablement table. It pushes the
// enabled category list to the controller, starts or stops it on empty
// transitions, and fires the change hooks. Callers must hold t.mtx and must
// have actually changed the table.
func (t *Tracing) syncLocked() {
	cats := t.table.categories()
	key := strings.Join(cats, ",")

	if t.control != nil && key != t.pushedKey {
		t.control.SetCategories(cats)
		switch {
		case len(cats) > 0 && !t.control.IsStarted():
			t.control.Start()
		case len(cats) == 0 && t.control.IsStarted():
			t.control.Stop()
		}
	}
	t.pushedKey = key

	if len(t.hooks) > 0 {
		snap := t.table.get()
		for _, fn := range t.hooks {
			fn(snap)
		}
	}
}

// IsEnabled reports whether any of the given categories is enabled. This is
// a lock-free map probe per category, short-circuiting on the first match.
func (t *Tracing) IsEnabled(categories ...string) bool {
	return t.table.enabled(categories)
}

// RecordingCategories returns the sorted categories with the recording bit
// set.
func (t *Tracing) RecordingCategories() []string {
	return t.table.withFlag(FlagRecording)
}

// ListeningCategories returns the sorted categories with the listening bit
// set.
func (t *Tracing) ListeningCategories() []string {
	return t.table.withFlag(FlagListening)
}

// EnableRecording sets (or, with enable false, clears) the recording bit for
// each of the given categories. Change hooks and controller updates occur
// only when the call actually changed something.
func (t *Tracing) EnableRecording(categories []string, enable bool) error {
	cats, err := normalizeCategories(categories)
	if err != nil {
		return err
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	var changed bool
	for _, c := range cats {
		if enable {
			changed = t.table.set(c, FlagRecording) || changed
		} else {
			changed = t.table.clear(c, FlagRecording) || changed
		}
	}
	if changed {
		t.syncLocked()
	}
	return nil
}

// GetEnabledCategories returns a copy of the enablement table.
func (t *Tracing) GetEnabledCategories() map[string]CategoryFlags {
	return t.table.get()
}

// SetCategoryFlags assigns exactly the given flags to each of the given
// categories, zero clearing the category entirely. This is the surface for
// externally-triggered enablement, e.g. an operator command.
func (t *Tracing) SetCategoryFlags(categories []string, flags CategoryFlags) error {
	cats, err := normalizeCategories(categories)
	if err != nil {
		return err
	}
	if flags > FlagRecording|FlagListening {
		return fmt.Errorf("%w: unknown flag bits 0x%x", ErrBadCategory, flags)
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()

	var changed bool
	for _, c := range cats {
		changed = t.table.assign(c, flags) || changed
	}
	if changed {
		t.syncLocked()
	}
	return nil
}

// OnEnabledChange registers a hook invoked with a copy of the enablement
// table after every actual change. Hooks run synchronously with the change
// and must not call back into the facade.
func (t *Tracing) OnEnabledChange(fn func(map[string]CategoryFlags)) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.hooks = append(t.hooks, fn)
}

// Emit dispatches the event under its own category set. It returns true if
// and only if the event was forwarded to the recorder. Events whose
// categories are all disabled are rejected immediately, before validation or
// any other work. Malformed events for enabled categories return an error
// wrapping [ErrBadEvent] or [ErrBadCategory]. Recorder-side failures never
// surface here.
func (t *Tracing) Emit(ev *Event) (bool, error) {
	if ev == nil {
		return false, fmt.Errorf("%w: nil event", ErrBadEvent)
	}
	return t.emit(ev.Categories, ev)
}

// EmitAs behaves like [Tracing.Emit] with the given categories taking
// precedence over the event's own.
func (t *Tracing) EmitAs(categories []string, ev *Event) (bool, error) {
	if ev == nil {
		return false, fmt.Errorf("%w: nil event", ErrBadEvent)
	}
	return t.emit(categories, ev)
}

func (t *Tracing) emit(categories []string, ev *Event) (bool, error) {
	if len(categories) == 0 {
		return false, nil
	}
	if !t.table.enabled(categories) {
		return false, nil
	}

	if err := ev.Validate(); err != nil {
		return false, err
	}

	group, err := t.groupKey(categories)
	if err != nil {
		return false, err
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	switch ev.Type {
	case TypeBegin:
		t.recorder.EmitBegin(ev.Name, ev.ID, group, ev.Args)
	case TypeEnd:
		t.recorder.EmitEnd(ev.Name, ev.ID, group, ev.Args)
	case TypeInstant:
		t.recorder.EmitInstant(ev.Name, ev.ID, group, ev.Args)
	case TypeCount:
		t.recorder.EmitCount(ev.Name, ev.ID, group, ev.Value)
	}

	t.emitter.Emit(categories, ev)

	return true, nil
}

// groupKey interns the canonical group key for a category set. The cache is
// keyed on the raw, order-sensitive set, so repeat emits of the same set
// skip the sort and join entirely. Growth is bounded by the number of
// distinct category sets the application emits.
func (t *Tracing) groupKey(categories []string) (string, error) {
	raw := strings.Join(categories, "\x1f")

	t.mtx.Lock()
	defer t.mtx.Unlock()

	if key, ok := t.groupKeys[raw]; ok {
		tevdebug.GroupKeyCounters.Hits.Add(1)
		return key, nil
	}

	cats, err := normalizeCategories(categories)
	if err != nil {
		return "", err
	}
	sorted := append([]string(nil), cats...)
	sort.Strings(sorted)
	key := strings.Join(sorted, ",")

	t.groupKeys[raw] = key
	tevdebug.GroupKeyCounters.Misses.Add(1)
	return key, nil
}

// On subscribes the listener to the given categories. Newly-listened
// categories become enabled immediately.
func (t *Tracing) On(categories []string, l *Listener) error {
	return t.emitter.On(categories, l)
}

// AddListener is an alias for [Tracing.On].
func (t *Tracing) AddListener(categories []string, l *Listener) error {
	return t.emitter.On(categories, l)
}

// RemoveListener removes the given categories from the listener's
// registration. Categories losing their last listener become disabled,
// unless they are independently recording.
func (t *Tracing) RemoveListener(categories []string, l *Listener) error {
	return t.emitter.RemoveListener(categories, l)
}

// RemoveAllListeners removes every registration matching the given
// categories, or all registrations when categories is nil.
func (t *Tracing) RemoveAllListeners(categories []string) error {
	return t.emitter.RemoveAllListeners(categories)
}

// Listeners returns the distinct listeners for the given categories. A nil
// slice selects every listener.
func (t *Tracing) Listeners(categories []string) []*Listener {
	return t.emitter.Listeners(categories)
}

// ListenerCount counts the listeners [Tracing.Listeners] would return.
func (t *Tracing) ListenerCount(categories []string) int {
	return t.emitter.ListenerCount(categories)
}

// ListenerCategories returns the distinct categories that currently have at
// least one listener.
func (t *Tracing) ListenerCategories() []string {
	return t.emitter.ListenerCategories()
}
