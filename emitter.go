package tev

import (
	"fmt"
	"sync"
)

// Reserved category names describing emitter registration changes. They are
// excluded from category accounting: subscribing a listener to one of these
// names never produces a watcher notification for it.
const (
	MetaNewListener            = "newListener"
	MetaRemoveListener         = "removeListener"
	MetaNewListenerCategory    = "newListenerCategory"
	MetaRemoveListenerCategory = "removeListenerCategory"
)

func isReservedCategory(c string) bool {
	switch c {
	case MetaNewListener, MetaRemoveListener, MetaNewListenerCategory, MetaRemoveListenerCategory:
		return true
	}
	return false
}

// Listener is a registered callback. The pointer is the listener's identity:
// registering the same *Listener again extends its category set rather than
// creating a second registration.
type Listener struct {
	fn func(categories []string, args ...any)
}

// NewListener wraps a callback in a registerable handle. The callback
// receives the emitted category set and the emit payload.
func NewListener(fn func(categories []string, args ...any)) *Listener {
	return &Listener{fn: fn}
}

// EmitterWatcher observes registration changes on an [Emitter]. These
// notifications are deliberately kept off the public category-emit path, so
// user listeners can never intercept them as if they were domain events.
type EmitterWatcher interface {
	// NewListener fires when a listener is registered for the first time,
	// after the NewListenerCategory notifications of the same call.
	NewListener(l *Listener)

	// RemoveListener fires when a listener's last category is removed and
	// its registration is deleted.
	RemoveListener(l *Listener)

	// NewListenerCategory fires for each non-reserved category gaining its
	// first listener.
	NewListenerCategory(category string)

	// RemoveListenerCategory fires for each non-reserved category losing its
	// last listener.
	RemoveListenerCategory(category string)
}

type registration struct {
	listener   *Listener
	categories []string // first-appearance order, no duplicates
}

func (r *registration) has(category string) bool {
	for _, c := range r.categories {
		if c == category {
			return true
		}
	}
	return false
}

func (r *registration) matchesAny(categories []string) bool {
	for _, c := range categories {
		if r.has(c) {
			return true
		}
	}
	return false
}

// Emitter is a multi-category publish/subscribe engine. An event or listener
// registration targets one or more categories simultaneously, and a listener
// is invoked at most once per emit, however many of its categories match.
//
// Dispatch snapshots the matching listeners before invoking any of them, so
// a listener may add or remove registrations, including its own, without
// corrupting the dispatch in progress.
type Emitter struct {
	mtx      sync.Mutex
	regs     []*registration
	index    map[*Listener]*registration
	watchers []EmitterWatcher
}

// NewEmitter returns an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		index: map[*Listener]*registration{},
	}
}

// Watch registers a watcher for registration changes.
func (e *Emitter) Watch(w EmitterWatcher) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.watchers = append(e.watchers, w)
}

// On subscribes the listener to the given categories. An empty category set
// is a no-op. Registering an already-registered listener extends its
// category set.
func (e *Emitter) On(categories []string, l *Listener) error {
	if l == nil {
		return fmt.Errorf("%w: nil listener", ErrBadCategory)
	}

	cats, err := normalizeCategories(categories)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		return nil
	}

	var (
		firstCategories []string
		isNewListener   bool
		watchers        []EmitterWatcher
	)

	e.mtx.Lock()
	reg := e.index[l]
	if reg == nil {
		reg = &registration{listener: l}
		e.index[l] = reg
		e.regs = append(e.regs, reg)
		isNewListener = true
	}
	for _, c := range cats {
		if reg.has(c) {
			continue
		}
		if !isReservedCategory(c) && !e.categoryInUseLocked(c) {
			firstCategories = append(firstCategories, c)
		}
		reg.categories = append(reg.categories, c)
	}
	watchers = append(watchers, e.watchers...)
	e.mtx.Unlock()

	for _, c := range firstCategories {
		for _, w := range watchers {
			w.NewListenerCategory(c)
		}
	}
	if isNewListener {
		for _, w := range watchers {
			w.NewListener(l)
		}
	}

	return nil
}

// AddListener is an alias for [Emitter.On].
func (e *Emitter) AddListener(categories []string, l *Listener) error {
	return e.On(categories, l)
}

// RemoveListener removes the given categories from the listener's
// registration. If its category set becomes empty, the registration is
// deleted. Removing categories or listeners that are not registered is a
// no-op.
func (e *Emitter) RemoveListener(categories []string, l *Listener) error {
	if l == nil {
		return fmt.Errorf("%w: nil listener", ErrBadCategory)
	}

	cats, err := normalizeCategories(categories)
	if err != nil {
		return err
	}
	if len(cats) == 0 {
		return nil
	}

	var (
		lastCategories []string
		wasRemoved     bool
		watchers       []EmitterWatcher
	)

	e.mtx.Lock()
	reg := e.index[l]
	if reg == nil {
		e.mtx.Unlock()
		return nil
	}
	var touched []string
	for _, c := range cats {
		if !reg.has(c) {
			continue
		}
		keep := reg.categories[:0]
		for _, have := range reg.categories {
			if have != c {
				keep = append(keep, have)
			}
		}
		reg.categories = keep
		touched = append(touched, c)
	}
	if len(touched) > 0 && len(reg.categories) == 0 {
		delete(e.index, l)
		for i, have := range e.regs {
			if have == reg {
				e.regs = append(e.regs[:i], e.regs[i+1:]...)
				break
			}
		}
		wasRemoved = true
	}
	for _, c := range touched {
		if !isReservedCategory(c) && !e.categoryInUseLocked(c) {
			lastCategories = append(lastCategories, c)
		}
	}
	watchers = append(watchers, e.watchers...)
	e.mtx.Unlock()

	for _, c := range lastCategories {
		for _, w := range watchers {
			w.RemoveListenerCategory(c)
		}
	}
	if wasRemoved {
		for _, w := range watchers {
			w.RemoveListener(l)
		}
	}

	return nil
}

// RemoveAllListeners removes every registration matching the given
// categories, or every registration outright when categories is nil.
// Registrations are processed in reverse registration order.
func (e *Emitter) RemoveAllListeners(categories []string) error {
	if categories != nil {
		if _, err := normalizeCategories(categories); err != nil {
			return err
		}
	}

	type pair struct {
		listener   *Listener
		categories []string
	}

	e.mtx.Lock()
	snapshot := make([]pair, 0, len(e.regs))
	for _, reg := range e.regs {
		snapshot = append(snapshot, pair{
			listener:   reg.listener,
			categories: append([]string(nil), reg.categories...),
		})
	}
	e.mtx.Unlock()

	for i := len(snapshot) - 1; i >= 0; i-- {
		p := snapshot[i]
		remove := p.categories
		if categories != nil {
			remove = categories
		}
		if err := e.RemoveListener(remove, p.listener); err != nil {
			return err
		}
	}

	return nil
}

// Emit invokes every listener subscribed to at least one of the given
// categories, exactly once each, with the category set and payload. It
// returns true if and only if at least one listener was invoked. Emitting
// with an empty category set returns false.
func (e *Emitter) Emit(categories []string, args ...any) bool {
	if len(categories) == 0 {
		return false
	}

	e.mtx.Lock()
	var matched []*Listener
	for _, reg := range e.regs {
		if reg.matchesAny(categories) {
			matched = append(matched, reg.listener)
		}
	}
	e.mtx.Unlock()

	for _, l := range matched {
		l.fn(categories, args...)
	}

	return len(matched) > 0
}

// Listeners returns the distinct listeners subscribed to at least one of the
// given categories, in registration order. A nil categories slice selects
// every listener; a non-nil empty slice selects none.
func (e *Emitter) Listeners(categories []string) []*Listener {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	out := make([]*Listener, 0, len(e.regs))
	for _, reg := range e.regs {
		if categories == nil || reg.matchesAny(categories) {
			out = append(out, reg.listener)
		}
	}
	return out
}

// ListenerCount counts the listeners [Emitter.Listeners] would return.
func (e *Emitter) ListenerCount(categories []string) int {
	return len(e.Listeners(categories))
}

// ListenerCategories returns the distinct categories that currently have at
// least one listener, in first-registration order.
func (e *Emitter) ListenerCategories() []string {
	e.mtx.Lock()
	defer e.mtx.Unlock()

	var out []string
	for _, reg := range e.regs {
		for _, c := range reg.categories {
			var dup bool
			for _, have := range out {
				if have == c {
					dup = true
					break
				}
			}
			if !dup {
				out = append(out, c)
			}
		}
	}
	return out
}

func (e *Emitter) categoryInUseLocked(category string) bool {
	for _, reg := range e.regs {
		if reg.has(category) {
			return true
		}
	}
	return false
}
