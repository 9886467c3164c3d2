package tev

import (
	"sort"
	"sync"
	"sync/atomic"
)

// CategoryFlags is the per-category enablement bitset.
type CategoryFlags uint8

const (
	// FlagRecording marks a category captured unconditionally by the
	// recorder, independent of in-process listeners.
	FlagRecording CategoryFlags = 1 << iota

	// FlagListening marks a category with at least one in-process listener.
	FlagListening
)

// Recording reports whether the recording bit is set.
func (f CategoryFlags) Recording() bool { return f&FlagRecording != 0 }

// Listening reports whether the listening bit is set.
func (f CategoryFlags) Listening() bool { return f&FlagListening != 0 }

// categoryTable maps category names to enablement flags. Writers mutate
// under a lock and publish a fresh immutable snapshot; the read path loads
// the snapshot without locking, as it is probed on every emit.
type categoryTable struct {
	mtx      sync.Mutex
	snapshot atomic.Pointer[map[string]CategoryFlags]
}

func newCategoryTable() *categoryTable {
	t := &categoryTable{}
	empty := map[string]CategoryFlags{}
	t.snapshot.Store(&empty)
	return t
}

// enabled reports whether any of the given categories has any flag set,
// short-circuiting on the first match.
func (t *categoryTable) enabled(categories []string) bool {
	m := *t.snapshot.Load()
	if len(m) == 0 {
		return false
	}
	for _, c := range categories {
		if m[c] != 0 {
			return true
		}
	}
	return false
}

// set ORs the flag into the category's entry, reporting whether anything
// changed.
func (t *categoryTable) set(category string, flag CategoryFlags) (changed bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	cur := *t.snapshot.Load()
	if cur[category]&flag == flag {
		return false
	}

	next := make(map[string]CategoryFlags, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	next[category] |= flag
	t.snapshot.Store(&next)
	return true
}

// clear removes the flag from the category's entry, deleting the entry when
// no flags remain, and reporting whether anything changed.
func (t *categoryTable) clear(category string, flag CategoryFlags) (changed bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	cur := *t.snapshot.Load()
	if cur[category]&flag == 0 {
		return false
	}

	next := make(map[string]CategoryFlags, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	if v := next[category] &^ flag; v == 0 {
		delete(next, category)
	} else {
		next[category] = v
	}
	t.snapshot.Store(&next)
	return true
}

// assign replaces the category's entry with exactly the given flags, zero
// meaning no entry, and reports whether anything changed.
func (t *categoryTable) assign(category string, flags CategoryFlags) (changed bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	cur := *t.snapshot.Load()
	if cur[category] == flags {
		return false
	}

	next := make(map[string]CategoryFlags, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if flags == 0 {
		delete(next, category)
	} else {
		next[category] = flags
	}
	t.snapshot.Store(&next)
	return true
}

// get returns a copy of the current table.
func (t *categoryTable) get() map[string]CategoryFlags {
	cur := *t.snapshot.Load()
	out := make(map[string]CategoryFlags, len(cur))
	for k, v := range cur {
		out[k] = v
	}
	return out
}

// withFlag returns the sorted categories carrying the given flag.
func (t *categoryTable) withFlag(flag CategoryFlags) []string {
	cur := *t.snapshot.Load()
	out := make([]string, 0, len(cur))
	for k, v := range cur {
		if v&flag != 0 {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// categories returns every enabled category, sorted.
func (t *categoryTable) categories() []string {
	cur := *t.snapshot.Load()
	out := make([]string, 0, len(cur))
	for k := range cur {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
