// Package res implements the resource manager: the per-process table
// of open resources a thread's ordinary integer handles index into
// (spec §4.6). It generalizes biscuit's fd.Fd_t / Cwd_t pair — a
// single-purpose file-descriptor slot plus an ad hoc cwd field — into
// the tagged-variant, refcounted Resource the spec names, shared by
// files, directory iterators, tracked mappings, and socket endpoints.
package res

import (
	"sync"

	"github.com/pkg/errors"

	"defs"
)

// Kind tags which variant a Resource holds.
type Kind int

const (
	KindFile Kind = iota
	KindDirIter
	KindMapping
	KindSocket
	KindNull
)

// Object is the thing a Resource refers to. Table entries hold a
// refcounted Object rather than the raw value so Duplicate can share
// ownership across indices without the caller managing lifetimes by
// hand, the way Copyfd required for Fd_t.
type Object interface {
	// Close releases the underlying resource. Called exactly once,
	// when the last referencing index is removed.
	Close() defs.Err_t
}

type entry struct {
	kind Kind
	obj  Object
	refs int
}

// Table is one resource table: the local (per-thread, cloned on
// spawn) or global (per-process, shared) half of spec §4.6. Both use
// this same implementation; which one a given index lives in is a
// property of the caller, not of Table itself.
type Table struct {
	mu      sync.Mutex
	entries []*entry
	free    []int // indices available for reuse, LIFO
}

// New returns an empty table.
func New() *Table {
	return &Table{}
}

// Add inserts a fresh, singly-referenced object and returns its index.
func (t *Table) Add(kind Kind, obj Object) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &entry{kind: kind, obj: obj, refs: 1}
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[idx] = e
		return idx
	}
	t.entries = append(t.entries, e)
	return len(t.entries) - 1
}

// Get invokes visitor with the object at index under the table lock,
// so guards backed by the object (e.g. a directory iterator's cursor)
// are never observed outside synchronization and never leaked past
// the call. The visitor's return value is passed through.
func (t *Table) Get(index int, visitor func(Kind, Object) (any, defs.Err_t)) (any, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.at(index)
	if e == nil {
		return nil, defs.EBADF
	}
	return visitor(e.kind, e.obj)
}

func (t *Table) at(index int) *entry {
	if index < 0 || index >= len(t.entries) {
		return nil
	}
	return t.entries[index]
}

// Duplicate produces a new index referring to the same underlying
// object, bumping its refcount — the Table analogue of fd.Copyfd, but
// sharing the object instead of reopening it.
func (t *Table) Duplicate(index int) (int, defs.Err_t) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.at(index)
	if e == nil {
		return 0, defs.EBADF
	}
	e.refs++
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[idx] = e
		return idx, 0
	}
	t.entries = append(t.entries, e)
	return len(t.entries) - 1, 0
}

// Remove drops index's reference. When it was the last reference, the
// underlying object's Close runs and its error (if any) is returned;
// Close errors on an object still referenced elsewhere are never
// surfaced here since Close only runs once, on the final Remove.
func (t *Table) Remove(index int) defs.Err_t {
	t.mu.Lock()
	e := t.at(index)
	if e == nil {
		t.mu.Unlock()
		return defs.EBADF
	}
	t.entries[index] = nil
	t.free = append(t.free, index)
	e.refs--
	last := e.refs == 0
	t.mu.Unlock()

	if !last {
		return 0
	}
	if err := e.obj.Close(); err != 0 {
		return err
	}
	return 0
}

// Clone produces an independent table sharing every live object with
// t (refcounts bumped accordingly) — the resource-table inheritance
// new_thread performs when spawning a sibling thread (spec §4.6: "Thread
// spawn inherits the parent's resource table").
func (t *Table) Clone() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	nt := &Table{entries: make([]*entry, len(t.entries))}
	for i, e := range t.entries {
		if e == nil {
			nt.free = append(nt.free, i)
			continue
		}
		e.refs++
		nt.entries[i] = e
	}
	return nt
}

// CloseAll removes every live entry, releasing every object whose
// refcount reaches zero. Used on process teardown for the global
// table and on thread exit for a local table.
func (t *Table) CloseAll() {
	t.mu.Lock()
	live := make([]int, 0, len(t.entries))
	for i, e := range t.entries {
		if e != nil {
			live = append(live, i)
		}
	}
	t.mu.Unlock()

	for _, i := range live {
		if err := t.Remove(i); err != 0 {
			// best-effort teardown; a failing Close is not retried, and
			// its wrapped error is dropped here rather than returned.
			_ = errors.Wrapf(err, "res: closing index %d", i)
		}
	}
}
