// Package rodfs implements RodFS (spec §4.11): a synthetic read-only
// introspection filesystem, mounted at a well-known drive so user
// space can read kernel/process state the way Linux's /proc is read.
//
// The flat indexed array plus size-based subtree-skip lookup is a
// direct transliteration of spec §4.11's own algorithm description —
// no surviving pack filesystem does this (biscuit's own `ufs` is a
// disk-backed inode tree, not a synthetic one). The lazy per-process
// materialization callback is grounded on how this repo's own `sched`
// package exposes `Scheduler.FindProcess`, kept free of a direct
// import of `sched` so this package only depends on the narrow
// ProcessInfo shape it actually needs.
package rodfs

import (
	"fmt"
	"sync"

	"defs"
	"ustr"
	"vfs"
)

// ProcessInfo is the slice of process state RodFS surfaces per pid.
type ProcessInfo interface {
	Pid() int
	DisplayName() string
	IsAlive() bool
}

// Scanner looks a process up by pid, the callback spec §4.11 names as
// "scanning the scheduler for a process with the matching pid".
type Scanner func(pid int) (ProcessInfo, bool)

type kind int

const (
	kindFile kind = iota
	kindCollection
)

// entry is one slot of the flat InternalStructure array. size is only
// meaningful for a Collection: the cumulative count of all descendant
// entries plus its own header (so size==1 is an empty directory).
type entry struct {
	name   string
	kind   kind
	parent int
	size   int
	gen    func() ([]byte, defs.Err_t)

	// refCount tracks live handles into a lazily materialized
	// subtree (the "proc/<pid>" trees); static entries use
	// refCount == -1 and are never evicted.
	refCount int
	opened   int
}

// FS is RodFS.
type FS struct {
	mu      sync.Mutex
	entries []entry
	scanner Scanner
	procDir int // index of the "proc" collection, materialization anchor
}

// New builds RodFS's static structure (root, a handful of fixed
// informational files, and an empty "proc" directory materialized
// on demand) and wires scanner in for per-pid subtree lookup.
func New(scanner Scanner, version string) *FS {
	fs := &FS{scanner: scanner}
	fs.entries = []entry{
		{name: "", kind: kindCollection, parent: -1, size: 1, refCount: -1},
	}
	fs.addStaticFile(0, "version", func() ([]byte, defs.Err_t) { return []byte(version), 0 })
	fs.procDir = fs.addStaticCollection(0, "proc")
	return fs
}

// AddFile registers an additional static, root-level file whose
// content is produced on demand by gen, letting callers outside this
// package (the kernel boot sequence's "prof" heap-profile leaf, for
// instance) extend RodFS's fixed structure without this package
// knowing anything about what they serve.
func (fs *FS) AddFile(name string, gen func() ([]byte, defs.Err_t)) vfs.FSObjectID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return vfs.FSObjectID(fs.addStaticFile(0, name, gen))
}

// addStaticFile appends a permanent File entry as a child of parent
// and fixes up every ancestor's size.
func (fs *FS) addStaticFile(parent int, name string, gen func() ([]byte, defs.Err_t)) int {
	idx := len(fs.entries)
	fs.entries = append(fs.entries, entry{name: name, kind: kindFile, parent: parent, size: 1, refCount: -1, gen: gen})
	fs.bumpAncestorSizes(parent, 1)
	return idx
}

// addStaticCollection appends a permanent, initially empty Collection.
func (fs *FS) addStaticCollection(parent int, name string) int {
	idx := len(fs.entries)
	fs.entries = append(fs.entries, entry{name: name, kind: kindCollection, parent: parent, size: 1, refCount: -1})
	fs.bumpAncestorSizes(parent, 1)
	return idx
}

func (fs *FS) bumpAncestorSizes(idx, delta int) {
	for idx >= 0 {
		fs.entries[idx].size += delta
		idx = fs.entries[idx].parent
	}
}

// RootObjectID is always index 0.
func (fs *FS) RootObjectID() vfs.FSObjectID { return 0 }

func (fs *FS) get(id vfs.FSObjectID) (int, *entry, defs.Err_t) {
	idx := int(id)
	if idx < 0 || idx >= len(fs.entries) {
		return 0, nil, defs.ENOTFOUND
	}
	return idx, &fs.entries[idx], 0
}

// directChildren walks forward from a Collection's own index,
// skipping whole subtrees by jumping over each child's recorded size,
// the traversal spec §4.11 names.
func (fs *FS) directChildren(idx int) []int {
	parentSize := fs.entries[idx].size
	var kids []int
	i := idx + 1
	end := idx + parentSize
	for i < end && i < len(fs.entries) {
		kids = append(kids, i)
		i += fs.entries[i].size
	}
	return kids
}

func (fs *FS) findChildByName(idx int, name string) (int, bool) {
	for _, k := range fs.directChildren(idx) {
		if fs.entries[k].name != "" && fs.entries[k].name == name {
			return k, true
		}
	}
	return 0, false
}

// materializeProc builds "proc/<pid>" on first reference, per spec
// §4.11, by consulting the scanner.
func (fs *FS) materializeProc(pid int) (int, defs.Err_t) {
	name := fmt.Sprintf("%d", pid)
	if idx, ok := fs.findChildByName(fs.procDir, name); ok {
		return idx, 0
	}
	if fs.scanner == nil {
		return 0, defs.ENOTFOUND
	}
	info, ok := fs.scanner(pid)
	if !ok {
		return 0, defs.ENOTFOUND
	}

	pidIdx := len(fs.entries)
	fs.entries = append(fs.entries, entry{name: name, kind: kindCollection, parent: fs.procDir, size: 1, refCount: 0})
	displayName := info.DisplayName()
	alive := info.IsAlive()
	fs.entries = append(fs.entries, entry{
		name: "name", kind: kindFile, parent: pidIdx, size: 1, refCount: -1,
		gen: func() ([]byte, defs.Err_t) { return []byte(displayName), 0 },
	})
	fs.entries[pidIdx].size++
	fs.entries = append(fs.entries, entry{
		name: "status", kind: kindFile, parent: pidIdx, size: 1, refCount: -1,
		gen: func() ([]byte, defs.Err_t) {
			if alive {
				return []byte("alive"), 0
			}
			return []byte("zombie"), 0
		},
	})
	fs.entries[pidIdx].size++
	fs.bumpAncestorSizes(fs.procDir, fs.entries[pidIdx].size)
	return pidIdx, 0
}

// ResolvePathRel walks parts from start, materializing "proc/<pid>"
// subtrees lazily on the way through.
func (fs *FS) ResolvePathRel(start vfs.FSObjectID, parts []ustr.Ustr) (vfs.FSObjectID, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	cur, curEntry, err := fs.get(start)
	if err != 0 {
		return 0, err
	}
	for _, part := range parts {
		if curEntry.kind != kindCollection {
			return 0, defs.ENOTADIR
		}
		name := part.String()
		if cur == fs.procDir {
			if idx, ok := fs.materializeProcByName(name); ok {
				cur, curEntry = idx, &fs.entries[idx]
				continue
			}
		}
		idx, ok := fs.findChildByName(cur, name)
		if !ok {
			return 0, defs.ENOTFOUND
		}
		cur, curEntry = idx, &fs.entries[idx]
	}
	return vfs.FSObjectID(cur), 0
}

func (fs *FS) materializeProcByName(name string) (int, bool) {
	var pid int
	if _, err := fmt.Sscanf(name, "%d", &pid); err != nil {
		return 0, false
	}
	idx, err := fs.materializeProc(pid)
	if err != 0 {
		return 0, false
	}
	return idx, true
}

// Read returns bytes from a File entry's lazily fetched payload.
func (fs *FS) Read(id vfs.FSObjectID, seek defs.Seek, buf []byte) (int, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, e, err := fs.get(id)
	if err != 0 {
		return 0, err
	}
	if e.kind != kindFile {
		return 0, defs.ENOTAFILE
	}
	payload, err := e.gen()
	if err != 0 {
		return 0, err
	}
	off := int(seek.Offset)
	if seek.FromEnd {
		off = len(payload) + int(seek.Offset)
	}
	if off < 0 || off > len(payload) {
		return 0, defs.EINVALOFFSET
	}
	return copy(buf, payload[off:]), 0
}

// Write, Truncate, CreateFile, CreateDirectory, and MountDevice are
// unsupported: RodFS is read-only and synthetic.
func (fs *FS) Write(vfs.FSObjectID, defs.Seek, []byte) (int, defs.Err_t) { return 0, defs.ENOTSUPPORTED }
func (fs *FS) Truncate(vfs.FSObjectID, int64) defs.Err_t                { return defs.ENOTSUPPORTED }
func (fs *FS) CreateFile(vfs.FSObjectID, ustr.Ustr) (vfs.FSObjectID, defs.Err_t) {
	return 0, defs.ENOTSUPPORTED
}
func (fs *FS) CreateDirectory(vfs.FSObjectID, ustr.Ustr) (vfs.FSObjectID, defs.Err_t) {
	return 0, defs.ENOTSUPPORTED
}
func (fs *FS) MountDevice(vfs.FSObjectID, ustr.Ustr, vfs.Device) (vfs.FSObjectID, defs.Err_t) {
	return 0, defs.ENOTSUPPORTED
}

// Sync is a no-op: nothing here is ever dirty.
func (fs *FS) Sync(vfs.FSObjectID) defs.Err_t { return 0 }

// SendCommand is unsupported: RodFS exposes no devices.
func (fs *FS) SendCommand(vfs.FSObjectID, int, uintptr) (uintptr, defs.Err_t) {
	return 0, defs.ENOTSUPPORTED
}

// GetChildren lists a Collection's direct children via the size-skip
// traversal.
func (fs *FS) GetChildren(id vfs.FSObjectID) ([]vfs.DirEntry, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, e, err := fs.get(id)
	if err != 0 {
		return nil, err
	}
	if e.kind != kindCollection {
		return nil, defs.ENOTADIR
	}
	var out []vfs.DirEntry
	for _, k := range fs.directChildren(idx) {
		if fs.entries[k].name == "" {
			continue
		}
		out = append(out, vfs.DirEntry{Name: ustr.Ustr(fs.entries[k].name), ID: vfs.FSObjectID(k), Kind: kindOf(fs.entries[k].kind)})
	}
	return out, 0
}

func kindOf(k kind) uint {
	if k == kindCollection {
		return 1
	}
	return 0
}

// AttrsOf reports an entry's kind; size is the byte length of a File's
// current payload, or for a Collection its recorded size (descendant
// count plus its own entry).
func (fs *FS) AttrsOf(id vfs.FSObjectID) (vfs.FileAttr, defs.Err_t) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, e, err := fs.get(id)
	if err != 0 {
		return vfs.FileAttr{}, err
	}
	if e.kind == kindFile {
		payload, err := e.gen()
		if err != 0 {
			return vfs.FileAttr{}, err
		}
		return vfs.FileAttr{Kind: 0, Size: uint(len(payload))}, 0
	}
	return vfs.FileAttr{Kind: 1, Size: uint(e.size)}, 0
}

// OnOpen bumps a materialized subtree's refcount; static entries
// (refCount == -1) are unaffected.
func (fs *FS) OnOpen(id vfs.FSObjectID) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	_, e, err := fs.get(id)
	if err != 0 {
		return err
	}
	e.opened++
	if e.refCount >= 0 {
		e.refCount++
	}
	return 0
}

// OnClose drops a materialized subtree's refcount; when it reaches
// zero the subtree becomes unreachable (spec §4.11: "unreachable
// subtrees are dropped at close"). Entries are tombstoned in place
// rather than compacted out of the flat array, since shrinking would
// invalidate every sibling's already-handed-out FSObjectID.
func (fs *FS) OnClose(id vfs.FSObjectID) defs.Err_t {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	idx, e, err := fs.get(id)
	if err != 0 {
		return err
	}
	e.opened--
	if e.refCount > 0 {
		e.refCount--
		if e.refCount == 0 {
			fs.evict(idx)
		}
	}
	return 0
}

// evict blanks a materialized subtree's name so future lookups and
// listings no longer find it; its slot and size stay in place so the
// size-skip traversal over the rest of the array remains correct
// (shrinking the range here would misalign any sibling subtree that
// was appended after this one).
func (fs *FS) evict(idx int) {
	fs.entries[idx].name = ""
}
