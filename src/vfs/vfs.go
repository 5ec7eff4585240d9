// Package vfs implements the mount table, path resolution, and the
// FileSystem/FSObjectDescriptor surfaces spec §4.9 names. It is the
// one place a drive name ("ram", "sys") turns into a concrete
// FileSystem implementation (ramfs, rodfs, device-mounted fs).
//
// Grounded on biscuit's own path-resolution split (bpath's
// Canonicalize plus fs's root-relative walk, both trimmed from this
// retrieval pack) reconstructed from spec §4.9's prose, and on
// gvisor's VFS2 mount-table shape (a name-keyed registry of
// filesystem implementations behind one interface) for the Mount
// type's concurrency discipline.
package vfs

import (
	"sync"

	"defs"
	"stat"
	"ustr"
)

// FSObjectID identifies an object within one FileSystem's own
// namespace; it carries no meaning across filesystems.
type FSObjectID uint64

// VFSObjectID is a globally resolved handle: which drive, and which
// object within it.
type VFSObjectID struct {
	Drive string
	Inner FSObjectID
}

// DirEntry is one child of a directory-like object.
type DirEntry struct {
	Name ustr.Ustr
	ID   FSObjectID
	Kind uint
}

// FileAttr mirrors stat.Stat_t's logical content before it is
// serialized to the syscall-facing wire layout.
type FileAttr struct {
	Kind uint
	Size uint
}

// Device is the interface drivers register inside the VFS device-file
// hierarchy (spec §6).
type Device interface {
	Read(off int64, buf []byte) (int, defs.Err_t)
	Write(off int64, buf []byte) (int, defs.Err_t)
	Sync() defs.Err_t
	SendCommand(cmd int, arg uintptr) (uintptr, defs.Err_t)
	Mmap(offset int64, pages int) (uintptr, defs.Err_t)
}

// FileSystem is the trait object object the mount table stores one of
// per drive (spec §4.9).
type FileSystem interface {
	Read(id FSObjectID, seek defs.Seek, buf []byte) (int, defs.Err_t)
	Write(id FSObjectID, seek defs.Seek, buf []byte) (int, defs.Err_t)
	Truncate(id FSObjectID, size int64) defs.Err_t
	Sync(id FSObjectID) defs.Err_t
	SendCommand(id FSObjectID, cmd int, arg uintptr) (uintptr, defs.Err_t)

	CreateFile(parent FSObjectID, name ustr.Ustr) (FSObjectID, defs.Err_t)
	CreateDirectory(parent FSObjectID, name ustr.Ustr) (FSObjectID, defs.Err_t)
	MountDevice(parent FSObjectID, name ustr.Ustr, dev Device) (FSObjectID, defs.Err_t)

	GetChildren(id FSObjectID) ([]DirEntry, defs.Err_t)
	AttrsOf(id FSObjectID) (FileAttr, defs.Err_t)
	ResolvePathRel(start FSObjectID, parts []ustr.Ustr) (FSObjectID, defs.Err_t)

	OnOpen(id FSObjectID) defs.Err_t
	OnClose(id FSObjectID) defs.Err_t
	RootObjectID() FSObjectID
}

// Mount is the drive-name -> FileSystem registry.
type Mount struct {
	mu    sync.RWMutex
	table map[string]FileSystem
}

// NewMount creates an empty mount table.
func NewMount() *Mount {
	return &Mount{table: make(map[string]FileSystem)}
}

// Add registers fs under drive, replacing any previous registration.
func (m *Mount) Add(drive string, fs FileSystem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table[drive] = fs
}

// Remove unregisters drive.
func (m *Mount) Remove(drive string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.table, drive)
}

func (m *Mount) lookup(drive string) (FileSystem, defs.Err_t) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fs, ok := m.table[drive]
	if !ok {
		return nil, defs.EFSLABEL
	}
	return fs, 0
}

// ResolveAbs resolves an absolute path "drive:/a/b/c": it selects the
// drive, strips the scheme, and walks parts from the drive's root.
func (m *Mount) ResolveAbs(path ustr.Ustr) (FileSystem, FSObjectID, defs.Err_t) {
	drive, rest, ok := path.SplitDrive()
	if !ok {
		return nil, 0, defs.EINVALPATH
	}
	fs, err := m.lookup(drive.String())
	if err != 0 {
		return nil, 0, err
	}
	id, err := fs.ResolvePathRel(fs.RootObjectID(), rest.Parts())
	if err != 0 {
		return nil, 0, err
	}
	return fs, id, 0
}

// ResolveRel resolves path relative to (cwdFS, cwdID) if path is not
// itself absolute; an absolute path is resolved from its own drive as
// usual, ignoring the supplied cwd.
func (m *Mount) ResolveRel(cwdFS FileSystem, cwdID FSObjectID, path ustr.Ustr) (FileSystem, FSObjectID, defs.Err_t) {
	if path.IsAbsolute() || func() bool { _, _, ok := path.SplitDrive(); return ok }() {
		return m.ResolveAbs(path)
	}
	id, err := cwdFS.ResolvePathRel(cwdID, path.Parts())
	if err != 0 {
		return nil, 0, err
	}
	return cwdFS, id, 0
}

// ResolveUncreated splits path's last component off and resolves the
// parent, returning (fs, parent_id, name) for create operations — the
// `uncreated` variant spec §4.9 names.
func (m *Mount) ResolveUncreated(cwdFS FileSystem, cwdID FSObjectID, path ustr.Ustr) (FileSystem, FSObjectID, ustr.Ustr, defs.Err_t) {
	drive, rest, hasDrive := path.SplitDrive()
	if path.IsAbsolute() && !hasDrive {
		return nil, 0, nil, defs.EINVALPATH
	}
	parts := rest.Parts()
	if len(parts) == 0 {
		return nil, 0, nil, defs.EINVALPATH
	}
	name := parts[len(parts)-1]
	parentParts := parts[:len(parts)-1]

	var fs FileSystem
	var parent FSObjectID
	var err defs.Err_t
	if hasDrive {
		fs, err = m.lookup(drive.String())
		if err != 0 {
			return nil, 0, nil, err
		}
		parent, err = fs.ResolvePathRel(fs.RootObjectID(), parentParts)
	} else {
		fs = cwdFS
		parent, err = fs.ResolvePathRel(cwdID, parentParts)
	}
	if err != 0 {
		return nil, 0, nil, err
	}
	return fs, parent, name, 0
}

// FSObjectDescriptor is an open handle on one FileSystem object,
// enforcing OpenOptions on every call and running sync+on_close
// exactly once on Close (spec §4.9).
type FSObjectDescriptor struct {
	mu     sync.Mutex
	fs     FileSystem
	id     FSObjectID
	opts   defs.OpenOptions
	closed bool
}

// Open constructs a descriptor after calling the filesystem's on_open
// hook.
func Open(fs FileSystem, id FSObjectID, opts defs.OpenOptions) (*FSObjectDescriptor, defs.Err_t) {
	if err := fs.OnOpen(id); err != 0 {
		return nil, err
	}
	return &FSObjectDescriptor{fs: fs, id: id, opts: opts}, 0
}

func (d *FSObjectDescriptor) require(opt defs.OpenOptions) defs.Err_t {
	if d.opts&opt == 0 {
		return defs.EPERM
	}
	return 0
}

// Read reads from the object at the given seek position.
func (d *FSObjectDescriptor) Read(seek defs.Seek, buf []byte) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, defs.EINVALRESOURCE
	}
	if err := d.require(defs.O_READ); err != 0 {
		return 0, err
	}
	return d.fs.Read(d.id, seek, buf)
}

// Write writes to the object at the given seek position.
func (d *FSObjectDescriptor) Write(seek defs.Seek, buf []byte) (int, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, defs.EINVALRESOURCE
	}
	if err := d.require(defs.O_WRITE); err != 0 {
		return 0, err
	}
	return d.fs.Write(d.id, seek, buf)
}

// Truncate resizes the object.
func (d *FSObjectDescriptor) Truncate(size int64) defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return defs.EINVALRESOURCE
	}
	if err := d.require(defs.O_WRITE); err != 0 {
		return err
	}
	return d.fs.Truncate(d.id, size)
}

// Sync flushes the object.
func (d *FSObjectDescriptor) Sync() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return defs.EINVALRESOURCE
	}
	return d.fs.Sync(d.id)
}

// SendCommand issues a device- or filesystem-specific command.
func (d *FSObjectDescriptor) SendCommand(cmd int, arg uintptr) (uintptr, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, defs.EINVALRESOURCE
	}
	return d.fs.SendCommand(d.id, cmd, arg)
}

// Children returns a snapshot of the object's directory entries.
func (d *FSObjectDescriptor) Children() ([]DirEntry, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, defs.EINVALRESOURCE
	}
	return d.fs.GetChildren(d.id)
}

// Attrs returns the object's attributes.
func (d *FSObjectDescriptor) Attrs() (FileAttr, defs.Err_t) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return FileAttr{}, defs.EINVALRESOURCE
	}
	return d.fs.AttrsOf(d.id)
}

// Close satisfies res.Object: it syncs and calls on_close exactly
// once. Safe to call more than once; only the first call has effect.
func (d *FSObjectDescriptor) Close() defs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	d.closed = true
	syncErr := d.fs.Sync(d.id)
	closeErr := d.fs.OnClose(d.id)
	if syncErr != 0 {
		return syncErr
	}
	return closeErr
}

// ToStatAttr renders FileAttr into the fixed-width wire layout the
// stat(2)-style syscall hands back to user space.
func ToStatAttr(a FileAttr) stat.Stat_t {
	var st stat.Stat_t
	st.Wkind(a.Kind)
	st.Wsize(a.Size)
	return st
}
