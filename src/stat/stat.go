// Package stat mirrors a VFS object's attributes in the fixed-width
// wire layout syscalls hand back to user space (vfs.ToStatAttr builds
// one).
package stat

import "unsafe"

// Kind values mirror vfs.FileAttr.Kind without importing vfs, so stat
// stays a leaf package the way biscuit's own stat package imports
// nothing from fs.
const (
	KindFile = iota
	KindDirectory
	KindDevice
)

/// Stat_t mirrors a file's stat information.
type Stat_t struct {
	_dev   uint
	_ino   uint
	_kind  uint
	_size  uint
	_rdev  uint
	_mtime uint
}

/// Wdev stores the device ID.
func (st *Stat_t) Wdev(v uint) {
	st._dev = v
}

/// Wino stores the inode number.
func (st *Stat_t) Wino(v uint) {
	st._ino = v
}

/// Wkind records the object kind (KindFile/KindDirectory/KindDevice).
func (st *Stat_t) Wkind(v uint) {
	st._kind = v
}

/// Wsize records the file size.
func (st *Stat_t) Wsize(v uint) {
	st._size = v
}

/// Wrdev stores the rdev field.
func (st *Stat_t) Wrdev(v uint) {
	st._rdev = v
}

/// Wmtime stores the last-modified time, in milliseconds since boot.
func (st *Stat_t) Wmtime(v uint) {
	st._mtime = v
}

/// Kind returns the stored object kind.
func (st *Stat_t) Kind() uint {
	return st._kind
}

/// Size returns the stored size.
func (st *Stat_t) Size() uint {
	return st._size
}

/// Rdev returns the stored rdev.
func (st *Stat_t) Rdev() uint {
	return st._rdev
}

/// Rino returns the stored inode number.
func (st *Stat_t) Rino() uint {
	return st._ino
}

/// Bytes exposes the raw bytes of the structure for copying to user
/// memory.
func (st *Stat_t) Bytes() []uint8 {
	const sz = unsafe.Sizeof(*st)
	sl := (*[sz]uint8)(unsafe.Pointer(&st._dev))
	return sl[:]
}
