package vm

import (
	"mem"
)

const entries = 512

// FrameSource is the minimal frame-allocator surface the page-table
// engine needs; *mem.FrameAllocator satisfies it, and tests supply a
// fake to exercise rollback-on-failure paths deterministically.
type FrameSource interface {
	AllocateFrame() (mem.Frame, bool)
	DeallocateFrame(mem.Frame)
}

// PageTable is one level of a 4-level, 512-entry page table. The
// kernel builds, mutates, and tears down these via the
// architecture-neutral operations below; Entry bit layout is
// delegated to Arch.
type PageTable struct {
	Entries [entries]uint64
}

func tableAt(f mem.Frame) *PageTable {
	return mem.FrameAs[PageTable](f)
}

// indices splits a virtual address into its four 9-bit level indices,
// most significant first (PML4/L0 .. PT/L3), matching both the amd64
// and AArch64 4-level, 4 KiB-granule layouts.
func indices(v mem.Va_t) [4]int {
	u := uint64(v)
	return [4]int{
		int((u >> 39) & 0x1ff),
		int((u >> 30) & 0x1ff),
		int((u >> 21) & 0x1ff),
		int((u >> 12) & 0x1ff),
	}
}

// walk descends from root to the leaf (level-3) table that would hold
// page's PTE, allocating intermediate tables as needed when create is
// true. On allocation failure it rolls back every intermediate table
// it created during this call and returns ok=false, leaving the tree
// exactly as it was before the call (spec §4.2: "no partial mapping
// is visible").
func walk(root mem.Frame, page mem.Va_t, create bool, fs FrameSource) (leaf *PageTable, idx int, ok bool) {
	idxs := indices(page)
	cur := tableAt(root)
	var created []mem.Frame
	rollback := func() {
		for _, f := range created {
			fs.DeallocateFrame(f)
		}
	}
	for lvl := 0; lvl < 3; lvl++ {
		i := idxs[lvl]
		phys, present := Arch.decode(cur.Entries[i])
		if !present {
			if !create {
				return nil, 0, false
			}
			nf, ok := fs.AllocateFrame()
			if !ok {
				rollback()
				return nil, 0, false
			}
			zeroFrame(nf)
			created = append(created, nf)
			cur.Entries[i] = Arch.encode(nf.Addr, FlagsOf(WRITE, USER_ACCESSIBLE), true)
			phys = nf.Addr
		}
		cur = tableAt(mem.Frame{Addr: phys})
	}
	return cur, idxs[3], true
}

func zeroFrame(f mem.Frame) {
	b := f.Bytes()
	for i := range b {
		b[i] = 0
	}
}

// MapTo installs a single page -> frame mapping with the given flags.
// It fails with AlreadyMapped if the leaf entry is already present.
func MapTo(root mem.Frame, page mem.Va_t, frame mem.Frame, flags Flags, fs FrameSource) error {
	leaf, idx, ok := walk(root, page, true, fs)
	if !ok {
		return ErrOutOfMemory
	}
	if _, present := Arch.decode(leaf.Entries[idx]); present {
		return ErrAlreadyMapped
	}
	leaf.Entries[idx] = Arch.encode(frame.Addr, flags, true)
	Arch.flush(page, false)
	return nil
}

// MapZeroed allocates a fresh frame, maps it at page, and zeros it.
// The frame is returned to fs on any failure.
func MapZeroed(root mem.Frame, page mem.Va_t, flags Flags, fs FrameSource) (mem.Frame, error) {
	f, ok := fs.AllocateFrame()
	if !ok {
		return mem.Frame{}, ErrOutOfMemory
	}
	zeroFrame(f)
	if err := MapTo(root, page, f, flags, fs); err != nil {
		fs.DeallocateFrame(f)
		return mem.Frame{}, err
	}
	return f, nil
}

// Unmap clears page's leaf entry if present. It is idempotent on
// already-unmapped entries. The caller is responsible for freeing the
// frame that backed the mapping, mirroring TrackedMemoryMapping's
// ownership in the vas package.
func Unmap(root mem.Frame, page mem.Va_t, fs FrameSource) (freed mem.Frame, wasMapped bool) {
	leaf, idx, ok := walk(root, page, false, fs)
	if !ok {
		return mem.Frame{}, false
	}
	phys, present := Arch.decode(leaf.Entries[idx])
	if !present {
		return mem.Frame{}, false
	}
	leaf.Entries[idx] = 0
	Arch.flush(page, false)
	return mem.Frame{Addr: phys}, true
}

// AllocMap maps every page in [from, to) with a freshly zeroed frame.
// On partial failure, every page mapped during this call is rolled
// back (unmapped and its frame freed) so the table is left exactly as
// it was before the call.
func AllocMap(root mem.Frame, from, to mem.Va_t, flags Flags, fs FrameSource) error {
	var mapped []mem.Va_t
	rollback := func() {
		for _, p := range mapped {
			if f, ok := Unmap(root, p, fs); ok {
				fs.DeallocateFrame(f)
			}
		}
	}
	for v := from; v < to; v += mem.Va_t(mem.PGSIZE) {
		if _, err := MapZeroed(root, v, flags, fs); err != nil {
			rollback()
			return err
		}
		mapped = append(mapped, v)
	}
	return nil
}

// FreeUnmap unmaps and frees every page in [from, to). Idempotent on
// already-unmapped pages.
func FreeUnmap(root mem.Frame, from, to mem.Va_t, fs FrameSource) {
	for v := from; v < to; v += mem.Va_t(mem.PGSIZE) {
		if f, ok := Unmap(root, v, fs); ok {
			fs.DeallocateFrame(f)
		}
	}
}

// MapContiguousPages maps n consecutive frames starting at v (virtual)
// and p (physical), useful for MMIO regions and the framebuffer.
func MapContiguousPages(root mem.Frame, v mem.Va_t, p mem.Pa_t, n int, flags Flags, fs FrameSource) error {
	var mapped []mem.Va_t
	for i := 0; i < n; i++ {
		page := v + mem.Va_t(i*mem.PGSIZE)
		frame := mem.Frame{Addr: p + mem.Pa_t(i*mem.PGSIZE)}
		if err := MapTo(root, page, frame, flags, fs); err != nil {
			for _, mp := range mapped {
				Unmap(root, mp, fs)
			}
			return err
		}
		mapped = append(mapped, page)
	}
	return nil
}

// Translate returns the physical frame backing page, if mapped.
func Translate(root mem.Frame, page mem.Va_t) (mem.Frame, bool) {
	idxs := indices(page)
	cur := tableAt(root)
	for lvl := 0; lvl < 3; lvl++ {
		phys, present := Arch.decode(cur.Entries[idxs[lvl]])
		if !present {
			return mem.Frame{}, false
		}
		cur = tableAt(mem.Frame{Addr: phys})
	}
	phys, present := Arch.decode(cur.Entries[idxs[3]])
	if !present {
		return mem.Frame{}, false
	}
	return mem.Frame{Addr: phys}, true
}
