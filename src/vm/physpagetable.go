package vm

import "mem"

// halfSplit is the PML4/L0 index that separates the user lower half
// (indices below it) from the shared kernel higher half (indices at
// or above it). AArch64 conventionally splits the same way across two
// root tables (TTBR0/TTBR1); this engine keeps one table and the same
// split index so both ports share one PhysPageTable implementation.
const halfSplit = entries / 2

// KernelHigherHalf is the template higher-half entries every process
// table mirrors bit-for-bit (spec invariant I2). Populated once during
// boot from the kernel's own root table and never mutated afterward.
var KernelHigherHalf [entries]uint64

// PhysPageTable is exclusive ownership of a root page-table frame.
// Dropping it tears down the entire lower half (user mappings),
// returning every leaf frame to the allocator, while leaving the
// shared higher half intact (spec §3, PhysPageTable).
type PhysPageTable struct {
	Root mem.Frame
	fs   FrameSource
}

// NewPhysPageTable allocates a fresh root table, zeros the lower half,
// and copies KernelHigherHalf into the upper half verbatim.
func NewPhysPageTable(fs FrameSource) (*PhysPageTable, bool) {
	f, ok := fs.AllocateFrame()
	if !ok {
		return nil, false
	}
	zeroFrame(f)
	t := tableAt(f)
	copy(t.Entries[halfSplit:], KernelHigherHalf[halfSplit:])
	return &PhysPageTable{Root: f, fs: fs}, true
}

// Drop tears down every mapping (and every intermediate table) in the
// lower half, returning all of it to fs, then frees the root table
// itself. The higher half is left completely alone: its frames are
// shared with every other process and are never touched here.
func (p *PhysPageTable) Drop() {
	root := tableAt(p.Root)
	for i := 0; i < halfSplit; i++ {
		phys, present := Arch.decode(root.Entries[i])
		if !present {
			continue
		}
		freeSubtree(mem.Frame{Addr: phys}, 1, p.fs)
		root.Entries[i] = 0
	}
	p.fs.DeallocateFrame(p.Root)
}

// freeSubtree recursively frees a page-table subtree rooted at f at
// depth lvl (1 = PDPT/L1 .. 3 = PT/L3, where L3 entries are leaf
// frames rather than tables).
func freeSubtree(f mem.Frame, lvl int, fs FrameSource) {
	t := tableAt(f)
	if lvl < 3 {
		for i := 0; i < entries; i++ {
			phys, present := Arch.decode(t.Entries[i])
			if !present {
				continue
			}
			freeSubtree(mem.Frame{Addr: phys}, lvl+1, fs)
		}
		fs.DeallocateFrame(f)
		return
	}
	// lvl == 3: entries are leaf data frames, not tables.
	for i := 0; i < entries; i++ {
		phys, present := Arch.decode(t.Entries[i])
		if !present {
			continue
		}
		fs.DeallocateFrame(mem.Frame{Addr: phys})
	}
	fs.DeallocateFrame(f)
}
