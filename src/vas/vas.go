// Package vas implements the per-process virtual address space: the
// user-half allocator over one vm.PhysPageTable (spec §4.5). It hands
// out guarded, tracked ranges and maintains the data-break pointer
// ELF loading and brk(2)-style growth rely on.
//
// The allocation strategy (bump pointer over the user window, with a
// free-list fed back by dropped mappings before the bump pointer is
// touched) is grounded on gvisor's pkg/sentry/mm address-space
// allocator, which keeps exactly this "free-list first, bump as
// fallback" shape for its own MemoryManager.
package vas

import (
	"sync"

	"mem"
	"vm"
)

// userBase and userTop bound the lower half of address space handed
// out to user mappings; everything at or above userTop belongs to the
// kernel higher half and is never touched by this allocator.
const (
	userBase mem.Va_t = 0x10_0000 // leave the first 1 MiB unmapped as a permanent guard
	userTop  mem.Va_t = 0x0000_7fff_ffff_f000
)

// TrackedMemoryMapping is a guard over one user mapping: dropping it
// (via Unmap) unmaps the range and returns every frame it held, the
// single mechanism by which I1 ("every mapped page is reachable from
// exactly one TrackedMemoryMapping") is enforced.
type TrackedMemoryMapping struct {
	vas    *VAS
	Base   mem.Va_t
	Pages  int
	closed bool
}

// Unmap tears the mapping down, returning its frames to vas's frame
// source. Safe to call more than once.
func (m *TrackedMemoryMapping) Unmap() {
	if m.closed {
		return
	}
	m.closed = true
	vm.FreeUnmap(m.vas.root, m.Base, m.Base+mem.Va_t(m.Pages*mem.PGSIZE), m.vas.fs)
	m.vas.mu.Lock()
	m.vas.free = append(m.vas.free, span{base: m.Base, pages: m.Pages})
	m.vas.mu.Unlock()
}

type span struct {
	base  mem.Va_t
	pages int
}

// VAS is ProcVASA: exclusive ownership of the user half of one
// PhysPageTable, plus the bump/free-list allocator over it and the
// process's data-break pointer.
type VAS struct {
	mu sync.Mutex

	pt   *vm.PhysPageTable
	root mem.Frame
	fs   vm.FrameSource

	bump mem.Va_t
	free []span

	dataBreakBase mem.Va_t
	dataBreakPage int // pages currently committed past dataBreakBase
}

// New creates a VAS over a freshly allocated PhysPageTable.
func New(fs vm.FrameSource) (*VAS, bool) {
	pt, ok := vm.NewPhysPageTable(fs)
	if !ok {
		return nil, false
	}
	return &VAS{pt: pt, root: pt.Root, fs: fs, bump: userBase}, true
}

// reserve finds `pages` contiguous, currently-unmapped virtual pages,
// preferring a free-list span returned by an earlier Unmap before
// falling back to the bump pointer (gvisor's allocation order).
func (v *VAS) reserve(pages int) (mem.Va_t, bool) {
	for i, s := range v.free {
		if s.pages >= pages {
			base := s.base
			if s.pages == pages {
				v.free = append(v.free[:i], v.free[i+1:]...)
			} else {
				v.free[i] = span{base: s.base + mem.Va_t(pages*mem.PGSIZE), pages: s.pages - pages}
			}
			return base, true
		}
	}
	need := mem.Va_t(pages * mem.PGSIZE)
	if v.bump+need > userTop {
		return 0, false
	}
	base := v.bump
	v.bump += need
	return base, true
}

// MapNPagesTracked reserves an aligned range of `pages` pages with
// `guardPages` unmapped guard pages on each side, maps the interior
// with freshly zeroed frames, and returns a guard over it. addrHint is
// currently advisory only and ignored by the bump/free-list strategy.
func (v *VAS) MapNPagesTracked(addrHint mem.Va_t, pages, guardPages int, flags vm.Flags) (*TrackedMemoryMapping, bool) {
	if pages <= 0 {
		panic("vas: MapNPagesTracked(pages<=0)")
	}
	v.mu.Lock()
	total := pages + 2*guardPages
	base, ok := v.reserve(total)
	v.mu.Unlock()
	if !ok {
		return nil, false
	}
	mapBase := base + mem.Va_t(guardPages*mem.PGSIZE)
	if err := vm.AllocMap(v.root, mapBase, mapBase+mem.Va_t(pages*mem.PGSIZE), flags, v.fs); err != nil {
		v.mu.Lock()
		v.free = append(v.free, span{base: base, pages: total})
		v.mu.Unlock()
		return nil, false
	}
	return &TrackedMemoryMapping{vas: v, Base: mapBase, Pages: pages}, true
}

// MapFixed maps [from, to) at its own caller-chosen addresses rather
// than through the bump/free-list allocator, for the ELF loader: a
// segment's virtual address is fixed by the image itself, not chosen
// by this VAS. Unlike MapNPagesTracked the range is not wrapped in a
// TrackedMemoryMapping; the whole VAS (and every fixed mapping in it)
// is torn down together by Drop when the process exits.
func (v *VAS) MapFixed(from, to mem.Va_t, flags vm.Flags) error {
	return vm.AllocMap(v.root, from, to, flags, v.fs)
}

// InitDataBreak fixes the base of the per-process data break, normally
// called once by the ELF loader with the address immediately past the
// highest loaded segment.
func (v *VAS) InitDataBreak(base mem.Va_t) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dataBreakBase = mem.Round(base)
}

// ExtendDataBreak grows (delta > 0) or shrinks (delta < 0) the data
// break by delta pages, mapping or unmapping the affected range, and
// returns the new break address. Shrinking below zero pages committed
// is a no-op floor at the base.
func (v *VAS) ExtendDataBreak(delta int) (mem.Va_t, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	newPages := v.dataBreakPage + delta
	if newPages < 0 {
		newPages = 0
	}
	switch {
	case newPages > v.dataBreakPage:
		from := v.dataBreakBase + mem.Va_t(v.dataBreakPage*mem.PGSIZE)
		to := v.dataBreakBase + mem.Va_t(newPages*mem.PGSIZE)
		if err := vm.AllocMap(v.root, from, to, vm.FlagsOf(vm.WRITE, vm.USER_ACCESSIBLE, vm.DISABLE_EXEC), v.fs); err != nil {
			return v.dataBreakBase + mem.Va_t(v.dataBreakPage*mem.PGSIZE), false
		}
	case newPages < v.dataBreakPage:
		from := v.dataBreakBase + mem.Va_t(newPages*mem.PGSIZE)
		to := v.dataBreakBase + mem.Va_t(v.dataBreakPage*mem.PGSIZE)
		vm.FreeUnmap(v.root, from, to, v.fs)
	}
	v.dataBreakPage = newPages
	return v.dataBreakBase + mem.Va_t(newPages*mem.PGSIZE), true
}

// Root returns the physical root frame backing this VAS, for the
// scheduler to install on an address-space switch.
func (v *VAS) Root() mem.Frame {
	return v.root
}

// Translate exposes read-only address translation for the user-copy
// helpers in proc (TLS setup) and elf (segment loading).
func (v *VAS) Translate(page mem.Va_t) (mem.Frame, bool) {
	return vm.Translate(v.root, page)
}

// Drop tears down the entire VAS: every user mapping and the root
// table itself, via vm.PhysPageTable.Drop (shared higher half is left
// alone).
func (v *VAS) Drop() {
	v.pt.Drop()
}
