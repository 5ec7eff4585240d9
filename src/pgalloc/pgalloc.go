// Package pgalloc implements the large contiguous virtual allocator:
// a bitmap over a dedicated large-heap virtual range, one bit per 4
// KiB page (spec §4.4). Containers that need to live in this region
// use Allocator as a standard Go allocator surface (Alloc/Free over
// byte counts), the same role biscuit's page allocator plays for its
// big kernel data structures.
package pgalloc

import (
	"sync"

	"mem"
	"vm"
)

const wordBits = 64

// Mapper plumbs pgalloc through the page-table engine: Map installs n
// freshly allocated frames starting at v, Unmap tears the same range
// down and returns its frames. Kept as an interface so tests can swap
// in a host-backed double the way buddy.Mapper does.
type Mapper interface {
	Map(v mem.Va_t, pages int, flags vm.Flags) error
	Unmap(v mem.Va_t, pages int)
}

// Allocator is a bitmap allocator over [Base, Base+Pages*PGSIZE).
type Allocator struct {
	mu     sync.Mutex
	mapper Mapper
	base   mem.Va_t
	pages  uint
	bitmap []uint64

	nextSmall uint // next word to probe for a small (<wordBits page) request
	nextLarge uint // next word to probe for a large (>=wordBits page) request
}

// New creates an allocator over a virtual window of npages pages
// starting at base. Every bit starts clear (free).
func New(mapper Mapper, base mem.Va_t, npages uint) *Allocator {
	words := (npages + wordBits - 1) / wordBits
	return &Allocator{
		mapper: mapper,
		base:   base,
		pages:  npages,
		bitmap: make([]uint64, words),
	}
}

func (a *Allocator) testBit(i uint) bool {
	return a.bitmap[i/wordBits]&(1<<(i%wordBits)) != 0
}

func (a *Allocator) setRange(start, n uint) {
	for i := start; i < start+n; i++ {
		a.bitmap[i/wordBits] |= 1 << (i % wordBits)
	}
}

func (a *Allocator) clearRange(start, n uint) {
	for i := start; i < start+n; i++ {
		a.bitmap[i/wordBits] &^= 1 << (i % wordBits)
	}
}

// allocSmall scans for a contiguous bit-run of n (< wordBits) pages
// inside a single bitmap word.
func (a *Allocator) allocSmall(n uint) (uint, bool) {
	mask := uint64(1<<n) - 1
	nwords := uint(len(a.bitmap))
	for i := uint(0); i < nwords; i++ {
		w := (a.nextSmall + i) % nwords
		word := a.bitmap[w]
		for shift := uint(0); shift+n <= wordBits; shift++ {
			if word&(mask<<shift) == 0 {
				a.nextSmall = w
				return w*wordBits + shift, true
			}
		}
	}
	return 0, false
}

// allocLarge scans for a run of fully-zero words sufficient to cover
// n (>= wordBits) pages, then takes the prefix it needs.
func (a *Allocator) allocLarge(n uint) (uint, bool) {
	needWords := (n + wordBits - 1) / wordBits
	nwords := uint(len(a.bitmap))
	run := uint(0)
	start := uint(0)
	for i := uint(0); i < nwords; i++ {
		w := (a.nextLarge + i) % nwords
		if a.bitmap[w] == 0 {
			if run == 0 {
				start = w
			}
			run++
			if run >= needWords {
				a.nextLarge = (start + needWords) % nwords
				return start * wordBits, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

// Alloc reserves n contiguous pages, maps them with freshly allocated
// frames, and returns the base virtual address.
func (a *Allocator) Alloc(n uint, flags vm.Flags) (mem.Va_t, bool) {
	if n == 0 {
		panic("pgalloc: Alloc(0)")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var start uint
	var ok bool
	if n < wordBits {
		start, ok = a.allocSmall(n)
	} else {
		start, ok = a.allocLarge(n)
	}
	if !ok || start+n > a.pages {
		return 0, false
	}
	v := a.base + mem.Va_t(start)*mem.Va_t(mem.PGSIZE)
	if err := a.mapper.Map(v, int(n), flags); err != nil {
		return 0, false
	}
	a.setRange(start, n)
	return v, true
}

// Free unmaps and returns the n pages starting at v, clearing their
// bits and freeing their frames.
func (a *Allocator) Free(v mem.Va_t, n uint) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := uint((v - a.base) / mem.Va_t(mem.PGSIZE))
	a.mapper.Unmap(v, int(n))
	a.clearRange(start, n)
}

// AllocBytes rounds size up to a whole number of pages and allocates
// them, the entry point containers use to live in this region.
func (a *Allocator) AllocBytes(size int, flags vm.Flags) (mem.Va_t, bool) {
	n := uint((size + mem.PGSIZE - 1) / mem.PGSIZE)
	return a.Alloc(n, flags)
}

// Stats reports the window's total and free page counts, the same
// shape buddy.Allocator.Stats exposes, so the two can be reported
// side by side for the sys:/bin/meminfo introspection path.
func (a *Allocator) Stats() (total, free uint) {
	a.mu.Lock()
	defer a.mu.Unlock()
	total = a.pages
	for i := uint(0); i < a.pages; i++ {
		if !a.testBit(i) {
			free++
		}
	}
	return total, free
}
