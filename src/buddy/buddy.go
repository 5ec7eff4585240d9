// Package buddy implements the kernel's small-object allocator: a
// self-contained buddy allocator initialised with an arena of about
// 512 KiB and grown on demand by mapping additional power-of-two
// virtual ranges (spec §4.3).
package buddy

import (
	"sync"
	"unsafe"
)

const (
	initialArenaBytes = 512 * 1024
	minOrder           = 5 // 32-byte minimum block, enough for the header plus a small payload
	headerSize         = int(unsafe.Sizeof(blockHeader{}))
)

// blockHeader is the in-band header at the start of every block:
// {free, size} as spec §4.3 names it, size expressed as an order
// (log2 of the block's total size including this header).
type blockHeader struct {
	free  bool
	order uint8
}

// Mapper grows the arena by mapping a fresh, zeroed, power-of-two
// sized virtual range and returning it as a byte slice backed by
// stable storage (never reallocated — buddy blocks hold pointers into
// it for their lifetime). The real kernel implements this against the
// vm page-table engine; tests supply a plain heap-backed mapper.
type Mapper func(sizeBytes int) ([]byte, error)

type segment struct {
	mem []byte
}

// Allocator is the kernel's small-object heap. One mutex guards the
// whole allocator; callers holding interrupt-sensitive locks must not
// allocate (spec §4.3 concurrency note).
type Allocator struct {
	mu       sync.Mutex
	mapper   Mapper
	segments []*segment
}

// New creates an allocator with an initial ~512 KiB arena obtained
// from mapper.
func New(mapper Mapper) (*Allocator, error) {
	a := &Allocator{mapper: mapper}
	if err := a.grow(initialArenaBytes); err != nil {
		return nil, err
	}
	return a, nil
}

func orderOf(size int) uint8 {
	o := uint8(minOrder)
	for (1 << o) < size {
		o++
	}
	return o
}

// grow maps a new power-of-two range sized to fit at least minBytes
// and appends it as a single free block in a segment of its own. The
// block's address is whatever base the mapper returns (the mapper is
// given only a size), not the next global power-of-two boundary —
// the choice the open question in spec §9 leaves to implementers.
func (a *Allocator) grow(minBytes int) error {
	order := orderOf(minBytes)
	size := 1 << order
	mem, err := a.mapper(size)
	if err != nil {
		return err
	}
	hdr := (*blockHeader)(unsafe.Pointer(&mem[0]))
	*hdr = blockHeader{free: true, order: order}
	a.segments = append(a.segments, &segment{mem: mem})
	return nil
}

func headerAt(mem []byte, off int) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&mem[off]))
}

// findFit scans every segment for the smallest free block whose order
// is >= need. Returns the owning segment and byte offset.
func (a *Allocator) findFit(need uint8) (*segment, int, bool) {
	var bestSeg *segment
	bestOff := -1
	var bestOrder uint8 = 255
	for _, seg := range a.segments {
		off := 0
		for off < len(seg.mem) {
			h := headerAt(seg.mem, off)
			if h.free && h.order >= need && h.order < bestOrder {
				bestSeg, bestOff, bestOrder = seg, off, h.order
			}
			off += 1 << h.order
		}
	}
	return bestSeg, bestOff, bestSeg != nil
}

// split repeatedly halves the block at off until it matches need,
// threading the unused right half back in as a free block of the
// next-smaller order.
func split(seg *segment, off int, need uint8) {
	h := headerAt(seg.mem, off)
	for h.order > need {
		h.order--
		half := 1 << h.order
		right := headerAt(seg.mem, off+half)
		*right = blockHeader{free: true, order: h.order}
	}
}

// Alloc rounds (size + header) up to the next power of two, splits
// the smallest sufficient free block, and returns the payload
// pointer. It grows the arena and retries once if no block fits after
// a full coalescence pass.
func (a *Allocator) Alloc(size int) (unsafe.Pointer, error) {
	if size <= 0 {
		panic("buddy: Alloc(<=0)")
	}
	need := orderOf(size + headerSize)

	a.mu.Lock()
	defer a.mu.Unlock()

	seg, off, ok := a.findFit(need)
	if !ok {
		a.coalesce()
		seg, off, ok = a.findFit(need)
	}
	if !ok {
		if err := a.grow(1 << need); err != nil {
			return nil, err
		}
		seg, off, ok = a.findFit(need)
		if !ok {
			panic("buddy: grow succeeded but no fit found")
		}
	}
	split(seg, off, need)
	h := headerAt(seg.mem, off)
	h.free = false
	return unsafe.Pointer(&seg.mem[off+headerSize]), nil
}

// Dealloc marks the block owning ptr free and runs a full coalescence
// pass across every segment.
func (a *Allocator) Dealloc(ptr unsafe.Pointer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seg, off := a.find(ptr)
	if seg == nil {
		panic("buddy: Dealloc of pointer not owned by this allocator")
	}
	h := headerAt(seg.mem, off)
	if h.free {
		panic("buddy: double free")
	}
	h.free = true
	a.coalesce()
}

func (a *Allocator) find(ptr unsafe.Pointer) (*segment, int) {
	target := uintptr(ptr) - uintptr(headerSize)
	for _, seg := range a.segments {
		base := uintptr(unsafe.Pointer(&seg.mem[0]))
		if target >= base && target < base+uintptr(len(seg.mem)) {
			return seg, int(target - base)
		}
	}
	return nil, 0
}

// coalesce runs to a fixed point: any time two adjacent free blocks of
// the same order form a properly aligned buddy pair, they merge into
// one block of the next order up.
func (a *Allocator) coalesce() {
	for _, seg := range a.segments {
		for {
			if !coalescePass(seg) {
				break
			}
		}
	}
}

func coalescePass(seg *segment) bool {
	off := 0
	merged := false
	for off < len(seg.mem) {
		h := headerAt(seg.mem, off)
		size := 1 << h.order
		if h.free && off+2*size <= len(seg.mem) {
			buddyOff := off ^ size
			if buddyOff == off+size { // this block is the left half of a pair
				b := headerAt(seg.mem, buddyOff)
				if b.free && b.order == h.order {
					h.order++
					merged = true
					off += 1 << h.order
					continue
				}
			}
		}
		off += size
	}
	return merged
}

// Stats reports the allocator's total and free bytes across every
// segment, used by the sys:/bin/meminfo introspection path.
func (a *Allocator) Stats() (total, free int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, seg := range a.segments {
		total += len(seg.mem)
		off := 0
		for off < len(seg.mem) {
			h := headerAt(seg.mem, off)
			if h.free {
				free += 1 << h.order
			}
			off += 1 << h.order
		}
	}
	return total, free
}
