package vm

import (
	"testing"
	"unsafe"

	"golang.org/x/sys/unix"

	"mem"
)

// hostFrames is a FrameSource for hosted tests: it backs each "frame"
// with a real anonymous mmap'd page (genuinely page-aligned, unlike
// an over-allocate-and-mask Go slice trick) and treats its address as
// the physical address, with Hhdm = 0 (identity map), exactly the
// simplification biscuit's own hosted unit tests use for Dmap.
type hostFrames struct {
	pins [][]byte
}

func newHostFrames() *hostFrames {
	mem.SetHhdm(0)
	return &hostFrames{}
}

func (h *hostFrames) AllocateFrame() (mem.Frame, bool) {
	buf, err := unix.Mmap(-1, 0, mem.PGSIZE, ProtBits(FlagsOf(WRITE)), unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return mem.Frame{}, false
	}
	h.pins = append(h.pins, buf)
	return mem.Frame{Addr: mem.Pa_t(uintptr(unsafe.Pointer(&buf[0])))}, true
}

func (h *hostFrames) DeallocateFrame(mem.Frame) {
	// hosted test doubles never reuse frames; munmap happens when the
	// test's pins slice goes out of scope is not automatic in Go, but
	// leaking a handful of pages for the duration of a test process is
	// harmless and matches the prior GC-reclaim simplification.
}

func TestMapToThenTranslate(t *testing.T) {
	fs := newHostFrames()
	pt, ok := NewPhysPageTable(fs)
	if !ok {
		t.Fatal("NewPhysPageTable failed")
	}
	target, _ := fs.AllocateFrame()
	page := mem.Va_t(0x0000_1000)
	if err := MapTo(pt.Root, page, target, FlagsOf(WRITE, USER_ACCESSIBLE), fs); err != nil {
		t.Fatalf("MapTo: %v", err)
	}
	got, ok := Translate(pt.Root, page)
	if !ok || got.Addr != target.Addr {
		t.Fatalf("Translate = %v, %v; want %v, true", got, ok, target)
	}
}

func TestMapToAlreadyMapped(t *testing.T) {
	fs := newHostFrames()
	pt, _ := NewPhysPageTable(fs)
	page := mem.Va_t(0x2000)
	f1, _ := fs.AllocateFrame()
	f2, _ := fs.AllocateFrame()
	if err := MapTo(pt.Root, page, f1, FlagsOf(WRITE), fs); err != nil {
		t.Fatal(err)
	}
	if err := MapTo(pt.Root, page, f2, FlagsOf(WRITE), fs); err != ErrAlreadyMapped {
		t.Fatalf("MapTo over an existing mapping = %v, want ErrAlreadyMapped", err)
	}
}

func TestUnmapIdempotent(t *testing.T) {
	fs := newHostFrames()
	pt, _ := NewPhysPageTable(fs)
	page := mem.Va_t(0x3000)
	if _, ok := Unmap(pt.Root, page, fs); ok {
		t.Fatal("Unmap on a never-mapped page should report wasMapped=false")
	}
	f, _ := MapZeroed(pt.Root, page, FlagsOf(WRITE), fs)
	if f.Addr == 0 {
		t.Fatal("MapZeroed returned zero frame")
	}
	if _, ok := Unmap(pt.Root, page, fs); !ok {
		t.Fatal("Unmap on a mapped page should report wasMapped=true")
	}
	if _, ok := Unmap(pt.Root, page, fs); ok {
		t.Fatal("second Unmap should be a no-op (idempotent)")
	}
}

func TestAllocMapRange(t *testing.T) {
	fs := newHostFrames()
	pt, _ := NewPhysPageTable(fs)
	from := mem.Va_t(0x10000)
	to := from + mem.Va_t(4*mem.PGSIZE)
	if err := AllocMap(pt.Root, from, to, FlagsOf(WRITE), fs); err != nil {
		t.Fatalf("AllocMap: %v", err)
	}
	for v := from; v < to; v += mem.Va_t(mem.PGSIZE) {
		if _, ok := Translate(pt.Root, v); !ok {
			t.Fatalf("page %#x not mapped after AllocMap", v)
		}
	}
	FreeUnmap(pt.Root, from, to, fs)
	for v := from; v < to; v += mem.Va_t(mem.PGSIZE) {
		if _, ok := Translate(pt.Root, v); ok {
			t.Fatalf("page %#x still mapped after FreeUnmap", v)
		}
	}
}

// limitedFrames fails AllocateFrame once a budget is exhausted, used
// to exercise AllocMap's rollback-on-partial-failure contract (P2).
type limitedFrames struct {
	*hostFrames
	budget int
}

func (l *limitedFrames) AllocateFrame() (mem.Frame, bool) {
	if l.budget <= 0 {
		return mem.Frame{}, false
	}
	l.budget--
	return l.hostFrames.AllocateFrame()
}

func TestAllocMapRollsBackOnPartialFailure(t *testing.T) {
	base := newHostFrames()
	// one frame for the root table, one leaf frame plus three
	// intermediate tables for the first page, one leaf frame for the
	// second, then OOM on the third of a four-page request.
	fs := &limitedFrames{hostFrames: base, budget: 6}
	pt, ok := NewPhysPageTable(fs)
	if !ok {
		t.Fatal("NewPhysPageTable should have succeeded within budget")
	}
	from := mem.Va_t(0x20000)
	to := from + mem.Va_t(4*mem.PGSIZE)
	if err := AllocMap(pt.Root, from, to, FlagsOf(WRITE), fs); err == nil {
		t.Fatal("expected AllocMap to fail under a tight frame budget")
	}
	for v := from; v < to; v += mem.Va_t(mem.PGSIZE) {
		if _, ok := Translate(pt.Root, v); ok {
			t.Fatalf("page %#x left mapped after a rolled-back AllocMap", v)
		}
	}
}

func TestPhysPageTableDropPreservesHigherHalf(t *testing.T) {
	fs := newHostFrames()
	kernelPage, _ := fs.AllocateFrame()
	KernelHigherHalf[halfSplit] = amd64Arch{}.encode(kernelPage.Addr, FlagsOf(WRITE), true)

	pt, _ := NewPhysPageTable(fs)
	userPage := mem.Va_t(0x30000)
	MapZeroed(pt.Root, userPage, FlagsOf(WRITE, USER_ACCESSIBLE), fs)

	pt.Drop()

	root := tableAt(pt.Root)
	if root.Entries[halfSplit] == 0 {
		t.Fatal("Drop must not clear the shared higher half")
	}
}
