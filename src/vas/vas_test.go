package vas

import (
	"testing"
	"unsafe"

	"mem"
	"vm"
)

type hostFrames struct {
	next  mem.Pa_t
	limit mem.Pa_t
}

// newHostFrames backs AllocateFrame with real host memory carved from
// one Go slice, with HHDM set to 0 (identity map) — the simplification biscuit's own
// hosted unit tests use for Dmap.
func newHostFrames(npages int) *hostFrames {
	buf := make([]byte, (npages+1)*mem.PGSIZE)
	base := mem.Pa_t(uintptr(unsafe.Pointer(&buf[0])))
	mem.SetHhdm(0)
	aligned := (base + mem.Pa_t(mem.PGSIZE-1)) &^ mem.Pa_t(mem.PGSIZE-1)
	return &hostFrames{next: aligned, limit: base + mem.Pa_t(len(buf))}
}

func (h *hostFrames) AllocateFrame() (mem.Frame, bool) {
	if h.next+mem.Pa_t(mem.PGSIZE) > h.limit {
		return mem.Frame{}, false
	}
	f := mem.Frame{Addr: h.next}
	h.next += mem.Pa_t(mem.PGSIZE)
	return f, true
}

func (h *hostFrames) DeallocateFrame(mem.Frame) {}

func newVAS(t *testing.T) *VAS {
	t.Helper()
	fs := newHostFrames(4096)
	vm.KernelHigherHalf = [512]uint64{}
	v, ok := New(fs)
	if !ok {
		t.Fatal("New: out of frames")
	}
	return v
}

func TestMapNPagesTrackedRespectsGuardPages(t *testing.T) {
	v := newVAS(t)
	m, ok := v.MapNPagesTracked(0, 4, 1, vm.FlagsOf(vm.WRITE, vm.USER_ACCESSIBLE))
	if !ok {
		t.Fatal("expected mapping to succeed")
	}
	if _, mapped := v.Translate(m.Base - mem.Va_t(mem.PGSIZE)); mapped {
		t.Fatal("low guard page must not be mapped")
	}
	if _, mapped := v.Translate(m.Base + mem.Va_t(m.Pages*mem.PGSIZE)); mapped {
		t.Fatal("high guard page must not be mapped")
	}
	if _, mapped := v.Translate(m.Base); !mapped {
		t.Fatal("interior page must be mapped")
	}
}

func TestUnmapReturnsSpaceToFreeList(t *testing.T) {
	v := newVAS(t)
	m, ok := v.MapNPagesTracked(0, 8, 0, vm.FlagsOf(vm.WRITE))
	if !ok {
		t.Fatal("expected mapping to succeed")
	}
	base := m.Base
	m.Unmap()
	if _, mapped := v.Translate(base); mapped {
		t.Fatal("page must be unmapped after Unmap")
	}
	m2, ok := v.MapNPagesTracked(0, 8, 0, vm.FlagsOf(vm.WRITE))
	if !ok {
		t.Fatal("expected reuse of freed span to succeed")
	}
	if m2.Base != base {
		t.Fatalf("expected free-list reuse at %#x, got %#x", base, m2.Base)
	}
}

func TestExtendDataBreakGrowsAndShrinks(t *testing.T) {
	v := newVAS(t)
	v.InitDataBreak(mem.Va_t(0x40_0000))
	b1, ok := v.ExtendDataBreak(4)
	if !ok {
		t.Fatal("expected growth to succeed")
	}
	if _, mapped := v.Translate(b1 - mem.Va_t(mem.PGSIZE)); !mapped {
		t.Fatal("expected last committed page to be mapped")
	}
	b2, ok := v.ExtendDataBreak(-2)
	if !ok {
		t.Fatal("expected shrink to succeed")
	}
	if b2 >= b1 {
		t.Fatalf("expected break to shrink, got %#x -> %#x", b1, b2)
	}
	if _, mapped := v.Translate(b2); mapped {
		t.Fatal("page past the shrunk break must be unmapped")
	}
}

func TestExtendDataBreakFloorsAtZero(t *testing.T) {
	v := newVAS(t)
	v.InitDataBreak(mem.Va_t(0x80_0000))
	b, ok := v.ExtendDataBreak(-100)
	if !ok {
		t.Fatal("expected shrink-past-zero to still succeed, floored at base")
	}
	if b != mem.Va_t(0x80_0000) {
		t.Fatalf("expected floor at base, got %#x", b)
	}
}
