package pgalloc

import (
	"testing"

	"mem"
	"vm"
)

type fakeMapper struct {
	mapped map[mem.Va_t]int
}

func newFakeMapper() *fakeMapper {
	return &fakeMapper{mapped: make(map[mem.Va_t]int)}
}

func (f *fakeMapper) Map(v mem.Va_t, pages int, flags vm.Flags) error {
	f.mapped[v] = pages
	return nil
}

func (f *fakeMapper) Unmap(v mem.Va_t, pages int) {
	delete(f.mapped, v)
}

func TestAllocSmallRun(t *testing.T) {
	m := newFakeMapper()
	a := New(m, mem.Va_t(0x1000_0000), 4096)
	v, ok := a.Alloc(3, vm.FlagsOf(vm.WRITE))
	if !ok {
		t.Fatal("expected small allocation to succeed")
	}
	if pages := m.mapped[v]; pages != 3 {
		t.Fatalf("mapper saw %d pages, want 3", pages)
	}
}

func TestAllocLargeRun(t *testing.T) {
	m := newFakeMapper()
	a := New(m, mem.Va_t(0x2000_0000), 4096)
	v, ok := a.Alloc(200, vm.FlagsOf(vm.WRITE))
	if !ok {
		t.Fatal("expected large allocation to succeed")
	}
	if pages := m.mapped[v]; pages != 200 {
		t.Fatalf("mapper saw %d pages, want 200", pages)
	}
}

func TestFreeReclaimsSpace(t *testing.T) {
	m := newFakeMapper()
	a := New(m, mem.Va_t(0x3000_0000), 128)
	v, ok := a.Alloc(128, vm.FlagsOf(vm.WRITE))
	if !ok {
		t.Fatal("expected full-window allocation to succeed")
	}
	if _, ok := a.Alloc(1, vm.FlagsOf(vm.WRITE)); ok {
		t.Fatal("expected OOM once the window is fully allocated")
	}
	a.Free(v, 128)
	if _, ok := a.Alloc(128, vm.FlagsOf(vm.WRITE)); !ok {
		t.Fatal("expected reallocation to succeed after Free")
	}
}

func TestAllocBytesRoundsUpToPages(t *testing.T) {
	m := newFakeMapper()
	a := New(m, mem.Va_t(0x4000_0000), 16)
	v, ok := a.AllocBytes(mem.PGSIZE+1, vm.FlagsOf(vm.WRITE))
	if !ok {
		t.Fatal("expected AllocBytes to succeed")
	}
	if pages := m.mapped[v]; pages != 2 {
		t.Fatalf("AllocBytes mapped %d pages, want 2", pages)
	}
}
