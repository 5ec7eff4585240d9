package buddy

import (
	"testing"
	"unsafe"
)

func hostMapper(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func TestAllocDeallocRoundtrip(t *testing.T) {
	a, err := New(hostMapper)
	if err != nil {
		t.Fatal(err)
	}
	p, err := a.Alloc(64)
	if err != nil {
		t.Fatal(err)
	}
	_, free0 := a.Stats()
	a.Dealloc(p)
	_, free1 := a.Stats()
	if free1 <= free0 {
		t.Fatalf("Dealloc did not return memory: free %d -> %d", free0, free1)
	}
}

func TestAllocSplitsSmallestSufficientBlock(t *testing.T) {
	a, err := New(hostMapper)
	if err != nil {
		t.Fatal(err)
	}
	p1, _ := a.Alloc(16)
	p2, _ := a.Alloc(16)
	if p1 == p2 {
		t.Fatal("two live allocations aliased")
	}
	// 16 bytes plus the header round up to a 32-byte block, so the
	// second allocation lands in the first one's 32-byte buddy.
	if d := uintptr(p2) - uintptr(p1); d != 32 {
		t.Fatalf("expected the second allocation 32 bytes past the first, got %d", d)
	}
}

func TestCoalesceMergesFreedBuddies(t *testing.T) {
	a, err := New(hostMapper)
	if err != nil {
		t.Fatal(err)
	}
	total0, free0 := a.Stats()
	var ptrs []unsafe.Pointer
	for i := 0; i < 8; i++ {
		p, err := a.Alloc(100)
		if err != nil {
			t.Fatal(err)
		}
		ptrs = append(ptrs, p)
	}
	for _, p := range ptrs {
		a.Dealloc(p)
	}
	total1, free1 := a.Stats()
	if total1 != total0 {
		t.Fatalf("total arena size changed: %d -> %d", total0, total1)
	}
	if free1 != free0 {
		t.Fatalf("coalescence did not fully reclaim the arena: free %d, want %d", free1, free0)
	}
}

func TestGrowsWhenArenaExhausted(t *testing.T) {
	a, err := New(hostMapper)
	if err != nil {
		t.Fatal(err)
	}
	before := len(a.segments)
	// allocate more than the initial ~512KiB arena can hold without
	// freeing anything, forcing growth.
	for i := 0; i < 600; i++ {
		if _, err := a.Alloc(1024); err != nil {
			t.Fatalf("Alloc #%d: %v", i, err)
		}
	}
	if len(a.segments) <= before {
		t.Fatal("expected the arena to grow under sustained allocation")
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a, _ := New(hostMapper)
	p, _ := a.Alloc(32)
	a.Dealloc(p)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.Dealloc(p)
}
