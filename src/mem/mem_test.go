package mem

import "testing"

func freshAllocator(pages uint) *FrameAllocator {
	Init(Pa_t(0x10_0000), pages, []Region{{Start: Pa_t(0x10_0000), Pages: pages}})
	return &Frames
}

func TestAllocateDeallocateRoundtrip(t *testing.T) {
	a := freshAllocator(64)
	var got []Frame
	for i := 0; i < 64; i++ {
		f, ok := a.AllocateFrame()
		if !ok {
			t.Fatalf("unexpected OOM at frame %d", i)
		}
		got = append(got, f)
	}
	if _, ok := a.AllocateFrame(); ok {
		t.Fatalf("expected OOM once the pool is exhausted")
	}
	if n := a.MappedFrames(); n != 64 {
		t.Fatalf("MappedFrames = %d, want 64", n)
	}
	for _, f := range got {
		a.DeallocateFrame(f)
	}
	if n := a.MappedFrames(); n != 0 {
		t.Fatalf("MappedFrames = %d, want 0 after freeing everything", n)
	}
}

func TestAllocateAligned(t *testing.T) {
	a := freshAllocator(32)
	f, ok := a.AllocateAligned(4)
	if !ok {
		t.Fatal("expected aligned allocation to succeed")
	}
	idx := uint((f.Addr - a.base) / Pa_t(PGSIZE))
	if idx%4 != 0 {
		t.Fatalf("frame %d is not 4-page aligned", idx)
	}
}

func TestAllocateContiguousRun(t *testing.T) {
	a := freshAllocator(32)
	f, ok := a.AllocateContiguous(8, 8)
	if !ok {
		t.Fatal("expected contiguous allocation to succeed")
	}
	idx := uint((f.Addr - a.base) / Pa_t(PGSIZE))
	if idx%8 != 0 {
		t.Fatalf("run start %d is not 8-page aligned", idx)
	}
	for i := uint(0); i < 8; i++ {
		if !a.testBit(idx + i) {
			t.Fatalf("frame %d in the requested run was not marked allocated", idx+i)
		}
	}
}

func TestDoubleFreePanics(t *testing.T) {
	a := freshAllocator(4)
	f, _ := a.AllocateFrame()
	a.DeallocateFrame(f)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	a.DeallocateFrame(f)
}

func TestDeallocateUnownedFramePanics(t *testing.T) {
	a := freshAllocator(4)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on deallocating an unmanaged frame")
		}
	}()
	a.DeallocateFrame(Frame{Addr: Pa_t(0xdead0000)})
}

func TestOutOfMemoryLeavesStateConsistent(t *testing.T) {
	a := freshAllocator(2)
	a.AllocateFrame()
	a.AllocateFrame()
	if _, ok := a.AllocateFrame(); ok {
		t.Fatal("expected OOM")
	}
	if n := a.MappedFrames(); n != 2 {
		t.Fatalf("MappedFrames = %d, want 2 (failed alloc must not perturb state)", n)
	}
}
