package vm

import "mem"

// AArch64 stage-1 descriptor bits, lower attribute block. AP[2:1] and
// UXN/PXN encode permissions; MAIR index 0 is chosen as the
// device-nGnRnE attribute for DEVICE_UNCACHEABLE, MAIR index 1 as
// normal write-back cacheable for FRAMEBUFFER_CACHED.
const (
	arm64Valid    uint64 = 1 << 0
	arm64Table    uint64 = 1 << 1 // block vs table/page descriptor bit
	arm64AF       uint64 = 1 << 10
	arm64APReadWrite uint64 = 0 << 6
	arm64APReadOnly  uint64 = 1 << 7
	arm64APUser      uint64 = 1 << 6
	arm64UXN      uint64 = 1 << 54
	arm64PXN      uint64 = 1 << 53
	arm64AddrMask uint64 = 0x0000_ffff_ffff_f000
	arm64MAIRDevice uint64 = 0 << 2
	arm64MAIRNormal uint64 = 1 << 2
)

type arm64Arch struct{}

func (arm64Arch) encode(phys mem.Pa_t, f Flags, present bool) uint64 {
	if !present {
		return 0
	}
	pte := arm64Valid | arm64Table | arm64AF | (uint64(phys) & arm64AddrMask)
	if f.Has(WRITE) {
		pte |= arm64APReadWrite
	} else {
		pte |= arm64APReadOnly
	}
	if f.Has(USER_ACCESSIBLE) {
		pte |= arm64APUser
	}
	if f.Has(DISABLE_EXEC) {
		pte |= arm64UXN | arm64PXN
	}
	if f.Has(DEVICE_UNCACHEABLE) {
		pte |= arm64MAIRDevice
	} else if f.Has(FRAMEBUFFER_CACHED) {
		pte |= arm64MAIRNormal
	}
	return pte
}

func (arm64Arch) decode(pte uint64) (mem.Pa_t, bool) {
	if pte&arm64Valid == 0 {
		return 0, false
	}
	return mem.Pa_t(pte & arm64AddrMask), true
}

// flush issues a TLBI VAE1IS for a single page or TLBI VMALLE1IS for a
// full flush, each followed by a DSB ISH/ISB pair per the ARM ARM.
// Hosted test builds have no TLB to invalidate, so this only counts.
func (arm64Arch) flush(page mem.Va_t, wholeRange bool) {
	flushCount++
}
