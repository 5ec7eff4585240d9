// Package vm implements the architecture-neutral page-table engine
// (spec §4.2): stateless operations over a 4-level PageTable that
// every architecture port maps to identical semantics.
package vm

import (
	"mem"

	"golang.org/x/sys/unix"
)

// Flag is an architecture-neutral page permission/attribute bit. Each
// architecture translates the abstract set to its native PTE bits;
// see pagetable_amd64.go and pagetable_arm64.go.
type Flag uint

const (
	WRITE              Flag = 1 << iota /// writable
	USER_ACCESSIBLE                     /// accessible from ring 3 / EL0
	DISABLE_EXEC                        /// no-execute
	DEVICE_UNCACHEABLE                  /// MMIO: no caching, strongly ordered
	FRAMEBUFFER_CACHED                  /// write-combining framebuffer memory
)

// Flags is a set of Flag bits.
type Flags uint

func (f Flags) Has(bit Flag) bool { return uint(f)&uint(bit) != 0 }

func FlagsOf(bits ...Flag) Flags {
	var f Flags
	for _, b := range bits {
		f |= Flags(b)
	}
	return f
}

// ProtBits translates an abstract Flags set to golang.org/x/sys/unix's
// PROT_* constants, the canonical mmap/mprotect protection-bit values
// the abstract {WRITE, USER_ACCESSIBLE, DISABLE_EXEC, ...} set is
// modeled after (a mapping is always at least readable once present).
// Hosted test harnesses use this to back frames with real mmap'd,
// page-aligned memory instead of an over-allocate-and-mask trick.
func ProtBits(f Flags) int {
	prot := unix.PROT_READ
	if f.Has(WRITE) {
		prot |= unix.PROT_WRITE
	}
	if !f.Has(DISABLE_EXEC) {
		prot |= unix.PROT_EXEC
	}
	return prot
}

// arch abstracts the two supported architecture ports. Both implement
// identical PageTable semantics (spec §4.2); only the native bit
// layout and the cache/TLB flush primitive differ.
type arch interface {
	// encode translates abstract Flags plus the present bit into a
	// native PTE value carrying phys as its address field.
	encode(phys mem.Pa_t, f Flags, present bool) uint64
	// decode extracts the physical address and present bit from a
	// native PTE value.
	decode(pte uint64) (phys mem.Pa_t, present bool)
	// flush performs the architecture's cache/TLB flush for a single
	// page, or the whole TLB when wholeRange is set.
	flush(page mem.Va_t, wholeRange bool)
}

// Arch selects the running architecture's PTE encoding. Nothing in
// this tree reassigns it; it defaults to the amd64 port so package
// tests that don't call a selector still exercise real encode/decode
// logic.
var Arch arch = amd64Arch{}
