package mem

import "unsafe"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t is an opaque physical address. Mixing Pa_t and Va_t is a
/// static error: every component consumes addresses through these two
/// types and nothing else.
type Pa_t uintptr

/// Va_t is an opaque virtual address.
type Va_t uintptr

/// Bytepg_t is a byte-addressed page, the same shape biscuit's
/// Bytepg_t uses for raw page access.
type Bytepg_t [PGSIZE]uint8

// Hhdm is the fixed higher-half-direct-map offset supplied by the
// bootloader: phys + Hhdm is a valid kernel virtual address for the
// full physical range. It is populated once during boot and is
// read-only thereafter.
var Hhdm Va_t

// hhdmSet records that SetHhdm has run; an offset of 0 (identity map)
// is a valid value, so Hhdm itself cannot serve as the flag.
var hhdmSet bool

/// SetHhdm records the bootloader-supplied HHDM offset. Called exactly
/// once, before any Frame is borrowed.
func SetHhdm(off Va_t) {
	Hhdm = off
	hhdmSet = true
}

/// Round down v to the nearest multiple of PGSIZE.
func Trunc(v Va_t) Va_t {
	return Va_t(uintptr(v) &^ uintptr(PGSIZE-1))
}

/// Round up v to the nearest multiple of PGSIZE.
func Round(v Va_t) Va_t {
	return Trunc(v + Va_t(PGSIZE-1))
}

/// Offset returns the in-page offset of a virtual address.
func Offset(v Va_t) uintptr {
	return uintptr(v) & uintptr(PGSIZE-1)
}

/// Frame is a 4 KiB physically contiguous region identified by its
/// start physical address.
type Frame struct {
	Addr Pa_t
}

/// KVaddr borrows the frame as a kernel-virtual address via the HHDM;
/// zero-cost since the bootloader's identity map already covers it.
func (f Frame) KVaddr() Va_t {
	if !hhdmSet {
		panic("mem: HHDM not initialized")
	}
	return Va_t(uintptr(f.Addr) + uintptr(Hhdm))
}

/// Bytes borrows the frame as a byte slice into the HHDM-mapped copy.
func (f Frame) Bytes() []uint8 {
	p := unsafe.Pointer(uintptr(f.KVaddr()))
	return (*Bytepg_t)(p)[:]
}

/// FrameAs borrows the frame as a typed pointer T into the HHDM-mapped
/// copy, for zero-cost kernel access to structured page contents
/// (page tables, buddy arena headers, ...).
func FrameAs[T any](f Frame) *T {
	return (*T)(unsafe.Pointer(uintptr(f.KVaddr())))
}

/// Page is a 4 KiB virtual region identified by its start virtual
/// address.
type Page struct {
	Addr Va_t
}

/// PageRange is an iterator over [From, To) in page-size steps.
type PageRange struct {
	From, To Va_t
}

/// Pages returns the number of pages spanned by the range.
func (r PageRange) Pages() int {
	return int((uintptr(r.To) - uintptr(r.From)) / uintptr(PGSIZE))
}

/// Iter calls f for every page in the range, in ascending order.
func (r PageRange) Iter(f func(Page)) {
	for v := r.From; v < r.To; v += Va_t(PGSIZE) {
		f(Page{Addr: v})
	}
}
