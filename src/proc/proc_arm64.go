// TLS placement for the AArch64 ABI: TPIDR_EL0 points at the start of
// a small TCB whose first bytes are reserved for the runtime (the
// "DTV" slot here is simply the two UThreadLocalInfo fields) followed
// immediately by the TLS block itself, the inverse layout from amd64.
package proc

import (
	"unsafe"

	"defs"
	"mem"
	"vas"
)

func placeTLS(vasp *vas.VAS, mapping *vas.TrackedMemoryMapping, tmpl TLSTemplate) (UThreadLocalInfo, defs.Err_t) {
	frame, ok := vasp.Translate(mapping.Base)
	if !ok {
		return UThreadLocalInfo{}, defs.EFAULT
	}
	hdr := (*UThreadLocalInfo)(unsafe.Pointer(&frame.Bytes()[0]))

	hdrSize := mem.Va_t((unsafe.Sizeof(UThreadLocalInfo{}) + 7) &^ 7)
	tlsStart := mapping.Base + hdrSize
	limit := mapping.Base + mem.Va_t(mapping.Pages*mem.PGSIZE)

	if err := copyTLSBytes(vasp, tlsStart, limit, tmpl); err != 0 {
		return UThreadLocalInfo{}, err
	}

	*hdr = UThreadLocalInfo{TLSPtr: uintptr(tlsStart), TLSSize: tmpl.MemSize}
	return *hdr, 0
}
