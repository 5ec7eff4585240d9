// TLS placement for the amd64 ABI: the variant-II layout glibc/System
// V x86_64 use, where the thread pointer (%fs base) points at the end
// of the TLS block and UThreadLocalInfo is written at the thread
// pointer itself, just past the block, reachable at %fs:0.
package proc

import (
	"unsafe"

	"defs"
	"mem"
	"vas"
)

func placeTLS(vasp *vas.VAS, mapping *vas.TrackedMemoryMapping, tmpl TLSTemplate) (UThreadLocalInfo, defs.Err_t) {
	limit := mapping.Base + mem.Va_t(mapping.Pages*mem.PGSIZE)
	if err := copyTLSBytes(vasp, mapping.Base, limit, tmpl); err != 0 {
		return UThreadLocalInfo{}, err
	}

	infoOff := uint(tmpl.MemSize)
	infoOff = (infoOff + 7) &^ 7 // align the header to 8 bytes
	tlsEnd := mapping.Base + mem.Va_t(infoOff)

	frame, ok := vasp.Translate(mem.Trunc(tlsEnd))
	if !ok {
		return UThreadLocalInfo{}, defs.EFAULT
	}
	hdr := (*UThreadLocalInfo)(unsafe.Pointer(&frame.Bytes()[mem.Offset(tlsEnd)]))
	*hdr = UThreadLocalInfo{TLSPtr: uintptr(tlsEnd), TLSSize: tmpl.MemSize}
	return *hdr, 0
}
