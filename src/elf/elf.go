// Package elf implements the consumed ELF-loader interface spec §6
// names ("given a PhysPageTable and a readable image, loads segments
// with appropriate entry flags, returns (data_break, optional
// master_tls_info)") plus a working in-package loader, since the spec treats the
// loader itself as an external collaborator whose contract, not
// implementation, is specified.
//
// The loader parses the image with the standard library's debug/elf
// package, the same dependency biscuit's own chentry.go uses for ELF
// header manipulation (biscuit's kernel-side loader predates this
// pack's retrieval, so chentry.go is the pack's only surviving ELF
// touchpoint to ground the dependency choice on).
package elf

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"defs"
	"mem"
	"proc"
	"vas"
	"vm"
)

// Result is what a successful Load reports back to the caller
// building the fresh process (spec §6's "(data_break, optional
// master_tls_info)").
type Result struct {
	Entry     mem.Va_t
	DataBreak mem.Va_t
	TLS       *proc.TLSTemplate // nil when the image carries no PT_TLS segment
}

// Loader is the consumed interface: given a VAS and a readable image,
// map its loadable segments and report where execution begins and the
// data break sits.
type Loader interface {
	Load(vasp *vas.VAS, image []byte) (Result, defs.Err_t)
}

// Default is the reference Loader. No other package in this tree
// imports elf, so no process-creation path calls it.
var Default Loader = StubLoader{}

// StubLoader loads ET_EXEC/ET_DYN little-endian 64-bit images (the
// amd64 and arm64 ports both produce position-independent or fixed
// executables; PIE base relocation is not performed here, matching
// spec's scope: the loader's presence, not a full dynamic linker, is
// what this kernel specifies).
type StubLoader struct{}

// Load implements Loader.
func (StubLoader) Load(vasp *vas.VAS, image []byte) (Result, defs.Err_t) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return Result{}, defs.EINVALPATH
	}
	if f.Class != elf.ELFCLASS64 || f.Data != elf.ELFDATA2LSB {
		return Result{}, defs.ENOTSUPPORTED
	}
	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return Result{}, defs.ENOTSUPPORTED
	}

	var highWaterMark mem.Va_t
	var tls *proc.TLSTemplate

	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_LOAD:
			top, errn := loadSegment(vasp, image, prog)
			if errn != 0 {
				return Result{}, errn
			}
			if top > highWaterMark {
				highWaterMark = top
			}
		case elf.PT_TLS:
			if prog.Filesz > uint64(len(image))-prog.Off {
				return Result{}, defs.EINVALOFFSET
			}
			tls = &proc.TLSTemplate{
				MasterAddr: masterAddr(image, prog.Off),
				MemSize:    uint(prog.Memsz),
				FileSize:   uint(prog.Filesz),
				Align:      uint(prog.Align),
			}
		}
	}

	if highWaterMark == 0 {
		return Result{}, defs.EINVALPATH
	}
	dataBreak := mem.Round(highWaterMark)
	vasp.InitDataBreak(dataBreak)

	return Result{Entry: mem.Va_t(f.Entry), DataBreak: dataBreak, TLS: tls}, 0
}

// loadSegment maps one PT_LOAD program header's page range with flags
// derived from its ELF permission bits and copies its file-backed
// bytes in; the remainder up to Memsz is bss and is already zero, the
// mapping having come back zero-filled from vm.AllocMap.
func loadSegment(vasp *vas.VAS, image []byte, prog *elf.Prog) (mem.Va_t, defs.Err_t) {
	if prog.Filesz > prog.Memsz {
		return 0, defs.EINVALPATH
	}
	if prog.Off+prog.Filesz > uint64(len(image)) {
		return 0, defs.EINVALOFFSET
	}

	from := mem.Trunc(mem.Va_t(prog.Vaddr))
	to := mem.Round(mem.Va_t(prog.Vaddr) + mem.Va_t(prog.Memsz))
	flags := segmentFlags(prog.Flags)
	if err := vasp.MapFixed(from, to, flags); err != nil {
		return 0, defs.ENOMEM
	}

	dst := mem.Va_t(prog.Vaddr)
	src := image[prog.Off : prog.Off+prog.Filesz]
	for len(src) > 0 {
		frame, ok := vasp.Translate(mem.Trunc(dst))
		if !ok {
			return 0, defs.EFAULT
		}
		page := frame.Bytes()
		off := int(mem.Offset(dst))
		n := len(page) - off
		if n > len(src) {
			n = len(src)
		}
		copy(page[off:off+n], src[:n])
		src = src[n:]
		dst += mem.Va_t(n)
	}

	return mem.Va_t(prog.Vaddr) + mem.Va_t(prog.Memsz), 0
}

// segmentFlags maps ELF PF_{R,W,X} bits onto this kernel's abstract
// page-table flags; pages are always USER_ACCESSIBLE since ELF
// loading only ever builds user-process address spaces.
func segmentFlags(pf elf.ProgFlag) vm.Flags {
	var bits []vm.Flag
	bits = append(bits, vm.USER_ACCESSIBLE)
	if pf&elf.PF_W != 0 {
		bits = append(bits, vm.WRITE)
	}
	if pf&elf.PF_X == 0 {
		bits = append(bits, vm.DISABLE_EXEC)
	}
	return vm.FlagsOf(bits...)
}

// masterAddr returns a stable pointer into image's backing array at
// off, for TLSTemplate.MasterAddr; the caller (this package's loader)
// guarantees image outlives the process via the ramfs-backed file
// content it was read from.
func masterAddr(image []byte, off uint64) uintptr {
	if off >= uint64(len(image)) {
		if len(image) == 0 {
			return 0
		}
		off = uint64(len(image)) - 1
	}
	return uintptr(unsafe.Pointer(&image[off]))
}
