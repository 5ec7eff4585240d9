package vm

import "golang.org/x/arch/x86/x86asm"

// DecodeFaultingInstruction decodes the instruction at the start of
// code (typically a handful of bytes copied from the faulting RIP by
// the trap handler, out of this core's scope per spec §1) and renders
// it in GNU syntax for page-fault diagnostic logging. It never panics
// on malformed input; an undecodable sequence is reported as such
// rather than crashing the fault handler that is already in a bad
// spot.
func DecodeFaultingInstruction(code []byte, rip uint64) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return "<undecodable instruction>"
	}
	return x86asm.GNUSyntax(inst, rip, nil)
}
