package vm

import "testing"

func TestDecodeFaultingInstructionValid(t *testing.T) {
	// 48 89 e5 == mov rbp, rsp
	code := []byte{0x48, 0x89, 0xe5}
	got := DecodeFaultingInstruction(code, 0x1000)
	if got == "" || got == "<undecodable instruction>" {
		t.Fatalf("expected a decoded instruction, got %q", got)
	}
}

func TestDecodeFaultingInstructionInvalid(t *testing.T) {
	// a two-byte-opcode prefix with nothing following it is always a
	// truncated/invalid instruction, regardless of decoder table
	// contents.
	code := []byte{0x0f}
	got := DecodeFaultingInstruction(code, 0x1000)
	if got != "<undecodable instruction>" {
		t.Fatalf("expected undecodable report, got %q", got)
	}
}
