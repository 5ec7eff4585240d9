package circbuf

import "testing"

func TestWriteThenReadRoundtrip(t *testing.T) {
	cb := New(8)
	n := cb.Write([]byte("hello"))
	if n != 5 {
		t.Fatalf("expected 5 bytes written, got %d", n)
	}
	buf := make([]byte, 8)
	n = cb.Read(buf)
	if n != 5 || string(buf[:n]) != "hello" {
		t.Fatalf("expected 'hello', got %q (n=%d)", buf[:n], n)
	}
	if !cb.Empty() {
		t.Fatal("expected buffer to be empty after draining")
	}
}

func TestWriteStopsAtCapacity(t *testing.T) {
	cb := New(4)
	n := cb.Write([]byte("abcdef"))
	if n != 4 {
		t.Fatalf("expected write capped at capacity 4, got %d", n)
	}
	if !cb.Full() {
		t.Fatal("expected buffer to report full")
	}
	if n := cb.Write([]byte("x")); n != 0 {
		t.Fatalf("expected a full buffer to refuse further writes, got %d", n)
	}
}

func TestWraparoundPreservesOrdering(t *testing.T) {
	cb := New(4)
	cb.Write([]byte("ab"))
	buf := make([]byte, 2)
	cb.Read(buf) // drain "ab", tail now at 2
	cb.Write([]byte("cdef"))
	out := make([]byte, 4)
	n := cb.Read(out)
	if n != 4 || string(out[:n]) != "cdef" {
		t.Fatalf("expected wraparound write/read to preserve order, got %q", out[:n])
	}
}

func TestRawwriteAdvheadThenRawreadAdvtail(t *testing.T) {
	cb := New(4)
	r1, r2 := cb.Rawwrite(0, 3)
	copy(r1, []byte("xyz"))
	if r2 != nil {
		t.Fatal("expected a single contiguous region for a fresh buffer")
	}
	cb.Advhead(3)

	rr1, rr2 := cb.Rawread(0)
	got := append(append([]byte{}, rr1...), rr2...)
	if string(got) != "xyz" {
		t.Fatalf("expected rawread to see 'xyz', got %q", got)
	}
	cb.Advtail(3)
	if !cb.Empty() {
		t.Fatal("expected buffer empty after advancing tail past all data")
	}
}
