package x86asm

import "testing"

func TestMovRegImm64Encoding(t *testing.T) {
	a := &Asm{}
	a.MovRegImm64(RAX, 0x0102030405060708)
	want := []byte{0x48, 0xB8, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if !bytesEqual(a.Code, want) {
		t.Fatalf("got % x, want % x", a.Code, want)
	}
}

func TestMovRegRegEncoding(t *testing.T) {
	a := &Asm{}
	a.MovRegReg(RDI, RAX)
	want := []byte{0x48, 0x89, 0xC7}
	if !bytesEqual(a.Code, want) {
		t.Fatalf("got % x, want % x", a.Code, want)
	}
}

func TestPushPopRoundTrip(t *testing.T) {
	a := &Asm{}
	a.Push(RDI)
	a.Pop(RDI)
	want := []byte{0x57, 0x5F}
	if !bytesEqual(a.Code, want) {
		t.Fatalf("got % x, want % x", a.Code, want)
	}
}

func TestJmpRel32PatchesForwardTarget(t *testing.T) {
	a := &Asm{}
	at := a.JmpRel32()
	a.Push(RAX) // one byte of filler so the displacement is nonzero
	a.PatchRel32(at)

	disp := int32(a.Code[at]) | int32(a.Code[at+1])<<8 | int32(a.Code[at+2])<<16 | int32(a.Code[at+3])<<24
	if disp != 1 {
		t.Fatalf("displacement = %d, want 1", disp)
	}
}

func TestPatchRel32ToArbitraryTarget(t *testing.T) {
	a := &Asm{}
	a.Push(RAX)
	target := a.Label()
	at := a.JmpRel32()
	a.PatchRel32To(at, target)

	disp := int32(a.Code[at]) | int32(a.Code[at+1])<<8 | int32(a.Code[at+2])<<16 | int32(a.Code[at+3])<<24
	wantDisp := int32(target - (at + 4))
	if disp != wantDisp {
		t.Fatalf("displacement = %d, want %d", disp, wantDisp)
	}
}

func TestSyscallEncoding(t *testing.T) {
	a := &Asm{}
	a.Syscall()
	want := []byte{0x0F, 0x05}
	if !bytesEqual(a.Code, want) {
		t.Fatalf("got % x, want % x", a.Code, want)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
