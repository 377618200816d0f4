package jit

import "golang.org/x/sys/unix"

// page is one mmapped, ultimately executable region backing a single
// compiled function's machine code. The standard library has no way to
// mark memory executable, so this is the one place the JIT leaves pure
// Go semantics behind.
type page struct {
	mem []byte
}

// allocatePage reserves a zero-filled, read-write page large enough
// for code, copies it in, then flips the page to read+execute. Pages
// are never resized: each successful Compile produces exactly one
// (Freeze produces none).
func allocatePage(code []byte) (*page, error) {
	size := (len(code) + unix.Getpagesize() - 1) &^ (unix.Getpagesize() - 1)
	if size == 0 {
		size = unix.Getpagesize()
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, err
	}
	copy(mem, code)
	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		unix.Munmap(mem)
		return nil, err
	}
	return &page{mem: mem}, nil
}

// free releases the underlying mapping. Only called from JIT.Close;
// a page, once allocated, is kept for as long as the JIT is open.
func (p *page) free() error {
	return unix.Munmap(p.mem)
}
