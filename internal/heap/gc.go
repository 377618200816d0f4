package heap

import "unsafe"

// collectGarbage runs one stop-the-world cycle: either a same-size
// semi-space swap or, if the previous cycle left growPending set, a grow
// to a fresh arena of double the size (§4.2). Roots are the global
// environment, the interned symbol table, and every live RootFrame slot;
// evacuate relocates reachable objects into the destination space and
// the scan loop then fixes up their interior pointers.
func (h *Heap) collectGarbage() {
	oldBuf := h.buf
	spaceSize := h.memorySize / 2
	memoryUsed := h.memPtr - h.memRoot

	switch {
	case h.growPending:
		h.memorySize *= 2
		spaceSize = h.memorySize / 2
		newBuf := make([]byte, h.memorySize)
		h.buf = newBuf
		h.memRoot = uintptr(unsafe.Pointer(&newBuf[0]))
		h.memPtr = h.memRoot
		h.memEnd = h.memRoot + spaceSize
		h.stats.Grows++
	case h.memEnd == h.memRoot+spaceSize:
		h.memPtr = h.memRoot + spaceSize
		h.memEnd = h.memRoot + h.memorySize
	default:
		memoryUsed -= spaceSize
		h.memPtr = h.memRoot
		h.memEnd = h.memRoot + spaceSize
	}

	scanStart := h.memPtr

	h.env = h.evacuate(h.env)
	h.allSymbols = h.evacuate(h.allSymbols)

	for f := h.rootTop; f != nil; f = f.next {
		for i := 0; i < f.n; i++ {
			*f.slots[i] = h.evacuate(*f.slots[i])
		}
	}

	for scanPtr := scanStart; scanPtr < h.memPtr; {
		scanPtr += h.fixReferences(scanPtr)
	}

	stillInUse := h.memPtr - scanStart
	h.stats.Collections++

	if h.verbose && h.logger != nil {
		pctInUse := float64(stillInUse) / float64(spaceSize) * 100.0
		if h.growPending {
			h.logger.Printf("gc: grew arena %d -> %d bytes", h.memorySize/2, h.memorySize)
		}
		if memoryUsed > stillInUse {
			freed := memoryUsed - stillInUse
			h.stats.BytesFreed += uint64(freed)
			pctFreed := float64(freed) / float64(spaceSize) * 100.0
			h.logger.Printf("gc: freed %d bytes (%.1f%%), in use %d bytes (%.1f%%)",
				freed, pctFreed, stillInUse, pctInUse)
		}
	}

	if h.growPending {
		h.growPending = false
		_ = oldBuf // kept alive only for the duration of evacuation above
	} else if float64(stillInUse)/float64(spaceSize)*100.0 > h.growPct {
		h.growPending = true
	}
}

// evacuate is make_living from the original sources: numbers and
// singletons pass through unchanged, an already-moved heap object
// returns its forwarding address re-tagged, and anything else is copied
// to the bump pointer of the destination space with the source header
// overwritten by the forwarding address.
func (h *Heap) evacuate(v Value) Value {
	tag := Tag(v)
	if tag == TagNumber || tag == TagConst {
		return v
	}

	addr := untag(v)
	if addr >= h.memEnd-h.memorySize/2 && addr < h.memEnd {
		// Already in the destination space: the same variable is
		// registered in more than one live RootFrame and was updated
		// by an earlier slot of this cycle.
		return v
	}
	hdrPtr := wordAt(addr)
	hdr := *hdrPtr

	if storedType(hdr) == 0 {
		// Low three bits clear: this already holds a word-aligned
		// forwarding address written by an earlier evacuate() of the
		// same object (coalescing via shared forwarding slot).
		return makePtr(uintptr(hdr), tag)
	}

	size := objectSize(addr, storedType(hdr))
	dst := h.memPtr
	h.memPtr += size
	copyWords(dst, addr, size)
	*hdrPtr = Value(dst)
	return makePtr(dst, tag)
}

// fixReferences updates every heap-type field of the already-evacuated
// object at addr to point at the new locations of whatever it
// references, and returns the object's size so the scan loop can advance.
func (h *Heap) fixReferences(addr uintptr) uintptr {
	hdr := *wordAt(addr)
	tag := storedType(hdr)
	size := objectSize(addr, tag)

	switch tag {
	case TagSymbol, TagBuiltin:
		// no pointer-valued fields to fix up

	case TagCons:
		carPtr := wordAt(addr + consCarOff)
		cdrPtr := wordAt(addr + consCdrOff)
		*carPtr = h.evacuate(*carPtr)
		*cdrPtr = h.evacuate(*cdrPtr)

	case TagLambda, TagMacro:
		paramsPtr := wordAt(addr + funcParamsOff)
		envPtr := wordAt(addr + funcEnvOff)
		*paramsPtr = h.evacuate(*paramsPtr)
		*envPtr = h.evacuate(*envPtr)

		// Invariant 3: once compiled, the body slot is a native code
		// pointer, not a value, and must be left untouched.
		if int(*wordAt(addr+funcCompiledOff)) != Compiled {
			bodyPtr := wordAt(addr + funcBodyOff)
			*bodyPtr = h.evacuate(*bodyPtr)
		}

	default:
		panic("heap: fixReferences on object with invalid stored type")
	}

	return size
}

func copyWords(dst, src, size uintptr) {
	dstSlice := unsafe.Slice((*byte)(unsafe.Pointer(dst)), size) //nolint:govet
	srcSlice := unsafe.Slice((*byte)(unsafe.Pointer(src)), size) //nolint:govet
	copy(dstSlice, srcSlice)
}

// Collect forces a garbage collection cycle regardless of free space,
// used by tests verifying GC-preserves-semantics (§8).
func (h *Heap) Collect() {
	h.collectGarbage()
}
