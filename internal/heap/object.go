package heap

import (
	"unsafe"
)

// Every heap object begins with one header word (forwardedOrType, see
// value.go). Layouts below give the byte offsets of each type-specific
// field relative to the object's untagged address.
const (
	headerOff = 0

	consCarOff  = headerOff + wordSize
	consCdrOff  = consCarOff + wordSize
	consSize    = consCdrOff + wordSize
	builtinIdxOff = headerOff + wordSize
	builtinSize   = builtinIdxOff + wordSize

	symbolNameOff = headerOff + wordSize

	funcParamsOff   = headerOff + wordSize
	funcBodyOff     = funcParamsOff + wordSize
	funcEnvOff      = funcBodyOff + wordSize
	funcCompiledOff = funcEnvOff + wordSize
	funcSize        = funcCompiledOff + wordSize

	// baseSize is the smallest possible allocation: a header plus one
	// more word, enough to always hold a forwarding address.
	baseSize = headerOff + wordSize + wordSize
)

// Compiled states for a Lambda/Macro, per §3.
const (
	NotCompiled = iota
	SymbolsResolved
	Compiled
)

func alignUp(size, align uintptr) uintptr {
	return (size + align - 1) &^ (align - 1)
}

func allocationSize(size uintptr) uintptr {
	size = alignUp(size, wordSize)
	if size < baseSize {
		return baseSize
	}
	return size
}

func typeSize(tag uintptr) uintptr {
	switch tag {
	case TagSymbol:
		return allocationSize(headerOff + wordSize)
	case TagCons:
		return allocationSize(consSize)
	case TagLambda, TagMacro:
		return allocationSize(funcSize)
	case TagBuiltin:
		return allocationSize(builtinSize)
	default:
		panic("heap: typeSize of non-heap tag")
	}
}

func cStrLen(addr uintptr) int {
	n := 0
	for *(*byte)(unsafe.Pointer(addr + uintptr(n))) != 0 { //nolint:govet
		n++
	}
	return n
}

// objectSize returns the exact number of bytes occupied by the live
// object at addr whose stored header type is tag. For symbols this
// depends on the interned name's length; every other type has a fixed
// size derivable from the tag alone (invariant named in §4.1).
func objectSize(addr uintptr, tag uintptr) uintptr {
	if tag == TagSymbol {
		return allocationSize(symbolNameOff + uintptr(cStrLen(addr+symbolNameOff)) + 1)
	}
	return typeSize(tag)
}

// --- Cons ---

// Car returns the first field of a cons cell. v must be tagged TagCons.
func (h *Heap) Car(v Value) Value { return *wordAt(untag(v) + consCarOff) }

// Cdr returns the second field of a cons cell. v must be tagged TagCons.
func (h *Heap) Cdr(v Value) Value { return *wordAt(untag(v) + consCdrOff) }

// SetCar mutates the car field in place (used by BindValue to update a
// binding and by the JIT's symbol resolution; never by the GC, which
// always allocates fresh cells).
func (h *Heap) SetCar(v, car Value) { *wordAt(untag(v) + consCarOff) = car }

// SetCdr mutates the cdr field in place.
func (h *Heap) SetCdr(v, cdr Value) { *wordAt(untag(v) + consCdrOff) = cdr }

// --- Symbol ---

// SymbolName returns the interned name of a symbol value.
func (h *Heap) SymbolName(v Value) string {
	addr := untag(v) + symbolNameOff
	n := cStrLen(addr)
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = *(*byte)(unsafe.Pointer(addr + uintptr(i))) //nolint:govet
	}
	return string(buf)
}

// --- Builtin ---

// BuiltinIndex returns the index into the builtin table for v.
func (h *Heap) BuiltinIndex(v Value) int {
	return int(*wordAt(untag(v) + builtinIdxOff))
}

// --- Lambda / Macro ---

// Params returns the (possibly dotted) parameter list of a lambda/macro.
func (h *Heap) Params(v Value) Value { return *wordAt(untag(v) + funcParamsOff) }

// Body returns the body expression. For a Compiled lambda this field
// instead holds a raw native code address and must not be treated as a
// value; callers should check Compiled(v) first.
func (h *Heap) Body(v Value) Value { return *wordAt(untag(v) + funcBodyOff) }

// CapturedEnv returns the closed-over lexical scope.
func (h *Heap) CapturedEnv(v Value) Value { return *wordAt(untag(v) + funcEnvOff) }

// Compiled returns the compilation state of a lambda/macro.
func (h *Heap) Compiled(v Value) int {
	return int(*wordAt(untag(v) + funcCompiledOff))
}

// SetCompiled updates the compilation state.
func (h *Heap) SetCompiled(v Value, state int) {
	*wordAt(untag(v)+funcCompiledOff) = Value(state)
}

// SetBody overwrites the body field, used both by the resolver (symbol
// rewriting in place) and by the JIT (storing the native code pointer).
func (h *Heap) SetBody(v Value, body Value) { *wordAt(untag(v)+funcBodyOff) = body }

// NativeCode returns the native code address stored in a Compiled
// lambda's body slot, reinterpreted as a function pointer by the caller.
func (h *Heap) NativeCode(v Value) uintptr { return uintptr(h.Body(v)) }

// SetNativeCode stores addr, raw, into the body slot and is only valid
// once Compiled(v) == Compiled.
func (h *Heap) SetNativeCode(v Value, addr uintptr) { *wordAt(untag(v)+funcBodyOff) = Value(addr) }
