// Package jit compiles the body of a Lambda whose every sub-expression
// is resolvable and falls within a closed allow-list of primitives into
// native x86-64 machine code, following the pipeline laid out for this
// system's compiler: symbol resolution, a validity check fused with
// lowering to a small expression tree ("bites"), constant folding, a
// Sethi-Ullman register-count pass, and code emission into an mmapped
// executable page. A function that fails any stage is not marked
// Compiled and keeps running through the tree-walking evaluator; its
// body is not restored, so symbol occurrences already rewritten by
// resolution stay rewritten (see Compile).
package jit

import (
	"fmt"
	"unsafe"

	"golisp/internal/heap"
	"golisp/internal/jit/x86asm"
	"golisp/internal/lerr"
)

// JIT owns the set of mmapped code pages backing every Compiled lambda
// and the state needed to resolve and validate a candidate function.
type JIT struct {
	h           *heap.Heap
	errs        *lerr.Ring
	builtinName func(int) string

	selfMarker heap.Value

	pages []*page
}

// New constructs a JIT bound to h. builtinName must return the name
// under which a given builtin index was registered (Evaluator.BuiltinName),
// used by the validity check's allow-list test; it is supplied this way
// rather than by importing the eval package directly, to avoid a cycle
// between eval (which dispatches into compiled code) and jit (which
// needs to recognize compilable primitive calls).
func New(h *heap.Heap, errs *lerr.Ring, builtinName func(int) string) *JIT {
	j := &JIT{h: h, errs: errs, builtinName: builtinName}
	j.selfMarker = h.Intern(selfMarkerName)
	return j
}

// Freeze performs only the symbol-resolution pass (§4.4 step 1),
// rewriting name's body in place so that every free variable is bound
// directly to its value and advancing the lambda's compilation state to
// SymbolsResolved. A function must be Frozen before it can be Compiled;
// freezing alone is also useful on its own, since a resolved body skips
// environment lookups even under the tree-walking evaluator.
func (j *JIT) Freeze(scope, name, fn heap.Value) error {
	if heap.Tag(fn) != heap.TagLambda {
		return fmt.Errorf("freeze: not a function")
	}
	if j.h.Compiled(fn) != heap.NotCompiled {
		return nil
	}
	params := j.h.Params(fn)
	body := j.h.Body(fn)
	if !j.resolveSymbols(scope, name, params, body) {
		return fmt.Errorf("freeze: body references an unbound symbol")
	}
	j.h.SetCompiled(fn, heap.SymbolsResolved)
	return nil
}

// Compile freezes fn if needed, then lowers, folds, register-counts,
// and emits its body to native code, installing the result as fn's
// native code address and marking it Compiled. A failure after Freeze
// leaves fn SymbolsResolved with its resolved body. A failing Freeze
// leaves fn NotCompiled, but the symbol occurrences it rewrote before
// reaching the unbound one stay rewritten; nothing is rolled back.
func (j *JIT) Compile(scope, name, fn heap.Value) error {
	if heap.Tag(fn) != heap.TagLambda {
		return fmt.Errorf("compile: not a function")
	}
	if j.h.Compiled(fn) == heap.Compiled {
		return nil
	}
	if j.h.Compiled(fn) == heap.NotCompiled {
		if err := j.Freeze(scope, name, fn); err != nil {
			return err
		}
	}

	params := j.h.Params(fn)
	body := j.h.Body(fn)

	tree, err := j.lower(params, body)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	tree = foldConstants(tree)
	countRegisters(tree)

	asm := &x86asm.Asm{}
	asm.MovRegReg(argsReg, x86asm.RAX) // adopt Go's ABIInternal single-arg register into our convention
	prologueAt := asm.Len()
	e := &emitter{asm: asm, prologueAt: prologueAt}
	result := e.emit(tree, scratch)
	if result != x86asm.RAX {
		asm.MovRegReg(x86asm.RAX, result)
	}
	asm.Ret()

	p, err := allocatePage(asm.Code)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	j.pages = append(j.pages, p)

	j.h.SetNativeCode(fn, uintptr(unsafe.Pointer(&p.mem[0])))
	j.h.SetCompiled(fn, heap.Compiled)
	return nil
}

// compiledEntry is the Go-callable shape the funcval patch below
// pretends the mmapped code has: one word in, one word out, matching
// Go's register-based calling convention for a function of this
// signature (argument and result both travel through RAX under
// ABIInternal), which the emitted prologue immediately moves into this
// backend's own ARGS register.
type compiledEntry func(uintptr) uintptr

// callNative invokes the native code at addr with args as its ARGS
// pointer. A Go func value is a pointer to a word holding the code's
// entry address; building one that points at a word holding addr lets
// pure Go jump into JIT-emitted code with no cgo and no hand-written
// assembly stub.
func callNative(addr uintptr, argsPtr uintptr) uintptr {
	p := &addr
	fn := *(*compiledEntry)(unsafe.Pointer(&p))
	return fn(argsPtr)
}

// CallCompiled invokes fn's native code with args marshaled into a
// contiguous block matching the ARGS layout the emitter assumed
// (args[i] at offset i*8), and returns its tagged result.
func (j *JIT) CallCompiled(fn heap.Value, args []heap.Value) heap.Value {
	addr := j.h.NativeCode(fn)
	if len(args) == 0 {
		return heap.Value(callNative(addr, 0))
	}
	argsPtr := uintptr(unsafe.Pointer(&args[0]))
	return heap.Value(callNative(addr, argsPtr))
}

// Close releases every mmapped page. Only meaningful at process
// shutdown; the evaluator never unmaps a page a live Compiled lambda
// might still jump into.
func (j *JIT) Close() error {
	var first error
	for _, p := range j.pages {
		if err := p.free(); err != nil && first == nil {
			first = err
		}
	}
	j.pages = nil
	return first
}
