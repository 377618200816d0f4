package jit

import "golisp/internal/heap"

// isParameter reports whether sym occurs among params (a possibly
// improper cons chain of formal-parameter symbols).
func isParameter(h *heap.Heap, params, sym heap.Value) bool {
	for p := params; heap.Tag(p) == heap.TagCons; p = h.Cdr(p) {
		if h.Car(p) == sym {
			return true
		}
	}
	return false
}

// resolveOneSymbol rewrites a single symbol occurrence: a formal
// parameter stays a symbol, the function's own name becomes a direct
// self-reference (selfMarker), and everything else is looked up in the
// defining scope, failing the pass if unbound.
func (j *JIT) resolveOneSymbol(scope, name, params, sym heap.Value) (heap.Value, bool) {
	if isParameter(j.h, params, sym) {
		return sym, true
	}
	if sym == name {
		return j.selfMarker, true
	}
	val := j.h.SymbolLookup(scope, sym)
	if val == heap.Undefined {
		return heap.Undefined, false
	}
	return val, true
}

// selfMarkerName is interned once by JIT.New as j.selfMarker: a
// sentinel written into a function's body in place of a
// self-referencing symbol occurrence, consulted by the lowering pass
// to emit opRecurse. The leading/trailing spaces keep it outside the
// set of names the reader can ever produce, so it cannot collide with
// a user symbol.
const selfMarkerName = " jit-self "

// resolveSymbols walks body in place (§4.4 step 1), rewriting every
// symbol occurrence via resolveOneSymbol. It mutates cons cells
// destructively, exactly like the tree it is given; on failure the
// occurrences rewritten before the unbound symbol stay rewritten, and
// no caller restores them.
func (j *JIT) resolveSymbols(scope, name, params, body heap.Value) bool {
	if heap.Tag(body) != heap.TagCons {
		return true
	}
	for b := body; b != heap.Nil; b = j.h.Cdr(b) {
		val := j.h.Car(b)
		switch heap.Tag(val) {
		case heap.TagSymbol:
			resolved, ok := j.resolveOneSymbol(scope, name, params, val)
			if !ok {
				return false
			}
			j.h.SetCar(b, resolved)
		case heap.TagCons:
			if !j.resolveSymbols(scope, name, params, val) {
				return false
			}
		}
	}
	return true
}
