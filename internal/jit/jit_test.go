package jit

import (
	"testing"

	"golisp/internal/heap"
	"golisp/internal/lerr"
)

func newTestJIT(t *testing.T) (*JIT, *heap.Heap) {
	t.Helper()
	h := heap.New(1<<16, heap.DefaultGrowPct, false, nil)
	names := []string{"+", "-", "<", "eq", "car", "cdr", "if", "progn", "write-char"}
	j := New(h, &lerr.Ring{}, func(idx int) string { return names[idx] })
	return j, h
}

func number(n int64) heap.Value { return heap.MakeNumber(n) }

func TestFoldConstantsCollapsesAdd(t *testing.T) {
	tree := &bite{op: opAdd,
		left:  &bite{op: opConst, constVal: number(2)},
		right: &bite{op: opConst, constVal: number(3)},
	}
	folded := foldConstants(tree)
	if folded.op != opConst || heap.Number(folded.constVal) != 5 {
		t.Fatalf("expected folded constant 5, got op=%d val=%v", folded.op, folded.constVal)
	}
}

func TestFoldConstantsCollapsesNestedSub(t *testing.T) {
	// (10 - 3) - 2 should fold to 5 even though the outer node's left
	// side is itself foldable only after the inner fold runs.
	tree := &bite{op: opSub,
		left: &bite{op: opSub,
			left:  &bite{op: opConst, constVal: number(10)},
			right: &bite{op: opConst, constVal: number(3)},
		},
		right: &bite{op: opConst, constVal: number(2)},
	}
	folded := foldConstants(tree)
	if folded.op != opConst || heap.Number(folded.constVal) != 5 {
		t.Fatalf("expected folded constant 5, got op=%d val=%v", folded.op, folded.constVal)
	}
}

func TestFoldConstantsLeavesParamAlone(t *testing.T) {
	tree := &bite{op: opAdd,
		left:  &bite{op: opParam, paramIdx: 0},
		right: &bite{op: opConst, constVal: number(1)},
	}
	folded := foldConstants(tree)
	if folded.op != opAdd {
		t.Fatalf("a parameter-dependent add must not fold, got op=%d", folded.op)
	}
}

func TestCountRegistersBalancedPairCostsOneMore(t *testing.T) {
	// Two leaves of equal cost both have to be materialized into
	// registers (this backend never addresses memory or immediates
	// directly in a binary op), so the pair costs one more than either
	// leaf alone, per Sethi-Ullman.
	tree := &bite{op: opAdd,
		left:  &bite{op: opParam, paramIdx: 0},
		right: &bite{op: opParam, paramIdx: 1},
	}
	n := countRegisters(tree)
	if n != 2 {
		t.Fatalf("balanced leaf pair should cost 2 registers, got %d", n)
	}
}

func TestCountRegistersRightConstantStillCostsARegister(t *testing.T) {
	// A small right-hand constant still has to land in a register:
	// there is no register-immediate add in this encoder.
	tree := &bite{op: opAdd,
		left:  &bite{op: opParam, paramIdx: 0},
		right: &bite{op: opConst, constVal: number(1)},
	}
	n := countRegisters(tree)
	if n != 2 {
		t.Fatalf("add of a param and a small constant should cost 2 registers, got %d", n)
	}
}

func TestCountRegistersCallCostsAtLeastOne(t *testing.T) {
	// A zero-argument call still needs one register to hold its result.
	tree := &bite{op: opCall, callTarget: 0x1000}
	n := countRegisters(tree)
	if n != 1 {
		t.Fatalf("a zero-argument call should still cost 1 register, got %d", n)
	}
}

func TestResolveSymbolsRewritesFreeVariableAndSelf(t *testing.T) {
	j, h := newTestJIT(t)
	globalScope := h.NewScope(heap.Nil)
	h.BindValue(globalScope, h.Intern("k"), number(100))
	h.BindValue(globalScope, h.Intern("-"), h.MakeBuiltin(1))

	params := h.Cons(h.Intern("n"), heap.Nil)
	name := h.Intern("count-down")
	// (count-down (- n k))
	body := h.Cons(h.Cons(name, h.Cons(h.Cons(h.Intern("-"), h.Cons(h.Intern("n"), h.Cons(h.Intern("k"), heap.Nil))), heap.Nil)), heap.Nil)

	if !j.resolveSymbols(globalScope, name, params, body) {
		t.Fatalf("resolveSymbols failed unexpectedly")
	}

	call := h.Car(body)
	if h.Car(call) != j.selfMarker {
		t.Fatalf("self-reference was not rewritten to the self marker")
	}
	kArg := h.Car(h.Cdr(h.Cdr(h.Car(h.Cdr(call)))))
	if kArg != number(100) {
		t.Fatalf("free variable k was not rewritten to its bound value")
	}
}

func TestResolveSymbolsFailsOnUnbound(t *testing.T) {
	j, h := newTestJIT(t)
	globalScope := h.NewScope(heap.Nil)
	params := h.Cons(h.Intern("n"), heap.Nil)
	name := h.Intern("f")
	body := h.Cons(h.Intern("nowhere-bound"), heap.Nil)

	if j.resolveSymbols(globalScope, name, params, body) {
		t.Fatalf("resolveSymbols should fail on a genuinely unbound symbol")
	}
}

func TestLowerRejectsNonAllowlistedBuiltin(t *testing.T) {
	j, h := newTestJIT(t)
	params := h.Cons(h.Intern("n"), heap.Nil)
	// (list n) - list is not in the compilable allow-list.
	builtinList := h.MakeBuiltin(99)
	body := h.Cons(builtinList, h.Cons(h.Intern("n"), heap.Nil))
	j.builtinName = func(int) string { return "list" }

	if _, err := j.lower(params, body); err == nil {
		t.Fatalf("expected an error lowering a call to a non-allow-listed builtin")
	}
}

func TestLowerAcceptsArithmeticOnParams(t *testing.T) {
	j, h := newTestJIT(t)
	params := h.Cons(h.Intern("a"), h.Cons(h.Intern("b"), heap.Nil))
	plus := h.MakeBuiltin(0) // index 0 -> "+" per newTestJIT's names table
	body := h.Cons(plus, h.Cons(h.Intern("a"), h.Cons(h.Intern("b"), heap.Nil)))

	b, err := j.lower(params, body)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	if b.op != opAdd {
		t.Fatalf("expected opAdd at the root, got %d", b.op)
	}
	if b.left.op != opParam || b.left.paramIdx != 0 {
		t.Fatalf("left operand should be parameter 0")
	}
	if b.right.op != opParam || b.right.paramIdx != 1 {
		t.Fatalf("right operand should be parameter 1")
	}
}

func TestLowerRejectsArityMismatchOnLess(t *testing.T) {
	j, h := newTestJIT(t)
	params := h.Cons(h.Intern("a"), heap.Nil)
	lt := h.MakeBuiltin(2) // "<" per newTestJIT's names table
	body := h.Cons(lt, h.Cons(h.Intern("a"), heap.Nil))

	if _, err := j.lower(params, body); err == nil {
		t.Fatalf("expected an arity error lowering a one-argument call to <")
	}
}
