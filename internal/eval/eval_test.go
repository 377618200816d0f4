package eval

import (
	"bytes"
	"io"
	"log"
	"testing"

	"golisp/internal/heap"
	"golisp/internal/jit"
	"golisp/internal/lerr"
	"golisp/internal/reader"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	h := heap.New(1<<20, heap.DefaultGrowPct, false, log.New(io.Discard, "", 0))
	return New(h, &lerr.Ring{}, true)
}

func evalString(t *testing.T, ev *Evaluator, src string) heap.Value {
	t.Helper()
	r := reader.New(ev.H, bytes.NewBufferString(src), ev.Errs)
	var last heap.Value
	for {
		expr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reader error: %v", err)
		}
		ev.H.PushFrame(&expr)
		last = ev.Eval(ev.H.Env(), expr)
		ev.H.PopFrame()
	}
	return last
}

func TestArithmetic(t *testing.T) {
	ev := newTestEvaluator(t)
	v := evalString(t, ev, "(+ 1 2 3)")
	if !heap.IsNumber(v) || heap.Number(v) != 6 {
		t.Fatalf("(+ 1 2 3) = %v, want 6", v)
	}

	v = evalString(t, ev, "(- 5 7 2)")
	if heap.Number(v) != -4 {
		t.Fatalf("(- 5 7 2) = %v, want -4", heap.Number(v))
	}

	v = evalString(t, ev, "(- 3)")
	if heap.Number(v) != -3 {
		t.Fatalf("(- 3) = %v, want -3", heap.Number(v))
	}
}

func TestEqSymbolsAndConses(t *testing.T) {
	ev := newTestEvaluator(t)
	v := evalString(t, ev, "(eq 'foo 'foo)")
	if v != heap.True {
		t.Fatalf("(eq 'foo 'foo) = %v, want t", v)
	}

	v = evalString(t, ev, "(eq (cons 1 2) (cons 1 2))")
	if v != heap.Nil {
		t.Fatalf("(eq (cons 1 2) (cons 1 2)) = %v, want nil", v)
	}
}

func TestDefunAndRecursion(t *testing.T) {
	ev := newTestEvaluator(t)
	evalString(t, ev, "(defun mul (a b) (if (eq b 0) 0 (+ a (mul a (- b 1)))))")
	evalString(t, ev, "(defun fact (n) (if (< n 2) 1 (mul n (fact (- n 1)))))")
	v := evalString(t, ev, "(fact 10)")
	if heap.Number(v) != 3628800 {
		t.Fatalf("(fact 10) = %v, want 3628800", heap.Number(v))
	}
}

// TestTailCallDoesNotGrowStack exercises a self-recursive tail call
// whose recursive step is the tail of `if`, scaled down from the
// specification's 10^6 to keep this test fast (§8).
func TestTailCallDoesNotGrowStack(t *testing.T) {
	ev := newTestEvaluator(t)
	evalString(t, ev, "(defun count-down (n) (if (eq n 0) 0 (count-down (- n 1))))")
	v := evalString(t, ev, "(count-down 200000)")
	if heap.Number(v) != 0 {
		t.Fatalf("(count-down 200000) = %v, want 0", heap.Number(v))
	}
}

func TestLambdaClosureAndApply(t *testing.T) {
	ev := newTestEvaluator(t)
	evalString(t, ev, "(define make-adder (lambda (x) (lambda (y) (+ x y))))")
	evalString(t, ev, "(define add5 (make-adder 5))")
	v := evalString(t, ev, "(add5 7)")
	if heap.Number(v) != 12 {
		t.Fatalf("(add5 7) = %v, want 12", heap.Number(v))
	}

	v = evalString(t, ev, "(apply add5 (list 10))")
	if heap.Number(v) != 15 {
		t.Fatalf("(apply add5 (list 10)) = %v, want 15", heap.Number(v))
	}
}

func TestMacro(t *testing.T) {
	ev := newTestEvaluator(t)
	evalString(t, ev, "(defmacro my-if (c then else) (list 'if c then else))")
	v := evalString(t, ev, "(my-if t 1 2)")
	if heap.Number(v) != 1 {
		t.Fatalf("(my-if t 1 2) = %v, want 1", heap.Number(v))
	}
}

func TestUndefinedSymbolIsNonFatal(t *testing.T) {
	ev := newTestEvaluator(t)
	v := evalString(t, ev, "no-such-symbol")
	if v != heap.Nil {
		t.Fatalf("undefined symbol should evaluate to nil, got %v", v)
	}
	if ev.Errs.Len() != 1 {
		t.Fatalf("expected exactly one recorded error, got %d", ev.Errs.Len())
	}

	// The evaluator must remain usable after an error (§8 "error
	// non-fatality").
	v = evalString(t, ev, "(+ 1 1)")
	if heap.Number(v) != 2 {
		t.Fatalf("evaluator did not recover after an error: %v", v)
	}
}

func TestArityErrorRecorded(t *testing.T) {
	ev := newTestEvaluator(t)
	evalString(t, ev, "(+ )")
	if ev.Errs.Len() != 1 {
		t.Fatalf("expected arity error recorded, got %d errors", ev.Errs.Len())
	}
}

// TestCompiledCallAsArithmeticOperand guards the §8 "compile
// equivalence" property for the shape that previously broke it: a
// Compiled function invoked from inside an arithmetic expression in
// another Compiled function's body, rather than in tail position. Both
// g's operands (the parameter and the call to f) live in registers
// simultaneously across f's native call, so a miscompile here shows up
// as a wrong numeric result rather than a crash.
func TestCompiledCallAsArithmeticOperand(t *testing.T) {
	ev := newTestEvaluator(t)
	rt := jit.New(ev.H, ev.Errs, ev.BuiltinName)
	RegisterJIT(rt)
	defer RegisterJIT(nil)
	defer rt.Close()

	evalString(t, ev, "(defun f (x) (+ x 1))")
	evalString(t, ev, "(compile f)")
	evalString(t, ev, "(defun g (x) (+ x (f x)))")
	evalString(t, ev, "(compile g)")

	if ev.Errs.Len() != 0 {
		t.Fatalf("unexpected errors compiling f/g: %v", ev.Errs.Drain())
	}

	v := evalString(t, ev, "(g 10)")
	if heap.Number(v) != 21 {
		t.Fatalf("(g 10) = %v, want 21", heap.Number(v))
	}
}
