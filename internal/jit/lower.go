package jit

import (
	"fmt"

	"golisp/internal/heap"
)

// paramIndex returns sym's position among params, or -1 if absent.
func paramIndex(h *heap.Heap, params, sym heap.Value) int {
	i := 0
	for p := params; heap.Tag(p) == heap.TagCons; p = h.Cdr(p) {
		if h.Car(p) == sym {
			return i
		}
		i++
	}
	return -1
}

// lower performs the validity check and the lowering to bites in one
// pass (§4.4 steps 2-3): a body is compilable iff every sub-expression
// is a number, Nil/True, a parameter reference, a self-call, a call to
// an already-Compiled function, or a call to the closed allow-list of
// primitives. Any other shape returns an error naming the offending
// form.
func (j *JIT) lower(params, expr heap.Value) (*bite, error) {
	switch heap.Tag(expr) {
	case heap.TagNumber:
		return &bite{op: opConst, constVal: expr}, nil

	case heap.TagConst:
		if expr == heap.Nil || expr == heap.True {
			return &bite{op: opConst, constVal: expr}, nil
		}
		return nil, fmt.Errorf("compiled body may not reference the internal %v constant", expr)

	case heap.TagSymbol:
		idx := paramIndex(j.h, params, expr)
		if idx < 0 {
			return nil, fmt.Errorf("unresolved or non-parameter symbol in compiled body: %s", j.h.SymbolName(expr))
		}
		return &bite{op: opParam, paramIdx: idx}, nil

	case heap.TagCons:
		return j.lowerCall(params, expr)

	default:
		return nil, fmt.Errorf("value of unsupported type in compiled body")
	}
}

// maxCallArity bounds the arity of a self-call or cross-function call
// the emitter will accept: every argument must live in its own
// register simultaneously right up until it is written into the new
// ARGS block (§4.4 step 5), and this backend has exactly four scratch
// registers. Wider calls fail compilation rather than spill, pushing
// the work back to the tree-walking evaluator.
const maxCallArity = 4

func (j *JIT) lowerArgs(params, args heap.Value) ([]*bite, error) {
	var out []*bite
	for a := args; a != heap.Nil; a = j.h.Cdr(a) {
		if heap.Tag(a) != heap.TagCons {
			return nil, fmt.Errorf("improper argument list in compiled body")
		}
		b, err := j.lower(params, j.h.Car(a))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (j *JIT) lowerCallArgs(params, args heap.Value) ([]*bite, error) {
	out, err := j.lowerArgs(params, args)
	if err != nil {
		return nil, err
	}
	if len(out) > maxCallArity {
		return nil, fmt.Errorf("call has more than %d arguments, exceeding the compiler's register budget", maxCallArity)
	}
	return out, nil
}

func (j *JIT) lowerCall(params, expr heap.Value) (*bite, error) {
	head := j.h.Car(expr)
	args := j.h.Cdr(expr)

	switch {
	case head == j.selfMarker:
		argBites, err := j.lowerCallArgs(params, args)
		if err != nil {
			return nil, err
		}
		return &bite{op: opRecurse, args: argBites}, nil

	case heap.Tag(head) == heap.TagLambda && j.h.Compiled(head) == heap.Compiled:
		argBites, err := j.lowerCallArgs(params, args)
		if err != nil {
			return nil, err
		}
		return &bite{op: opCall, callTarget: j.h.NativeCode(head), args: argBites}, nil

	case heap.Tag(head) == heap.TagBuiltin:
		return j.lowerBuiltinCall(params, j.builtinName(j.h.BuiltinIndex(head)), args)

	default:
		return nil, fmt.Errorf("call to a non-compilable value in compiled body")
	}
}

func (j *JIT) lowerBuiltinCall(params heap.Value, name string, args heap.Value) (*bite, error) {
	argList := j.h.ToSlice(args)

	lowerAt := func(i int) (*bite, error) { return j.lower(params, argList[i]) }

	switch name {
	case "if":
		if len(argList) != 3 {
			return nil, fmt.Errorf("if requires exactly three arguments")
		}
		cond, err := lowerAt(0)
		if err != nil {
			return nil, err
		}
		then, err := lowerAt(1)
		if err != nil {
			return nil, err
		}
		els, err := lowerAt(2)
		if err != nil {
			return nil, err
		}
		return &bite{op: opIf, left: cond, right: then, args: []*bite{els}}, nil

	case "progn":
		bites, err := j.lowerArgs(params, args)
		if err != nil {
			return nil, err
		}
		return &bite{op: opProgn, args: bites}, nil

	case "+":
		if len(argList) < 1 {
			return nil, fmt.Errorf("+ requires at least one argument")
		}
		return j.lowerLeftFold(opAdd, params, argList)

	case "-":
		if len(argList) == 1 {
			operand, err := lowerAt(0)
			if err != nil {
				return nil, err
			}
			return &bite{op: opNeg, left: operand}, nil
		}
		if len(argList) < 1 {
			return nil, fmt.Errorf("- requires at least one argument")
		}
		return j.lowerLeftFold(opSub, params, argList)

	case "<":
		if len(argList) != 2 {
			return nil, fmt.Errorf("< requires exactly two arguments")
		}
		lhs, err := lowerAt(0)
		if err != nil {
			return nil, err
		}
		rhs, err := lowerAt(1)
		if err != nil {
			return nil, err
		}
		return &bite{op: opLess, left: lhs, right: rhs}, nil

	case "eq":
		if len(argList) != 2 {
			return nil, fmt.Errorf("eq requires exactly two arguments")
		}
		lhs, err := lowerAt(0)
		if err != nil {
			return nil, err
		}
		rhs, err := lowerAt(1)
		if err != nil {
			return nil, err
		}
		return &bite{op: opEq, left: lhs, right: rhs}, nil

	case "car":
		if len(argList) != 1 {
			return nil, fmt.Errorf("car requires exactly one argument")
		}
		operand, err := lowerAt(0)
		if err != nil {
			return nil, err
		}
		return &bite{op: opCarLoad, left: operand}, nil

	case "cdr":
		if len(argList) != 1 {
			return nil, fmt.Errorf("cdr requires exactly one argument")
		}
		operand, err := lowerAt(0)
		if err != nil {
			return nil, err
		}
		return &bite{op: opCdrLoad, left: operand}, nil

	case "write-char":
		if len(argList) != 1 {
			return nil, fmt.Errorf("write-char requires exactly one argument")
		}
		operand, err := lowerAt(0)
		if err != nil {
			return nil, err
		}
		return &bite{op: opWriteChar, left: operand}, nil

	default:
		return nil, fmt.Errorf("call to primitive %q is outside the compilable allow-list", name)
	}
}

// lowerLeftFold builds a left-associative chain of binary bites for +
// and - with more than one argument (e.g. (- a b c) -> (a-b)-c).
func (j *JIT) lowerLeftFold(op opcode, params heap.Value, argList []heap.Value) (*bite, error) {
	acc, err := j.lower(params, argList[0])
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(argList); i++ {
		rhs, err := j.lower(params, argList[i])
		if err != nil {
			return nil, err
		}
		acc = &bite{op: op, left: acc, right: rhs}
	}
	return acc, nil
}
