// Package eval implements the tree-walking evaluator: eval(scope,
// expr), the tail-call trampoline threaded through the TailCall
// singleton, macro expansion, and the closed primitive set of §4.3.
package eval

import (
	"io"
	"os"

	"github.com/joomcode/errorx"

	"golisp/internal/heap"
	"golisp/internal/lerr"
)

var (
	undefinedErr = lerr.Undefined
	typeErr      = lerr.Type
	arityErr     = lerr.Arity
	compileErr   = lerr.Compile
)

// Builtin is a primitive's implementation. args is the unevaluated
// argument list; most primitives evaluate each element themselves
// since evaluation order and tail position vary per form.
type Builtin func(ev *Evaluator, scope, args heap.Value) heap.Value

// Evaluator bundles the heap, the error ring, and the tail-call
// parking slots with the table of primitives bound into the global
// environment at startup.
type Evaluator struct {
	H    *heap.Heap
	Errs *lerr.Ring

	// tailExpr/tailScope are the "two global slots" parked by if/progn
	// before returning the TailCall sentinel (§4.3); safe without root
	// registration because no allocation happens between a builtin
	// returning TailCall and evalApply reloading them.
	tailExpr  heap.Value
	tailScope heap.Value

	builtins []Builtin
	names    []string
	out      io.Writer

	// Quiet records the REPL's -quiet flag; no primitive reads it.
	Quiet bool
	// DebugBuild gates the `debug` primitive per §6 ("debug-build only").
	DebugBuild bool
	debugOn    bool

	// Exiting is set by the `exit` primitive; the REPL checks it after
	// each top-level form and terminates the loop once current
	// evaluation has completed (§5, "pending evaluation completes").
	Exiting bool
}

// New creates an Evaluator with a fresh global environment populated
// with the closed primitive set and the nil/t constants.
func New(h *heap.Heap, errs *lerr.Ring, debugBuild bool) *Evaluator {
	ev := &Evaluator{H: h, Errs: errs, DebugBuild: debugBuild, out: os.Stdout}
	h.SetEnv(h.NewScope(heap.Nil))
	ev.defineConstant("nil", heap.Nil)
	ev.defineConstant("t", heap.True)
	ev.registerBuiltins()
	return ev
}

func (ev *Evaluator) defineConstant(name string, v heap.Value) {
	sym := ev.H.Intern(name)
	ev.H.BindValue(ev.H.Env(), sym, v)
}

func (ev *Evaluator) define(name string, fn Builtin) {
	idx := len(ev.builtins)
	ev.builtins = append(ev.builtins, fn)
	ev.names = append(ev.names, name)
	b := ev.H.MakeBuiltin(idx)
	sym := ev.H.Intern(name)
	ev.H.PushFrame(&b, &sym)
	defer ev.H.PopFrame()
	ev.H.BindValue(ev.H.Env(), sym, b)
}

// Stdout returns the writer primitives like print/write-char use.
func (ev *Evaluator) Stdout() io.Writer { return ev.out }

// SetStdout redirects print/write-char output, used by the REPL/tests.
func (ev *Evaluator) SetStdout(w io.Writer) { ev.out = w }

// BuiltinName returns the primitive name bound to builtin index idx,
// used by the JIT's validity check to test allow-list membership.
func (ev *Evaluator) BuiltinName(idx int) string { return ev.names[idx] }

func (ev *Evaluator) errorf(kind *errorx.Type, format string, args ...any) {
	ev.Errs.Push(kind.New(format, args...))
}

// Eval is the evaluator's single entry point (§4.3).
func (ev *Evaluator) Eval(scope, expr heap.Value) heap.Value {
	switch heap.Tag(expr) {
	case heap.TagNumber, heap.TagConst, heap.TagBuiltin, heap.TagLambda, heap.TagMacro:
		return expr

	case heap.TagSymbol:
		v := ev.H.SymbolLookup(scope, expr)
		if v == heap.Undefined {
			ev.errorf(undefinedErr, "undefined symbol: %s", ev.H.SymbolName(expr))
			return heap.Nil
		}
		return v

	case heap.TagCons:
		return ev.evalApply(scope, expr)

	default:
		return heap.Nil
	}
}

// evalApply evaluates a combination (head . args) and runs the
// tail-call trampoline: `if`/`progn` return the TailCall sentinel
// after parking (expr, scope), and this loop reloads and re-enters
// instead of recursing, giving bounded host-stack tail calls (§4.3,
// §8 "tail position does not grow host stack").
func (ev *Evaluator) evalApply(scope, expr heap.Value) heap.Value {
	ev.H.PushFrame(&scope, &expr)
	defer ev.H.PopFrame()

	var ret heap.Value

	for {
		fn := ev.Eval(scope, ev.H.Car(expr))
		ev.H.PushFrame(&scope, &expr, &fn)

		switch heap.Tag(fn) {
		case heap.TagMacro:
			expanded := ev.expandMacro(scope, fn, ev.H.Cdr(expr))
			ev.H.PushFrame(&scope, &expanded)
			ret = ev.Eval(scope, expanded)
			ev.H.PopFrame()

		case heap.TagBuiltin:
			ret = ev.builtins[ev.H.BuiltinIndex(fn)](ev, scope, ev.H.Cdr(expr))

		case heap.TagLambda:
			ret = ev.applyLambda(scope, fn, expr)

		default:
			ev.errorf(typeErr, "not a function")
			ret = heap.Nil
		}
		ev.H.PopFrame()

		if ret != heap.TailCall {
			return ret
		}

		nextExpr := ev.tailExpr
		nextScope := ev.tailScope

		if heap.Tag(nextExpr) != heap.TagCons {
			return ev.Eval(nextScope, nextExpr)
		}
		scope, expr = nextScope, nextExpr
	}
}

// applyLambda binds actuals to formals in a fresh scope over the
// closure's captured environment and either dispatches to native code
// (Compiled), loops the trampoline in place when the body is itself a
// cons (tail position, §4.3 rule 4), or evaluates the body once.
func (ev *Evaluator) applyLambda(scope, fn, expr heap.Value) heap.Value {
	nextScope := heap.Nil
	ev.H.PushFrame(&scope, &fn, &expr, &nextScope)
	defer ev.H.PopFrame()
	nextScope = ev.H.NewScope(ev.H.CapturedEnv(fn))

	param := ev.H.Params(fn)
	arg := ev.H.Cdr(expr)
	v := heap.Nil
	ev.H.PushFrame(&param, &arg, &v)
	defer ev.H.PopFrame()

	for param != heap.Nil && arg != heap.Nil {
		v = ev.Eval(scope, ev.H.Car(arg))
		ev.H.BindValue(nextScope, ev.H.Car(param), v)
		param = ev.H.Cdr(param)
		arg = ev.H.Cdr(arg)
	}

	if param != heap.Nil {
		ev.errorf(arityErr, "not enough arguments to function")
		return heap.Nil
	}
	if arg != heap.Nil {
		ev.errorf(arityErr, "too many arguments to function")
		return heap.Nil
	}

	if ev.H.Compiled(fn) == heap.Compiled {
		return ev.callCompiled(fn, nextScope)
	}

	body := ev.H.Body(fn)
	if heap.Tag(body) == heap.TagCons {
		ev.tailExpr, ev.tailScope = body, nextScope
		return heap.TailCall
	}
	return ev.Eval(nextScope, body)
}

// expandMacro binds unevaluated arguments to formals in a fresh scope
// and evaluates the macro body there; the caller then evaluates the
// resulting form in the original scope.
func (ev *Evaluator) expandMacro(scope, macro, args heap.Value) heap.Value {
	newScope := ev.H.NewScope(scope)
	ev.H.PushFrame(&macro, &args, &newScope)
	defer ev.H.PopFrame()

	param := ev.H.Params(macro)
	for param != heap.Nil && args != heap.Nil {
		if heap.Tag(args) != heap.TagCons {
			break
		}
		ev.H.BindValue(newScope, ev.H.Car(param), ev.H.Car(args))
		param = ev.H.Cdr(param)
		args = ev.H.Cdr(args)
	}

	if args != heap.Nil {
		ev.errorf(arityErr, "too many arguments to macro")
		return heap.Nil
	}
	if param != heap.Nil {
		ev.errorf(arityErr, "not enough arguments to macro")
		return heap.Nil
	}

	return ev.Eval(newScope, ev.H.Body(macro))
}

// Apply evaluates fn applied to an already-evaluated argument list,
// used by the `apply` primitive. It
// builds a synthetic (quote-wrapped) call form so it can reuse
// evalApply's dispatch and trampoline handling uniformly.
func (ev *Evaluator) Apply(scope, fn, args heap.Value) heap.Value {
	quoted := ev.quoteEach(args)
	ev.H.PushFrame(&fn, &quoted)
	defer ev.H.PopFrame()
	call := ev.H.Cons(fn, quoted)
	ev.H.PushFrame(&call)
	defer ev.H.PopFrame()
	return ev.evalApply(scope, call)
}

func (ev *Evaluator) quoteEach(args heap.Value) heap.Value {
	if args == heap.Nil {
		return heap.Nil
	}
	head := ev.H.Car(args)
	ev.H.PushFrame(&args, &head)
	defer ev.H.PopFrame()
	rest := ev.quoteEach(ev.H.Cdr(args))
	ev.H.PushFrame(&head, &rest)
	defer ev.H.PopFrame()
	quoteSym := ev.H.Intern("quote")
	ev.H.PushFrame(&head, &rest, &quoteSym)
	defer ev.H.PopFrame()
	wrapped := ev.H.Cons(quoteSym, ev.H.Cons(head, heap.Nil))
	ev.H.PushFrame(&wrapped, &rest)
	defer ev.H.PopFrame()
	return ev.H.Cons(wrapped, rest)
}
