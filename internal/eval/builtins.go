package eval

import "golisp/internal/heap"

func (ev *Evaluator) registerBuiltins() {
	ev.define("+", builtinAdd)
	ev.define("-", builtinSub)
	ev.define("<", builtinLess)
	ev.define("eq", builtinEq)
	ev.define("cons", builtinCons)
	ev.define("car", builtinCar)
	ev.define("cdr", builtinCdr)
	ev.define("list", builtinList)
	ev.define("if", builtinIf)
	ev.define("progn", builtinProgn)
	ev.define("quote", builtinQuote)
	ev.define("eval", builtinEval)
	ev.define("apply", builtinApply)
	ev.define("define", builtinDefine)
	ev.define("defvar", builtinDefine)
	ev.define("defun", builtinDefun)
	ev.define("lambda", builtinLambda)
	ev.define("defmacro", builtinDefmacro)
	ev.define("macroexpand", builtinMacroexpand)
	ev.define("print", builtinPrint)
	ev.define("write-char", builtinWriteChar)
	ev.define("rand", builtinRand)
	ev.define("sleep", builtinSleep)
	ev.define("load", builtinLoad)
	ev.define("exit", builtinExit)
	ev.define("freeze", builtinFreeze)
	ev.define("compile", builtinCompile)
	ev.define("debug", builtinDebug)
}

// checkArity reports whether args has between min and max elements
// (max < 0 meaning unbounded), recording an arity error otherwise.
func checkArity(ev *Evaluator, name string, args heap.Value, min, max int) bool {
	n := ev.H.Length(args)
	if n < min || (max >= 0 && n > max) {
		ev.errorf(arityErr, "%s: wrong number of arguments (got %d)", name, n)
		return false
	}
	return true
}

func builtinAdd(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "+", args, 1, -1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	var sum int64
	a := args
	ev.H.PushFrame(&a)
	defer ev.H.PopFrame()
	for ; a != heap.Nil; a = ev.H.Cdr(a) {
		o := ev.Eval(scope, ev.H.Car(a))
		if !heap.IsNumber(o) {
			ev.errorf(typeErr, "+: not a number")
			return heap.Nil
		}
		sum += heap.Number(o)
	}
	return heap.MakeNumber(sum)
}

func builtinSub(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "-", args, 1, -1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	first := ev.Eval(scope, ev.H.Car(args))
	if !heap.IsNumber(first) {
		ev.errorf(typeErr, "-: not a number")
		return heap.Nil
	}
	rest := ev.H.Cdr(args)
	if rest == heap.Nil {
		return heap.MakeNumber(-heap.Number(first))
	}

	result := heap.Number(first)
	a := rest
	ev.H.PushFrame(&scope, &rest, &a)
	defer ev.H.PopFrame()
	for ; a != heap.Nil; a = ev.H.Cdr(a) {
		o := ev.Eval(scope, ev.H.Car(a))
		if !heap.IsNumber(o) {
			ev.errorf(typeErr, "-: not a number")
			return heap.Nil
		}
		result -= heap.Number(o)
	}
	return heap.MakeNumber(result)
}

func builtinLess(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "<", args, 2, 2) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	lhs := ev.Eval(scope, ev.H.Car(args))
	rhs := ev.Eval(scope, ev.H.Car(ev.H.Cdr(args)))
	if !heap.IsNumber(lhs) || !heap.IsNumber(rhs) {
		ev.errorf(typeErr, "<: not a number")
		return heap.Nil
	}
	if heap.Number(lhs) < heap.Number(rhs) {
		return heap.True
	}
	return heap.Nil
}

// builtinEq compares evaluated lhs/rhs by raw pointer identity; since
// numbers and interned symbols are value-encoded, this is already
// numeric/name equality for them without any special case (§6).
func builtinEq(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "eq", args, 2, 2) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	lhs := ev.Eval(scope, ev.H.Car(args))
	rhs := ev.Eval(scope, ev.H.Car(ev.H.Cdr(args)))
	if lhs == rhs {
		return heap.True
	}
	return heap.Nil
}

func builtinCons(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "cons", args, 2, 2) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	car := ev.Eval(scope, ev.H.Car(args))
	ev.H.PushFrame(&scope, &args, &car)
	defer ev.H.PopFrame()
	cdr := ev.Eval(scope, ev.H.Car(ev.H.Cdr(args)))
	return ev.H.Cons(car, cdr)
}

func builtinCar(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "car", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()
	p := ev.Eval(scope, ev.H.Car(args))
	if heap.Tag(p) != heap.TagCons {
		ev.errorf(typeErr, "car: not a pair")
		return heap.Nil
	}
	return ev.H.Car(p)
}

func builtinCdr(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "cdr", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()
	p := ev.Eval(scope, ev.H.Car(args))
	if heap.Tag(p) != heap.TagCons {
		ev.errorf(typeErr, "cdr: not a pair")
		return heap.Nil
	}
	return ev.H.Cdr(p)
}

func builtinList(ev *Evaluator, scope, args heap.Value) heap.Value {
	acc := heap.Nil
	a := args
	ev.H.PushFrame(&scope, &args, &acc, &a)
	defer ev.H.PopFrame()

	for ; a != heap.Nil; a = ev.H.Cdr(a) {
		v := ev.Eval(scope, ev.H.Car(a))
		ev.H.PushFrame(&scope, &a, &acc, &v)
		acc = ev.H.Cons(v, acc)
		ev.H.PopFrame()
	}
	return ev.H.Reverse(acc)
}

// builtinIf evaluates the condition and parks the chosen branch for the
// trampoline in evalApply instead of evaluating it itself (§4.3).
func builtinIf(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "if", args, 3, 3) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	cond := ev.Eval(scope, ev.H.Car(args))
	rest := ev.H.Cdr(args)
	var branch heap.Value
	if cond != heap.Nil {
		branch = ev.H.Car(rest)
	} else {
		branch = ev.H.Car(ev.H.Cdr(rest))
	}
	ev.tailExpr, ev.tailScope = branch, scope
	return heap.TailCall
}

// builtinProgn sequences all but the last form, then parks the last for
// the trampoline so it runs in tail position (§4.3).
func builtinProgn(ev *Evaluator, scope, args heap.Value) heap.Value {
	if args == heap.Nil {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	for args != heap.Nil && ev.H.Cdr(args) != heap.Nil {
		ev.Eval(scope, ev.H.Car(args))
		args = ev.H.Cdr(args)
	}
	ev.tailExpr, ev.tailScope = ev.H.Car(args), scope
	return heap.TailCall
}

func builtinQuote(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "quote", args, 1, 1) {
		return heap.Nil
	}
	return ev.H.Car(args)
}

func builtinEval(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "eval", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()
	once := ev.Eval(scope, ev.H.Car(args))
	ev.H.PushFrame(&scope, &once)
	defer ev.H.PopFrame()
	return ev.Eval(scope, once)
}

func builtinApply(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "apply", args, 2, 2) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	fn := ev.Eval(scope, ev.H.Car(args))
	ev.H.PushFrame(&scope, &args, &fn)
	defer ev.H.PopFrame()
	argList := ev.Eval(scope, ev.H.Car(ev.H.Cdr(args)))
	if argList != heap.Nil && heap.Tag(argList) != heap.TagCons {
		ev.errorf(typeErr, "apply: arguments are not a list")
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &fn, &argList)
	defer ev.H.PopFrame()
	return ev.Apply(scope, fn, argList)
}

func builtinDefine(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "define", args, 2, 2) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	name := ev.H.Car(args)
	if heap.Tag(name) != heap.TagSymbol {
		ev.errorf(typeErr, "define: name is not a symbol")
		return heap.Nil
	}
	v := ev.Eval(scope, ev.H.Car(ev.H.Cdr(args)))
	ev.H.PushFrame(&scope, &name, &v)
	defer ev.H.PopFrame()
	ev.H.BindValue(scope, name, v)
	return v
}

func builtinDefun(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "defun", args, 3, 3) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	name := ev.H.Car(args)
	params := ev.H.Car(ev.H.Cdr(args))
	body := ev.H.Car(ev.H.Cdr(ev.H.Cdr(args)))
	if heap.Tag(name) != heap.TagSymbol {
		ev.errorf(typeErr, "defun: name is not a symbol")
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &name, &params, &body)
	defer ev.H.PopFrame()
	fn := ev.H.MakeLambda(params, body, scope)
	ev.H.PushFrame(&name, &fn)
	defer ev.H.PopFrame()
	ev.H.BindValue(scope, name, fn)
	return fn
}

func builtinLambda(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "lambda", args, 2, 2) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()
	params := ev.H.Car(args)
	body := ev.H.Car(ev.H.Cdr(args))
	ev.H.PushFrame(&scope, &params, &body)
	defer ev.H.PopFrame()
	return ev.H.MakeLambda(params, body, scope)
}

func builtinDefmacro(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "defmacro", args, 3, 3) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	name := ev.H.Car(args)
	params := ev.H.Car(ev.H.Cdr(args))
	body := ev.H.Car(ev.H.Cdr(ev.H.Cdr(args)))
	if heap.Tag(name) != heap.TagSymbol {
		ev.errorf(typeErr, "defmacro: name is not a symbol")
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &name, &params, &body)
	defer ev.H.PopFrame()
	macro := ev.H.MakeMacro(params, body, scope)
	ev.H.PushFrame(&name, &macro)
	defer ev.H.PopFrame()
	ev.H.BindValue(scope, name, macro)
	return macro
}

// builtinMacroexpand expands m against the raw second form (already a
// list shaped to bind against the macro's parameters) without
// evaluating the expansion result, unlike ordinary macro application.
func builtinMacroexpand(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "macroexpand", args, 2, 2) {
		return heap.Nil
	}
	if heap.Tag(ev.H.Car(args)) != heap.TagSymbol {
		ev.errorf(typeErr, "macroexpand: first argument is not a symbol")
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	macro := ev.Eval(scope, ev.H.Car(args))
	if heap.Tag(macro) != heap.TagMacro {
		ev.errorf(typeErr, "macroexpand: not a macro")
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args, &macro)
	defer ev.H.PopFrame()
	return ev.expandMacro(scope, macro, ev.H.Car(ev.H.Cdr(args)))
}
