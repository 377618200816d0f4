package eval

import "golisp/internal/heap"

// jitFunctions walks the raw (unevaluated) list of symbol names passed
// to freeze/compile, looking each up as a lambda and handing it to run,
// mirroring compile_function's shared driver in the original sources.
func (ev *Evaluator) jitFunctions(name string, scope, args heap.Value, run func(scope, sym, fn heap.Value) error) {
	if !checkArity(ev, name, args, 1, -1) {
		return
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	for a := args; a != heap.Nil; a = ev.H.Cdr(a) {
		sym := ev.H.Car(a)
		if heap.Tag(sym) != heap.TagSymbol {
			ev.errorf(typeErr, "%s: argument is not a symbol", name)
			continue
		}
		fn := ev.H.SymbolLookup(scope, sym)
		if fn == heap.Undefined {
			ev.errorf(undefinedErr, "%s: undefined symbol: %s", name, ev.H.SymbolName(sym))
			continue
		}
		if heap.Tag(fn) != heap.TagLambda {
			ev.errorf(typeErr, "%s: %s does not name a function", name, ev.H.SymbolName(sym))
			continue
		}
		if jitRuntime == nil {
			ev.errorf(compileErr, "%s: no JIT runtime registered", name)
			continue
		}
		if err := run(scope, sym, fn); err != nil {
			ev.errorf(compileErr, "%v", err)
		}
	}
}

func builtinFreeze(ev *Evaluator, scope, args heap.Value) heap.Value {
	ev.jitFunctions("freeze", scope, args, func(scope, sym, fn heap.Value) error {
		return jitRuntime.Freeze(scope, sym, fn)
	})
	return heap.Nil
}

func builtinCompile(ev *Evaluator, scope, args heap.Value) heap.Value {
	ev.jitFunctions("compile", scope, args, func(scope, sym, fn heap.Value) error {
		return jitRuntime.Compile(scope, sym, fn)
	})
	return heap.Nil
}
