package eval

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"golisp/internal/heap"
	"golisp/internal/lerr"
	"golisp/internal/printer"
	"golisp/internal/reader"
)

func builtinPrint(ev *Evaluator, scope, args heap.Value) heap.Value {
	a := args
	ev.H.PushFrame(&scope, &args, &a)
	defer ev.H.PopFrame()

	for ; a != heap.Nil; a = ev.H.Cdr(a) {
		v := ev.Eval(scope, ev.H.Car(a))
		ev.H.PushFrame(&scope, &a, &v)
		printer.Fprint(ev.Stdout(), ev.H, v)
		fmt.Fprintln(ev.Stdout())
		ev.H.PopFrame()
	}
	return heap.Nil
}

func builtinWriteChar(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "write-char", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	v := ev.Eval(scope, ev.H.Car(args))
	switch heap.Tag(v) {
	case heap.TagNumber:
		ev.Stdout().Write([]byte{byte(heap.Number(v))})
	case heap.TagSymbol:
		io.WriteString(ev.Stdout(), ev.H.SymbolName(v))
	default:
		ev.errorf(typeErr, "write-char: argument must be a symbol or a number")
	}
	return heap.Nil
}

func builtinRand(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "rand", args, 0, 0) {
		return heap.Nil
	}
	return heap.MakeNumber(rand.Int63() >> 2)
}

func builtinSleep(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "sleep", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()
	v := ev.Eval(scope, ev.H.Car(args))
	if !heap.IsNumber(v) {
		ev.errorf(typeErr, "sleep: not a number")
		return heap.Nil
	}
	time.Sleep(time.Duration(heap.Number(v)) * time.Millisecond)
	return heap.Nil
}

// builtinLoad evaluates every top-level form in the named file against
// the global environment, in source order.
func builtinLoad(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "load", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()

	path := ev.H.Car(args)
	if heap.Tag(path) != heap.TagSymbol {
		ev.errorf(typeErr, "load: file name must be a symbol")
		return heap.Nil
	}

	f, err := os.Open(ev.H.SymbolName(path))
	if err != nil {
		ev.Errs.Push(lerr.IO.New("load: %v", err))
		return heap.Nil
	}
	defer f.Close()

	r := reader.New(ev.H, f, ev.Errs)
	for {
		expr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			ev.Errs.Push(lerr.IO.New("load: %v", err))
			break
		}
		ev.H.PushFrame(&expr)
		ev.Eval(ev.H.Env(), expr)
		ev.H.PopFrame()
	}
	return heap.Nil
}

func builtinExit(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !checkArity(ev, "exit", args, 0, 0) {
		return heap.Nil
	}
	ev.Exiting = true
	return heap.Nil
}

// builtinDebug toggles debug mode; a debug-build-only primitive (§6).
func builtinDebug(ev *Evaluator, scope, args heap.Value) heap.Value {
	if !ev.DebugBuild {
		ev.errorf(typeErr, "debug: not available in this build")
		return heap.Nil
	}
	if !checkArity(ev, "debug", args, 1, 1) {
		return heap.Nil
	}
	ev.H.PushFrame(&scope, &args)
	defer ev.H.PopFrame()
	v := ev.Eval(scope, ev.H.Car(args))
	ev.debugOn = v != heap.Nil
	return v
}
