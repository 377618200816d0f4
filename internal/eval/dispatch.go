package eval

import "golisp/internal/heap"

// JIT is satisfied by the jit package; wiring it in as an interface here
// (rather than importing golisp/internal/jit directly) keeps eval's
// dependency on the compiled calling convention narrow and lets jit
// depend on eval's Builtin table for its validity check without an
// import cycle.
type JIT interface {
	CallCompiled(fn heap.Value, args []heap.Value) heap.Value
	Freeze(scope, name, fn heap.Value) error
	Compile(scope, name, fn heap.Value) error
}

var jitRuntime JIT

// RegisterJIT installs the JIT package's entry points. Called once from
// cmd/golisp's wiring step; nil until then, in which case a lambda can
// never reach compiled == Compiled and freeze/compile report an error.
func RegisterJIT(rt JIT) { jitRuntime = rt }

// callCompiled marshals the newest bindings list (already (sym . value)
// pairs in argument-reverse order, per §4.4) into a flat ARGS array and
// invokes the lambda's native code.
func (ev *Evaluator) callCompiled(fn, nextScope heap.Value) heap.Value {
	bindings := ev.H.Car(nextScope)
	n := ev.H.Length(bindings)
	args := make([]heap.Value, n)

	// bindings grew by consing newest-first, so the ith pair from the
	// head corresponds to the (n-1-i)th formal.
	i := n - 1
	for b := bindings; b != heap.Nil; b = ev.H.Cdr(b) {
		pair := ev.H.Car(b)
		args[i] = ev.H.Cdr(pair)
		i--
	}

	if jitRuntime == nil {
		ev.errorf(typeErr, "function is marked compiled but no JIT runtime is registered")
		return heap.Nil
	}
	return jitRuntime.CallCompiled(fn, args)
}
