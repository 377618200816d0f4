// Package lerr defines the evaluator's error taxonomy and the bounded
// ring buffer that makes every error kind but memory exhaustion
// non-fatal (§7): the faulting primitive records one entry and returns
// Nil, the evaluator keeps going, and the REPL drains the buffer after
// each top-level form.
package lerr

import "github.com/joomcode/errorx"

// Namespace roots the whole taxonomy; each kind below is a distinct
// errorx.Type under it so callers can test membership with errorx.IsOfType
// without string-matching messages.
var Namespace = errorx.NewNamespace("lisp")

var (
	// Parse covers malformed expressions, oversized symbol names, and
	// integer overflow during reading.
	Parse = Namespace.NewType("parse")
	// Type covers a primitive receiving a value of the wrong kind.
	Type = Namespace.NewType("type")
	// Arity covers a function or builtin called with the wrong argument
	// count, in either direction.
	Arity = Namespace.NewType("arity")
	// Undefined covers a symbol lookup that fails in every enclosing
	// scope.
	Undefined = Namespace.NewType("undefined")
	// Compile covers JIT failures: an unsupported construct, or a
	// symbol left unresolved at freeze time.
	Compile = Namespace.NewType("compile")
	// IO covers runtime file errors, currently just `load` failing to
	// open its argument.
	IO = Namespace.NewType("io")
)

// Capacity is the ring buffer's fixed size (§7).
const Capacity = 16

// Ring is a single-writer (the evaluator), single-reader (the REPL)
// bounded buffer of errors for the form currently being evaluated.
// Pushing past Capacity overwrites the oldest entry, matching the
// "beyond 16 errors per form, the oldest are overwritten" rule.
type Ring struct {
	entries [Capacity]error
	start   int
	count   int
}

// Push records err, evicting the oldest entry if the ring is full.
func (r *Ring) Push(err error) {
	if r.count < Capacity {
		r.entries[(r.start+r.count)%Capacity] = err
		r.count++
		return
	}
	r.entries[r.start] = err
	r.start = (r.start + 1) % Capacity
}

// Drain returns every recorded error in insertion order and empties the
// ring.
func (r *Ring) Drain() []error {
	out := make([]error, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.start+i)%Capacity]
	}
	r.start = 0
	r.count = 0
	return out
}

// Len reports how many errors are currently queued.
func (r *Ring) Len() int { return r.count }
