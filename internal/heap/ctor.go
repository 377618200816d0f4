package heap

import "unsafe"

// Cons allocates a fresh pair. The result's tag is TagCons.
func (h *Heap) Cons(car, cdr Value) Value {
	h.PushFrame(&car, &cdr)
	defer h.PopFrame()

	addr := h.allocate(typeSize(TagCons))
	*wordAt(addr) = Value(TagCons)
	*wordAt(addr + consCarOff) = car
	*wordAt(addr + consCdrOff) = cdr
	return makePtr(addr, TagCons)
}

func (h *Heap) makeSymbolRaw(name string) Value {
	size := allocationSize(symbolNameOff + uintptr(len(name)) + 1)
	addr := h.allocate(size)
	*wordAt(addr) = Value(TagSymbol)
	base := addr + symbolNameOff
	for i := 0; i < len(name); i++ {
		*(*byte)(unsafe.Pointer(base + uintptr(i))) = name[i] //nolint:govet
	}
	*(*byte)(unsafe.Pointer(base + uintptr(len(name)))) = 0 //nolint:govet
	return makePtr(addr, TagSymbol)
}

// Intern returns the unique heap symbol for name, allocating and linking
// a new one into AllSymbols only the first time the name is seen
// (invariant 4: same name always means the same heap object).
func (h *Heap) Intern(name string) Value {
	for s := h.allSymbols; s != Nil; s = h.Cdr(s) {
		sym := h.Car(s)
		if h.SymbolName(sym) == name {
			return sym
		}
	}

	sym := h.makeSymbolRaw(name)
	h.PushFrame(&sym)
	defer h.PopFrame()

	h.allSymbols = h.Cons(sym, h.allSymbols)
	return h.Car(h.allSymbols)
}

// MakeBuiltin wraps idx, an index into the evaluator's primitive table,
// as a heap builtin value.
func (h *Heap) MakeBuiltin(idx int) Value {
	addr := h.allocate(typeSize(TagBuiltin))
	*wordAt(addr) = Value(TagBuiltin)
	*wordAt(addr + builtinIdxOff) = Value(idx)
	return makePtr(addr, TagBuiltin)
}

func (h *Heap) makeFunc(tag uintptr, params, body, env Value) Value {
	h.PushFrame(&params, &body, &env)
	defer h.PopFrame()

	addr := h.allocate(typeSize(tag))
	*wordAt(addr) = Value(tag)
	*wordAt(addr + funcParamsOff) = params
	*wordAt(addr + funcBodyOff) = body
	*wordAt(addr + funcEnvOff) = env
	*wordAt(addr + funcCompiledOff) = Value(NotCompiled)
	return makePtr(addr, int(tag))
}

// MakeLambda allocates a closure over env.
func (h *Heap) MakeLambda(params, body, env Value) Value {
	return h.makeFunc(TagLambda, params, body, env)
}

// MakeMacro allocates a macro over env.
func (h *Heap) MakeMacro(params, body, env Value) Value {
	return h.makeFunc(TagMacro, params, body, env)
}

// NewScope pushes a fresh, empty bindings-list onto prevScope.
func (h *Heap) NewScope(prevScope Value) Value {
	return h.Cons(Nil, prevScope)
}

// BindValue adds (symbol . value) to the innermost bindings-list of
// scope, shadowing any existing binding of the same symbol there.
func (h *Heap) BindValue(scope, symbol, value Value) {
	h.PushFrame(&scope, &symbol, &value)
	defer h.PopFrame()

	bound := h.Cons(symbol, value)
	h.PushFrame(&scope, &bound)
	defer h.PopFrame()

	h.SetCar(scope, h.Cons(bound, h.Car(scope)))
}

// SymbolLookup walks scope's bindings-lists outward, returning Undefined
// if sym is bound nowhere.
func (h *Heap) SymbolLookup(scope, sym Value) Value {
	for s := scope; s != Nil; s = h.Cdr(s) {
		for o := h.Car(s); o != Nil; o = h.Cdr(o) {
			kv := h.Car(o)
			if h.Car(kv) == sym {
				return h.Cdr(kv)
			}
		}
	}
	return Undefined
}
