package jit

import (
	"fmt"

	"golisp/internal/heap"
	"golisp/internal/jit/x86asm"
)

// scratch lists the four general-purpose registers available to the
// code generator, in allocation preference order. ARGS itself lives in
// RDI and is never handed out. R0 (RAX) doubles as both a scratch
// register and the function's return register, so the final value of
// every emitted body always ends up there.
var scratch = []x86asm.Reg{x86asm.RAX, x86asm.RDX, x86asm.RCX, x86asm.RSI}

const argsReg = x86asm.RDI

// emitter walks a folded, register-counted bite tree and produces
// x86-64 machine code into asm.
type emitter struct {
	asm        *x86asm.Asm
	prologueAt int // byte offset of the loop-back target for opRecurse
}

// emit generates code that leaves b's value in the returned register,
// drawn from avail (the registers still free for this subtree). A
// binary node whose two children don't simultaneously fit in avail
// spills one side to the native stack and reloads it to combine
// (emitBinary); a cross-function or self call widens its own argument
// registers only up to maxCallArity, which lowering enforces so they
// always fit.
func (e *emitter) emit(b *bite, avail []x86asm.Reg) x86asm.Reg {
	switch b.op {
	case opConst:
		dst := avail[0]
		e.asm.MovRegImm64(dst, int64(b.constVal))
		return dst

	case opParam:
		dst := avail[0]
		e.asm.MovRegOff8(dst, argsReg, int8(b.paramIdx*8))
		return dst

	case opAdd, opSub, opLess, opEq:
		return e.emitBinary(b, avail)

	case opNeg:
		dst := e.emit(b.left, avail)
		e.asm.NegReg(dst)
		return dst

	case opCarLoad:
		dst := e.emit(b.left, avail)
		e.asm.MovRegOff8(dst, dst, int8(8-heap.TagCons)) // car sits one word past the header; the pointer still carries its cons tag
		return dst

	case opCdrLoad:
		dst := e.emit(b.left, avail)
		e.asm.MovRegOff8(dst, dst, int8(16-heap.TagCons)) // cdr follows immediately after car
		return dst

	case opWriteChar:
		return e.emitWriteChar(b, avail)

	case opIf:
		return e.emitIf(b, avail)

	case opProgn:
		return e.emitProgn(b, avail)

	case opRecurse:
		return e.emitRecurse(b, avail)

	case opCall:
		return e.emitCall(b, avail)

	default:
		panic(fmt.Sprintf("jit: unhandled opcode %d during emission", b.op))
	}
}

// emitBinary computes the heavier subtree first (Sethi-Ullman order),
// reusing its register as the destination; the lighter subtree is then
// evaluated into whatever remains of avail. If the lighter subtree's
// own register need doesn't fit what's left, the first subtree's
// already-computed result is spilled to the native stack so the second
// gets the whole free-register set to itself, then reloaded to combine
// (§4.4 step 6's "if neither child fits within the free-register set,
// spill... and compute the other in place", generalized here to
// whichever child is evaluated first once reordered).
func (e *emitter) emitBinary(b *bite, avail []x86asm.Reg) x86asm.Reg {
	left, right := b.left, b.right

	firstIsRight := right.regCount > left.regCount
	first, second := left, right
	if firstIsRight {
		first, second = right, left
	}

	firstReg := e.emit(first, avail)
	rest := without(avail, firstReg)

	var secondReg x86asm.Reg
	if len(rest) > 0 && len(rest) >= second.regCount {
		secondReg = e.emit(second, rest)
	} else {
		e.asm.Push(firstReg)
		secondReg = e.emit(second, avail)
		firstReg = without(avail, secondReg)[0]
		e.asm.Pop(firstReg)
	}

	lreg, rreg := firstReg, secondReg
	if firstIsRight {
		lreg, rreg = secondReg, firstReg
	}

	switch b.op {
	case opAdd:
		e.asm.AddRegReg(lreg, rreg)
	case opSub:
		e.asm.SubRegReg(lreg, rreg)
	case opLess:
		e.emitCompare(lreg, rreg, jumpLess)
	case opEq:
		e.emitCompare(lreg, rreg, jumpEqual)
	}
	return lreg
}

type condJump int

const (
	jumpLess condJump = iota
	jumpEqual
)

// emitCompare turns a comparison into the tagged True/Nil singletons:
// cmp, then a conditional jump over a pair of immediate loads, matching
// the boolean encoding the evaluator uses everywhere else (no native
// flag ever leaks into a Lisp value).
func (e *emitter) emitCompare(dst, rhs x86asm.Reg, kind condJump) {
	e.asm.CmpRegReg(dst, rhs)
	var patchTrue int
	switch kind {
	case jumpLess:
		patchTrue = e.asm.JlRel32()
	case jumpEqual:
		patchTrue = e.asm.JeRel32()
	}
	e.asm.MovRegImm64(dst, int64(heap.Nil))
	patchEnd := e.asm.JmpRel32()
	e.asm.PatchRel32(patchTrue)
	e.asm.MovRegImm64(dst, int64(heap.True))
	e.asm.PatchRel32(patchEnd)
}

// emitWriteChar untags the character value's numeric payload, spills
// it to a one-byte scratch slot on the native stack, and issues write(2)
// directly — compiled code never calls back into the Go runtime.
func (e *emitter) emitWriteChar(b *bite, avail []x86asm.Reg) x86asm.Reg {
	val := e.emit(b.left, avail)
	e.asm.Sar64Imm8(val, 2)
	e.asm.Push(argsReg) // preserve ARGS across the syscall clobber of RDI
	e.asm.Push(val)
	e.asm.MovRegReg(x86asm.RSI, x86asm.RSP)
	e.asm.MovRegImm64(x86asm.RDI, 1) // fd 1: stdout
	e.asm.MovRegImm64(x86asm.RDX, 1) // length 1
	e.asm.MovRegImm64(x86asm.RAX, 1) // write syscall number
	e.asm.Syscall()
	e.asm.Pop(val)
	e.asm.Pop(argsReg)
	e.asm.MovRegImm64(val, int64(heap.Nil))
	return val
}

func (e *emitter) emitIf(b *bite, avail []x86asm.Reg) x86asm.Reg {
	cond := e.emit(b.left, avail)
	nilMarker := without(avail, cond)[0]
	e.asm.MovRegImm64(nilMarker, int64(heap.Nil))
	e.asm.CmpRegReg(cond, nilMarker)
	jumpToElse := e.asm.JeRel32()

	thenReg := e.emit(b.right, avail)
	if thenReg != cond {
		e.asm.MovRegReg(cond, thenReg)
	}
	jumpToEnd := e.asm.JmpRel32()

	e.asm.PatchRel32(jumpToElse)
	var elseExpr *bite
	if len(b.args) == 1 {
		elseExpr = b.args[0]
	}
	elseReg := e.emit(elseExpr, avail)
	if elseReg != cond {
		e.asm.MovRegReg(cond, elseReg)
	}
	e.asm.PatchRel32(jumpToEnd)
	return cond
}

func (e *emitter) emitProgn(b *bite, avail []x86asm.Reg) x86asm.Reg {
	if len(b.args) == 0 {
		dst := avail[0]
		e.asm.MovRegImm64(dst, int64(heap.Nil))
		return dst
	}
	var last x86asm.Reg
	for _, a := range b.args {
		last = e.emit(a, avail)
	}
	return last
}

// emitRecurse evaluates every argument into its own register before
// touching ARGS, since all arguments share the same backing memory a
// later one might still need to read (lowerCallArgs has already
// guaranteed there are at most four of them). It then overwrites ARGS
// in place and jumps back to the function's own prologue: a true tail
// call with no new native stack frame.
func (e *emitter) emitRecurse(b *bite, avail []x86asm.Reg) x86asm.Reg {
	regs := e.evalArgs(b.args, avail)
	for i, r := range regs {
		e.asm.MovOff8Reg(argsReg, int8(i*8), r)
	}
	at := e.asm.JmpRel32()
	e.asm.PatchRel32To(at, e.prologueAt)
	return scratch[0]
}

// emitCall marshals arguments onto the native stack as a fresh ARGS
// block for a call to another already-Compiled lambda, preserving the
// caller's own ARGS pointer across the call. Pushing regs in reverse
// order leaves regs[0] on top of the stack, so RSP itself becomes a
// correctly-ordered ARGS pointer with no further rearrangement.
//
// A cross-function call clobbers every scratch register, not just the
// ones it uses for arguments: whatever is "live" here — held by a
// sibling or ancestor subtree that isn't in avail — must survive it.
// Per §4.4's calling convention ("saves live scratch registers by
// push/pop around the call"), those are pushed before the call and
// popped back after, and the result is copied into a register drawn
// from avail rather than assumed to still be sitting in RAX.
func (e *emitter) emitCall(b *bite, avail []x86asm.Reg) x86asm.Reg {
	live := without(scratch, avail...)
	for _, r := range live {
		e.asm.Push(r)
	}

	regs := e.evalArgs(b.args, avail)

	e.asm.Push(argsReg)
	for i := len(regs) - 1; i >= 0; i-- {
		e.asm.Push(regs[i])
	}
	e.asm.MovRegReg(x86asm.RAX, x86asm.RSP) // the callee's prologue moves RAX into ARGS

	target := scratch[len(scratch)-1]
	e.asm.MovRegImm64(target, int64(b.callTarget))
	e.asm.CallReg(target)

	for range regs {
		e.asm.Pop(target) // discard the arguments without touching the result in RAX
	}
	e.asm.Pop(argsReg)

	dst := avail[0]
	if dst != x86asm.RAX {
		e.asm.MovRegReg(dst, x86asm.RAX)
	}

	for i := len(live) - 1; i >= 0; i-- {
		e.asm.Pop(live[i])
	}
	return dst
}

// evalArgs computes each argument bite into its own register. Callers
// only reach this with at most len(avail) arguments.
func (e *emitter) evalArgs(args []*bite, avail []x86asm.Reg) []x86asm.Reg {
	regs := make([]x86asm.Reg, 0, len(args))
	for _, a := range args {
		free := without(avail, regs...)
		regs = append(regs, e.emit(a, free))
	}
	return regs
}

func without(regs []x86asm.Reg, drop ...x86asm.Reg) []x86asm.Reg {
	out := make([]x86asm.Reg, 0, len(regs))
	for _, r := range regs {
		skip := false
		for _, d := range drop {
			if r == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, r)
		}
	}
	return out
}
