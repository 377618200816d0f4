// Package reader turns a character stream into one heap.Value
// expression per call, matching the lexing rules of §6: parens
// delimit lists, a leading quote is sugar for (quote x), semicolons
// start line comments, and a leading '-' disambiguates between a
// negative number, the subtract symbol, and a symbol beginning with
// '-' depending on what follows.
package reader

import (
	"bufio"
	"io"
	"strings"

	"golisp/internal/heap"
	"golisp/internal/lerr"
)

// MaxSymbolLen bounds an interned symbol's name length (§6, "≈ 1024 bytes").
const MaxSymbolLen = 1024

// maxMagnitude is the smallest integer magnitude that no longer
// survives the two-bit tag shift inside a 64-bit Value; the reader
// rejects magnitudes at or above it (§6: "must fit in 62 bits of
// magnitude").
const maxMagnitude = int64(1) << 61

// Reader is a lazy token source: each call to Next consumes exactly one
// top-level expression from src and returns the heap value it denotes.
type Reader struct {
	h    *heap.Heap
	src  *bufio.Reader
	errs *lerr.Ring
	echo bool
}

// New wraps src for reading. Parse errors are recorded into errs and
// Next returns heap.Nil for the offending expression rather than
// aborting the stream, matching the evaluator's non-fatal error policy
// (§7) extended to the reader.
func New(h *heap.Heap, src io.Reader, errs *lerr.Ring) *Reader {
	return &Reader{h: h, src: bufio.NewReader(src), errs: errs}
}

// SetEcho records the -echo flag; the Reader itself never echoes input.
// Callers that want echoing wrap src themselves with an io.TeeReader
// instead, so this only tracks the flag for callers inspecting it.
func (r *Reader) SetEcho(echo bool) { r.echo = echo }

// Next reads one expression. It returns io.EOF once the stream is
// exhausted with no further expression pending.
func (r *Reader) Next() (heap.Value, error) {
	v, err := r.parseExpr()
	if err != nil {
		return heap.Nil, err
	}
	if v == heap.Undefined {
		return heap.Nil, io.EOF
	}
	return v, nil
}

func (r *Reader) peek() (rune, error) {
	ch, _, err := r.src.ReadRune()
	if err != nil {
		return 0, err
	}
	return ch, r.src.UnreadRune()
}

func (r *Reader) get() (rune, error) {
	ch, _, err := r.src.ReadRune()
	return ch, err
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }

func isDelim(ch rune) bool {
	return ch == '(' || ch == ')' || isSpace(ch)
}

// parseExpr mirrors parse_expr in the original sources: Undefined
// means "end of list or stream", distinct from a parse failure which
// is returned as a recorded, non-fatal error.
func (r *Reader) parseExpr() (heap.Value, error) {
	for {
		ch, err := r.peek()
		if err == io.EOF {
			return heap.Undefined, nil
		}
		if err != nil {
			return heap.Undefined, err
		}

		switch {
		case ch == ';':
			if err := r.skipLineComment(); err != nil && err != io.EOF {
				return heap.Undefined, err
			}
			continue
		case isSpace(ch):
			r.get()
			continue
		case ch == '(':
			r.get()
			return r.parseList()
		case isDigit(ch):
			return r.parseNumber(1)
		case ch == '-':
			return r.parseMinus()
		case ch == '\'':
			r.get()
			return r.parseQuote()
		case ch == ')':
			r.get()
			return heap.Undefined, nil
		default:
			return r.parseSymbol("")
		}
	}
}

func (r *Reader) skipLineComment() error {
	for {
		ch, err := r.get()
		if err != nil {
			return err
		}
		if ch == '\n' {
			return nil
		}
	}
}

// parseList builds the tail-to-head accumulator the way the original
// cons-then-reverse does, registering it as a root across the
// recursive parseExpr calls that may themselves allocate.
func (r *Reader) parseList() (heap.Value, error) {
	acc := heap.Nil
	r.h.PushFrame(&acc)
	defer r.h.PopFrame()

	for {
		obj, err := r.parseExpr()
		if err != nil {
			return heap.Nil, err
		}
		if obj == heap.Undefined {
			return r.h.Reverse(acc), nil
		}
		r.h.PushFrame(&obj, &acc)
		acc = r.h.Cons(obj, acc)
		r.h.PopFrame()
	}
}

func (r *Reader) parseQuote() (heap.Value, error) {
	arg, err := r.parseExpr()
	if err != nil {
		return heap.Nil, err
	}
	if arg == heap.Undefined {
		r.recordParseError("unexpected end of input after '")
		return heap.Nil, nil
	}
	r.h.PushFrame(&arg)
	defer r.h.PopFrame()

	quoteSym := r.h.Intern("quote")
	r.h.PushFrame(&quoteSym, &arg)
	defer r.h.PopFrame()

	argList := r.h.Cons(arg, heap.Nil)
	r.h.PushFrame(&quoteSym, &argList)
	defer r.h.PopFrame()

	return r.h.Cons(quoteSym, argList), nil
}

// parseMinus disambiguates '-' per §6: followed by a digit it reads a
// negative number, followed by whitespace/delimiter it is the subtract
// symbol, otherwise it begins a symbol whose name starts with '-'.
func (r *Reader) parseMinus() (heap.Value, error) {
	r.get() // consume '-'
	ch, err := r.peek()
	switch {
	case err == io.EOF || isSpace(ch) || ch == '(' || ch == ')':
		return r.h.Intern("-"), nil
	case err != nil:
		return heap.Nil, err
	case isDigit(ch):
		return r.parseNumber(-1)
	default:
		return r.parseSymbol("-")
	}
}

func (r *Reader) parseNumber(sign int64) (heap.Value, error) {
	var val int64
	for {
		ch, err := r.peek()
		if err != nil || !isDigit(ch) {
			break
		}
		r.get()
		val = val*10 + int64(ch-'0')
		if val >= maxMagnitude {
			r.consumeToken()
			r.recordParseError("integer overflow")
			return heap.Nil, nil
		}
	}
	return heap.MakeNumber(sign * val), nil
}

// parseSymbol reads a delimiter-bounded token and interns it, with
// prefix prepended (used for the leading '-' case).
func (r *Reader) parseSymbol(prefix string) (heap.Value, error) {
	var sb strings.Builder
	sb.WriteString(prefix)
	for {
		ch, err := r.peek()
		if err != nil || isDelim(ch) || ch == ';' || ch == '\'' {
			break
		}
		r.get()
		sb.WriteRune(ch)
		if sb.Len() > MaxSymbolLen {
			r.consumeToken()
			r.recordParseError("symbol name too long")
			return heap.Nil, nil
		}
	}
	return r.h.Intern(sb.String()), nil
}

func (r *Reader) recordParseError(msg string) {
	if r.errs != nil {
		r.errs.Push(lerr.Parse.New("%s", msg))
	}
}

// consumeToken discards the remainder of a malformed token so the
// reader can resynchronize at the next delimiter instead of looping.
func (r *Reader) consumeToken() {
	for {
		ch, err := r.peek()
		if err != nil || isDelim(ch) {
			return
		}
		r.get()
	}
}
