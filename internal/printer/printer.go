// Package printer renders heap values as the S-expression text the
// reader accepts back, matching the original print_one layout (each
// atom followed by a trailing space, lists wrapped in "( ... )").
package printer

import (
	"fmt"
	"io"
	"strings"

	"golisp/internal/heap"
)

// Sprint renders v as a string.
func Sprint(h *heap.Heap, v heap.Value) string {
	var sb strings.Builder
	writeOne(&sb, h, v)
	return sb.String()
}

// Fprint renders v to w.
func Fprint(w io.Writer, h *heap.Heap, v heap.Value) {
	io.WriteString(w, Sprint(h, v))
}

func writeOne(sb *strings.Builder, h *heap.Heap, v heap.Value) {
	switch heap.Tag(v) {
	case heap.TagNumber:
		fmt.Fprintf(sb, "%d ", heap.Number(v))

	case heap.TagSymbol:
		sb.WriteString(h.SymbolName(v))
		sb.WriteByte(' ')

	case heap.TagConst:
		if v == heap.True {
			sb.WriteString("t ")
		} else {
			sb.WriteString("nil ")
		}

	case heap.TagCons:
		sb.WriteString("( ")
		o := v
		for heap.Tag(o) == heap.TagCons {
			writeOne(sb, h, h.Car(o))
			o = h.Cdr(o)
		}
		if o != heap.Nil {
			sb.WriteString(". ")
			writeOne(sb, h, o)
		}
		sb.WriteString(") ")

	case heap.TagLambda:
		if h.Compiled(v) == heap.Compiled {
			sb.WriteString("<compiled func> ")
		} else {
			sb.WriteString("<func> ")
		}

	case heap.TagMacro:
		sb.WriteString("<macro> ")

	case heap.TagBuiltin:
		sb.WriteString("<builtin> ")

	default:
		sb.WriteString("<?> ")
	}
}
