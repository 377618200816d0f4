// Package repl drives the interactive read-eval-print loop: a
// liner-backed line editor feeding the reader, an evaluator, and the
// printer, draining the error ring after every top-level form the way
// the teacher's own repl.go prints after every form it evaluates.
package repl

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/joomcode/errorx"
	"github.com/peterh/liner"

	"golisp/internal/eval"
	"golisp/internal/printer"
	"golisp/internal/reader"
)

// Options configures a Repl's behavior; all fields mirror a cmd/golisp
// flag of the same purpose.
type Options struct {
	Echo        bool
	Quiet       bool
	Prompt      string
	HistoryFile string
}

// Repl ties a heap, evaluator, and line editor together for an
// interactive session.
type Repl struct {
	ev   *eval.Evaluator
	opts Options
	out  io.Writer
	line *liner.State
}

// New constructs a Repl. Call Close when the session ends to restore
// the terminal and persist history.
func New(ev *eval.Evaluator, out io.Writer, opts Options) *Repl {
	if opts.Prompt == "" {
		opts.Prompt = "> "
	}
	l := liner.NewLiner()
	l.SetCtrlCAborts(true)
	return &Repl{ev: ev, opts: opts, out: out, line: l}
}

// Close restores the terminal and writes the history file, if any.
func (r *Repl) Close() error {
	if r.opts.HistoryFile != "" {
		if f, err := os.Create(r.opts.HistoryFile); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	return r.line.Close()
}

// LoadHistory replays a previously saved history file, if present.
func (r *Repl) LoadHistory() {
	if r.opts.HistoryFile == "" {
		return
	}
	f, err := os.Open(r.opts.HistoryFile)
	if err != nil {
		return
	}
	defer f.Close()
	r.line.ReadHistory(f)
}

// Run reads and evaluates forms until EOF (Ctrl-D) or the evaluator's
// (exit) builtin sets Exiting.
func (r *Repl) Run() {
	if !r.opts.Quiet {
		fmt.Fprintln(r.out, "golisp interactive session")
	}
	for !r.ev.Exiting {
		line, err := r.line.Prompt(r.opts.Prompt)
		if err != nil { // io.EOF on Ctrl-D, liner.ErrPromptAborted on Ctrl-C
			fmt.Fprintln(r.out)
			return
		}
		r.line.AppendHistory(line)
		if r.opts.Echo {
			fmt.Fprintln(r.out, line)
		}
		r.evalLine(line)
	}
}

func (r *Repl) evalLine(line string) {
	rd := reader.New(r.ev.H, bytes.NewBufferString(line), r.ev.Errs)
	for {
		expr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(r.out, "Error: %s\n", err)
			break
		}
		r.ev.H.PushFrame(&expr)
		v := r.ev.Eval(r.ev.H.Env(), expr)
		r.ev.H.PopFrame()
		r.drainErrors()
		if !r.opts.Quiet {
			fmt.Fprintln(r.out, printer.Sprint(r.ev.H, v))
		}
	}
}

// drainErrors prints every error the evaluator accumulated while
// processing the form just run, then empties the ring (§7: errors are
// non-fatal and reported, never thrown).
func (r *Repl) drainErrors() {
	for _, e := range r.ev.Errs.Drain() {
		kind := "error"
		if t := errorx.Cast(e); t != nil {
			kind = t.Type().String()
		}
		fmt.Fprintf(r.out, "Error (%s): %s\n", kind, e)
	}
}

// LoadFile reads and evaluates every top-level form in path, used for
// both stdlib bootstrapping and -load flags.
func LoadFile(ev *eval.Evaluator, out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rd := reader.New(ev.H, f, ev.Errs)
	for {
		expr, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fmt.Fprintf(out, "Error: %s\n", err)
			continue
		}
		ev.H.PushFrame(&expr)
		ev.Eval(ev.H.Env(), expr)
		ev.H.PopFrame()
		for _, e := range ev.Errs.Drain() {
			fmt.Fprintf(out, "Error: %s\n", e)
		}
	}
	return nil
}
