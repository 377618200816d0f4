// Command golisp is the interactive driver for the tagged-pointer Lisp:
// it wires together the heap, the tree-walking evaluator, the x86-64
// JIT, and the liner-backed repl, then hands control to whichever of
// them the flags ask for.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golisp/internal/eval"
	"golisp/internal/heap"
	"golisp/internal/jit"
	"golisp/internal/lerr"
	"golisp/internal/repl"
)

// debugBuild gates the `debug` primitive (§6); a release build would
// set this false via a build tag, mirroring the teacher's is_debug
// compile-time flag.
const debugBuild = true

func main() {
	var (
		heapBytes   = flag.Int64("heap-bytes", 1<<22, "initial total arena size in bytes (split into two semi-spaces)")
		growPct     = flag.Float64("gc-threshold", heap.DefaultGrowPct, "occupancy percentage above which the next collection grows the arena")
		echo        = flag.Bool("echo", false, "echo each line read by the repl")
		verboseGC   = flag.Bool("verbose-gc", false, "log every collection's bytes freed and occupancy")
		quiet       = flag.Bool("quiet", false, "suppress the repl's banner and result printing")
		debug       = flag.Bool("debug", false, "enable the debug primitive (debug builds only)")
		historyFile = flag.String("history", "", "path to a repl history file")
		stdlibPath  = flag.String("stdlib", "stdlib/stdlib.lisp", "path to the bundled standard-library source")
	)
	var loadFiles stringList
	flag.Var(&loadFiles, "load", "load and evaluate a file before starting the repl (repeatable)")
	flag.Parse()

	logger := log.New(os.Stderr, "", 0)
	h := heap.New(uintptr(*heapBytes), *growPct, *verboseGC, logger)
	errs := &lerr.Ring{}
	ev := eval.New(h, errs, debugBuild)
	ev.Quiet = *quiet
	if *debug && !debugBuild {
		fmt.Fprintln(os.Stderr, "warning: -debug has no effect in a non-debug build")
	}

	rt := jit.New(h, errs, ev.BuiltinName)
	eval.RegisterJIT(rt)
	defer rt.Close()

	if *stdlibPath != "" {
		if err := repl.LoadFile(ev, os.Stdout, *stdlibPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", *stdlibPath, err)
		}
	}
	for _, path := range loadFiles {
		if err := repl.LoadFile(ev, os.Stdout, path); err != nil {
			fmt.Fprintf(os.Stderr, "error loading %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	r := repl.New(ev, os.Stdout, repl.Options{
		Echo:        *echo,
		Quiet:       *quiet,
		HistoryFile: *historyFile,
	})
	r.LoadHistory()
	defer r.Close()
	r.Run()
}

// stringList accumulates repeated -load flags into an ordered slice.
type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
