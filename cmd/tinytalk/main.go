// Command tinytalk is a thin host-side demonstration harness around
// pkg/image: it loads a bit-exact bytecode image (spec.md §6.2) and runs
// it, or disassembles one for inspection. There is no source-level
// compiler or REPL here — spec.md §6.3 puts both explicitly out of scope.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
