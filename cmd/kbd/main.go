// Command kbd runs the knowledge-base agent tool server: the local index,
// inaccuracy propagation, hybrid search, and the git-backed sync engine
// described by the component design this repo implements. The tool-call
// transport itself is left to whatever process embeds internal/toolserver;
// this binary exposes the operator-facing surface — serving, one-shot
// sync, and routing inspection.
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
