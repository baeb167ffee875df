// Command crewrecovery validates crew assignments and selects recovery
// actions from the command line, using the same engine as the server.
package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes
const (
	exitOK           = 0
	exitNotCompliant = 1
	exitError        = 2
)

func main() {
	os.Exit(execute(newRootCmd()))
}

func execute(root interface{ Execute() error }) int {
	err := root.Execute()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errNotCompliant):
		return exitNotCompliant
	default:
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitError
	}
}
