// The main package for the novelpress executable.
package main

import (
	"github.com/tanukirift/novelpress/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
