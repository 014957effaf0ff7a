// The main package for the reverse411 executable.
package main

import (
	"github.com/JakeFAU/reverse411/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
