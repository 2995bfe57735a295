// The main package for the paperscout executable.
package main

import (
	"github.com/JakeFAU/paperscout/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
