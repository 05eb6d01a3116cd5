// The main package for the forumwatch executable.
package main

import (
	"github.com/JakeFAU/forumwatch/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
