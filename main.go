// The main package for the docket-crawler executable.
package main

import (
	"github.com/JakeFAU/docket-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
