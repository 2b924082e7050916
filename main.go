// The main package for the linkmill executable.
package main

import (
	"github.com/linkmill/linkmill/cmd"
)

// main defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
