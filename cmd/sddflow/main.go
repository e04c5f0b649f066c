// Command sddflow drives spec-driven development workflows: it runs the task
// graph of a feature directory, routes design reviews through the policy
// gate and manages the human review queue.
package main

import (
	"fmt"
	"os"
)

// version is set at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
