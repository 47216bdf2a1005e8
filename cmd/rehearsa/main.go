// Command rehearsa is the entry point for the rehearsa mock-interview server.
package main

import (
	"fmt"
	"os"
)

// Set by ldflags at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rehearsa: %v\n", err)
		os.Exit(1)
	}
}
