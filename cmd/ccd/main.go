// Package main is the entry point for the ccd daemon CLI.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ccd: %v\n", err)
		os.Exit(1)
	}
}
