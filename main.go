// Package main is the entry point for the netwatchd traffic monitor.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/otus/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
