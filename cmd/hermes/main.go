// Package main is the entry point for the hermes CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/inercia/hermes/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
