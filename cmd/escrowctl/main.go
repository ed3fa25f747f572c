// Command escrowctl is the operator CLI for the lexbounty escrow service.
package main

import (
	"fmt"
	"os"
)

func main() {
	loadEnvFiles()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
