package main

// Entry point: runs the cobra root command and maps any error to exit code 1.

import (
	"fmt"
	"os"

	"checkin-runner/cmd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
