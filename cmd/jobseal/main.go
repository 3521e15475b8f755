// Command jobseal manages keys, submits jobs and runs a logging worker
// against the store configured through JOBSEAL_* environment variables.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
