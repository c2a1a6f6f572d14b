// Command buildhookd is a daemon that launches a configured build command
// over HTTP and streams each run's captured output to attached clients.
package main

import (
	"fmt"
	"os"
)

const version = "0.0.1"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
		os.Exit(1)
	}
}
