package main

import (
	"fmt"
	"os"
)

const (
	appName = "rr-guardd"
)

// version is overridden at build time via -ldflags.
var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}
