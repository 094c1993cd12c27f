package main

import (
	"fmt"
	"os"

	"pkgutils/cmd/pkg/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pkg: %v\n", err)
		os.Exit(1)
	}
}
