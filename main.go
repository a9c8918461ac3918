package main

import (
	"fmt"
	"os"

	"github.com/civicwatch/alertwatch/cmd"
	"github.com/civicwatch/alertwatch/internal/buildinfo"
)

func main() {
	if err := cmd.RootCommand(buildinfo.Current()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
