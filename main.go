package main

import (
	"os"

	"github.com/Ramsey-B/clover/pkg/commands"
)

func main() {
	if err := commands.NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
