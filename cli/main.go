package main

import (
	"os"

	"github.com/tschelli/lead-lander-sub001/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
