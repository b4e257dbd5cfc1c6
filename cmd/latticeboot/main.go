package main

import (
	"os"

	"github.com/kingrea/latticeboot/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
