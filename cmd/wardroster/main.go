package main

import (
	"os"

	"github.com/wardroster/wardroster/cmd/wardroster/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
