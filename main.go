package main

import (
	"os"

	"github.com/eyes-of-azrael/azrael/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
