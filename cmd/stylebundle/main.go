package main

import (
	"os"

	"github.com/sjc5/stylebundle/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
