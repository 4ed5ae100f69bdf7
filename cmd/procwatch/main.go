package main

import (
	"os"

	"github.com/marcobitx/procwatch/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
