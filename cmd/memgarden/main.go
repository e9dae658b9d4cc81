package main

import (
	"os"

	"github.com/memgarden/memgarden/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
