package main

import (
	"os"

	"github.com/chopdirect/chopdirect/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
