package main

import (
	"os"

	"github.com/lazypower/cohortsim/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
