package main

import (
	"os"

	"github.com/fandreams/fancoin/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
