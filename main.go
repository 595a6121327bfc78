package main

import (
	"os"

	"github.com/mgrande/ladevakt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
