package main

import (
	"os"

	"github.com/Lazyjimpressions/ourvidz-sub002/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
