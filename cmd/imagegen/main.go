package main

import (
	"os"

	"imagegen/cmd/imagegen/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
