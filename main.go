package main

import (
	"os"

	"github.com/firefly-dispatch/firefly/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
