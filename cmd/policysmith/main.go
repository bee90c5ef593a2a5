package main

import (
	"os"

	"github.com/solatis/policysmith/cmd/policysmith/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
