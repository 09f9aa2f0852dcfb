// Package main is the entry point for the tavernier CLI.
package main

import (
	"os"

	"github.com/tavernier-bot/tavernier/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
