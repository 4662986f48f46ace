// Package main is the entry point for the gemsync command.
package main

import (
	"os"

	"github.com/git-pkgs/gemsync/cmd/gemsync/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
