// Package main is the entry point for the mcpruntime server process.
package main

import (
	"os"

	"github.com/mcpruntime/core/cmd/mcpruntime/app"
	"github.com/mcpruntime/core/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
