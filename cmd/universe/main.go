package main

import (
	"os"

	"github.com/wonny/tradable-universe/cmd/universe/commands"
)

// main is the entry point for the universe CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/universe [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
