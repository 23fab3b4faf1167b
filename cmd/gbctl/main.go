package main

import (
	"log/slog"
	"os"

	"github.com/alexbotov/gaming-billing/cmd/gbctl/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		slog.Error("error during command execution", "error", err)
		os.Exit(1)
	}
}
