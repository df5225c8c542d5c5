package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mkivela/tagdex/cmd"
	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/logging"
)

func main() {
	logging.Init(slog.LevelInfo)

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
